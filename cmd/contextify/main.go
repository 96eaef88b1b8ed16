package main

import "github.com/contextify/contextify/cmd/contextify/cmd"

func main() {
	cmd.Execute()
}
