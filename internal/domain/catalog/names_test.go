package catalog

import (
	"regexp"
	"testing"
)

func TestGenerateStableName(t *testing.T) {
	tests := []struct {
		name   string
		method string
		route  string
		want   string
	}{
		{name: "simple route", method: "GET", route: "/users", want: "GET_users"},
		{name: "placeholder", method: "GET", route: "/users/{id}", want: "GET_users_id"},
		{name: "constraint stripped", method: "GET", route: "/users/{id:int}", want: "GET_users_id"},
		{name: "regex constraint stripped", method: "GET", route: "/files/{path:.*}", want: "GET_files_path"},
		{name: "lowercase method uppercased", method: "post", route: "/orders", want: "POST_orders"},
		{name: "empty method defaults to GET", method: "", route: "/users", want: "GET_users"},
		{name: "nested segments", method: "PUT", route: "/api/v1/users/{id}/roles", want: "PUT_api_v1_users_id_roles"},
		{name: "invalid chars become underscores", method: "GET", route: "/search?q=x", want: "GET_search_q_x"},
		{name: "dots preserved as underscores", method: "GET", route: "/v1.2/items", want: "GET_v1_2_items"},
		{name: "empty route", method: "DELETE", route: "", want: "DELETE_unknown"},
		{name: "root route", method: "GET", route: "/", want: "GET_unknown"},
		{name: "trailing placeholder trimmed", method: "GET", route: "/users/{id}/", want: "GET_users_id"},
		{name: "hyphens kept", method: "GET", route: "/user-profiles", want: "GET_user-profiles"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateStableName(tt.method, tt.route)
			if got != tt.want {
				t.Errorf("GenerateStableName(%q, %q) = %q, want %q", tt.method, tt.route, got, tt.want)
			}
		})
	}
}

func TestGenerateStableName_Deterministic(t *testing.T) {
	first := GenerateStableName("GET", "/users/{id:guid}/orders")
	for i := 0; i < 10; i++ {
		if got := GenerateStableName("GET", "/users/{id:guid}/orders"); got != first {
			t.Fatalf("iteration %d: got %q, want %q", i, got, first)
		}
	}
}

func TestCollisionSuffix(t *testing.T) {
	hex8 := regexp.MustCompile(`^[0-9a-f]{8}$`)

	a := CollisionSuffix("GET", "/users/{id}")
	if !hex8.MatchString(a) {
		t.Fatalf("CollisionSuffix() = %q, want 8 lowercase hex chars", a)
	}
	if b := CollisionSuffix("GET", "/users/{id}"); b != a {
		t.Errorf("suffix not stable: %q then %q", a, b)
	}
	if c := CollisionSuffix("POST", "/users/{id}"); c == a {
		t.Error("different methods produced the same suffix")
	}
	if d := CollisionSuffix("GET", "/users/{id:int}"); d == a {
		t.Error("different route templates produced the same suffix")
	}
	// The suffix keys on the raw template, so empty method normalises to GET.
	if e := CollisionSuffix("", "/users/{id}"); e != a {
		t.Errorf("empty method suffix = %q, want %q", e, a)
	}
}
