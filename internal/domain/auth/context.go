package auth

import (
	"net/http"
	"strings"

	"github.com/contextify/contextify/internal/domain/policy"
)

// Context carries the caller credentials available for propagation to the
// endpoint backing a tool. It is a value extracted once per request.
type Context struct {
	// BearerToken is the token from the Authorization header, without the
	// "Bearer " prefix.
	BearerToken string
	// Cookies is the raw Cookie header.
	Cookies string
}

// FromRequest extracts the propagatable credentials from an inbound request.
func FromRequest(r *http.Request) *Context {
	c := &Context{Cookies: r.Header.Get("Cookie")}
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			c.BearerToken = token
		}
	}
	if c.BearerToken == "" && c.Cookies == "" {
		return nil
	}
	return c
}

// Apply attaches the credentials to an outgoing request according to the
// propagation mode. Infer prefers the bearer token when the endpoint
// requires auth, falling back to cookies.
func (c *Context) Apply(req *http.Request, mode policy.AuthPropagationMode, requiresAuth bool) {
	if c == nil {
		return
	}
	switch mode {
	case policy.AuthPropagationNone:
		return
	case policy.AuthPropagationBearerToken:
		if c.BearerToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.BearerToken)
		}
	case policy.AuthPropagationCookies:
		if c.Cookies != "" {
			req.Header.Set("Cookie", c.Cookies)
		}
	default: // Infer, including the zero value
		if !requiresAuth {
			return
		}
		if c.BearerToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.BearerToken)
			return
		}
		if c.Cookies != "" {
			req.Header.Set("Cookie", c.Cookies)
		}
	}
}
