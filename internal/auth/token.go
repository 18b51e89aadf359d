package auth

import (
	"net/http"
	"strings"
)

// TokenSource extracts the bearer token from a login response's headers.
type TokenSource interface {
	Name() string
	Token(h http.Header) (string, bool)
}

// DefaultTokenSources is the lookup order used by NewGateway.
func DefaultTokenSources() []TokenSource {
	return []TokenSource{BearerHeader{}, SetCookieToken{}}
}

// BearerHeader reads the Authorization header, dropping a "Bearer " prefix.
type BearerHeader struct{}

func (BearerHeader) Name() string { return "authorization_header" }

func (BearerHeader) Token(h http.Header) (string, bool) {
	v := strings.TrimSpace(h.Get("Authorization"))
	if v == "Bearer" {
		return "", false
	}
	v = strings.TrimSpace(strings.TrimPrefix(v, "Bearer "))
	return v, v != ""
}

// SetCookieToken reads a token cookie from the Set-Cookie headers.
type SetCookieToken struct {
	// CookieName defaults to "token".
	CookieName string
}

func (SetCookieToken) Name() string { return "set_cookie" }

func (s SetCookieToken) Token(h http.Header) (string, bool) {
	name := s.CookieName
	if name == "" {
		name = "token"
	}
	for _, line := range h.Values("Set-Cookie") {
		c, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		if c.Name == name && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}
