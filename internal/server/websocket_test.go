package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckOrigin(t *testing.T) {
	cases := []struct {
		name    string
		origin  string
		host    string
		allowed bool
	}{
		{"no origin header", "", "example.com", true},
		{"localhost", "http://localhost:3000", "example.com", true},
		{"loopback v4", "http://127.0.0.1", "example.com", true},
		{"loopback v6", "http://[::1]:8080", "example.com", true},
		{"same origin", "http://example.com", "example.com", true},
		{"same origin with port", "http://example.com:8080", "example.com:8080", true},
		{"private range", "http://192.168.1.50:8080", "example.com", true},
		{"public cross origin", "http://evil.test", "example.com", false},
		{"malformed origin", "http://bad url", "example.com", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			r.Host = tc.host
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			assert.Equal(t, tc.allowed, checkOrigin(r))
		})
	}
}
