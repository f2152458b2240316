package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeNext(t *testing.T) {
	cases := map[string]string{
		"":                        "/",
		"/order-management/":      "/order-management/",
		"/ask-discount/FR-E820/":  "/ask-discount/FR-E820/",
		"//evil.example":          "/",
		"https://evil.example/x":  "/",
		"/\\evil.example":         "/",
		"order-management":        "/",
		"/search/?q=inverter&x=1": "/search/?q=inverter&x=1",
	}
	for in, want := range cases {
		assert.Equal(t, want, SafeNext(in), in)
	}
}

func TestLoginURL(t *testing.T) {
	assert.Equal(t, "/auth/login", LoginURL(""))
	assert.Equal(t, "/auth/login?next=%2Forder-management%2F", LoginURL("/order-management/"))
}
