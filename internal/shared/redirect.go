package shared

import (
	"net/url"
	"strings"
)

// LoginPath is the login form location.
const LoginPath = "/auth/login"

// LoginURL returns the login form URL that resumes at next.
func LoginURL(next string) string {
	next = SafeNext(next)
	if next == "/" {
		return LoginPath
	}
	return LoginPath + "?next=" + url.QueryEscape(next)
}

// SafeNext accepts only local absolute paths and falls back to "/".
func SafeNext(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	return raw
}
