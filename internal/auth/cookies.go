// Package auth resolves the pre-obtained XHS session credential and prepares
// it for injection into the browser session.
package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/xhsnap/xhsnap/internal/config"
)

// CookieDomain is the domain all session cookies are scoped to.
const CookieDomain = ".xiaohongshu.com"

// cookieConfig is the fallback config file shape: {"cookie": "a=b; c=d"}.
type cookieConfig struct {
	Cookie string `json:"cookie"`
}

// fallbackConfigPaths returns the config files checked when XHS_COOKIE is
// unset, in priority order.
func fallbackConfigPaths() []string {
	paths := []string{filepath.Join("secrets", "xhs_config.json")}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "xhs", "config.json"))
	}
	return paths
}

// ResolveCookie returns the session cookie string. Priority: the XHS_COOKIE
// environment variable, then the fallback config files. Returns "" when no
// credential is found.
func ResolveCookie() string {
	if cookie := os.Getenv(config.EnvCookie); cookie != "" {
		return cookie
	}

	for _, path := range fallbackConfigPaths() {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg cookieConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			continue
		}
		if cfg.Cookie != "" {
			return cfg.Cookie
		}
	}

	return ""
}

// SessionCookie is one parsed cookie ready for browser injection.
type SessionCookie struct {
	Name  string
	Value string
}

// ParseCookieString splits a browser cookie header ("name=value; ...") into
// individual cookies. Entries without "=" are dropped.
func ParseCookieString(cookieStr string) []SessionCookie {
	var cookies []SessionCookie
	for _, item := range strings.Split(cookieStr, "; ") {
		name, value, ok := strings.Cut(item, "=")
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, SessionCookie{Name: name, Value: value})
	}
	return cookies
}
