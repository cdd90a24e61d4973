package rest

import (
	"net/url"
	"strings"
)

// URL decomposition helpers. They follow the syntax
// scheme://[user[:password]@]host[:port][/path][?query][#fragment] and
// return "" for any component that is absent or for unparseable input.

func parse(rawURL string) *url.URL {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &url.URL{}
	}
	return u
}

// Scheme returns the URL scheme, e.g. "https".
func Scheme(rawURL string) string { return parse(rawURL).Scheme }

// Host returns the host name without the port.
func Host(rawURL string) string { return parse(rawURL).Hostname() }

// Port returns the explicit port, or "" when none is given.
func Port(rawURL string) string { return parse(rawURL).Port() }

// User returns the user name of the userinfo component.
func User(rawURL string) string {
	u := parse(rawURL)
	if u.User == nil {
		return ""
	}
	return u.User.Username()
}

// Password returns the password of the userinfo component.
func Password(rawURL string) string {
	u := parse(rawURL)
	if u.User == nil {
		return ""
	}
	p, _ := u.User.Password()
	return p
}

// Path returns the path as written, escapes kept.
func Path(rawURL string) string { return parse(rawURL).EscapedPath() }

// Query returns the raw query string without the leading '?'.
func Query(rawURL string) string { return parse(rawURL).RawQuery }

// Fragment returns the fragment without the leading '#'.
func Fragment(rawURL string) string { return parse(rawURL).Fragment }

// RootURL returns scheme://[user[:pass]@]host[:port] of rawURL. The
// userinfo keeps its escaping so the root still names the same host.
func RootURL(rawURL string) string {
	u := parse(rawURL)

	var userinfo string
	if u.User != nil && u.User.Username() != "" {
		info := u.User
		if pass, ok := info.Password(); ok && pass == "" {
			info = url.User(info.Username())
		}
		userinfo = info.String() + "@"
	}

	host := u.Hostname()
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port := u.Port(); port != "" {
		host += ":" + port
	}

	return u.Scheme + "://" + userinfo + host
}
