package git

import (
	"net/url"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// AuthProvider resolves authentication methods for git operations.
type AuthProvider interface {
	// Method returns the transport.AuthMethod for the given remote URL, or
	// nil when no authentication applies.
	Method(remoteURL string) (transport.AuthMethod, error)
}

// BasicAuth returns an AuthProvider that sends username and password to
// https remotes. Other schemes get no credentials. When hosts are given only
// remotes on those hosts are authenticated; a host may be written as
// "*.example.org" to cover its subdomains.
//
// A password without a username is sent as a token under the user name
// "git", which hosted forges accept for access tokens.
//
//nolint:ireturn // AuthProvider is the contract callers configure.
func BasicAuth(username, password string, hosts ...string) AuthProvider {
	if username == "" && password != "" {
		username = "git"
	}
	return &basicAuth{
		method: &http.BasicAuth{Username: username, Password: password},
		hosts:  hosts,
	}
}

type basicAuth struct {
	method *http.BasicAuth
	hosts  []string
}

//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (b *basicAuth) Method(remoteURL string) (transport.AuthMethod, error) {
	ep, err := transport.NewEndpoint(remoteURL)
	if err != nil {
		return nil, err
	}
	if ep.Protocol != "https" {
		return nil, nil
	}
	if len(b.hosts) > 0 && !hostAllowed(ep.Host, b.hosts) {
		return nil, nil
	}
	return b.method, nil
}

func hostAllowed(host string, patterns []string) bool {
	for _, p := range patterns {
		switch {
		case p == host:
			return true
		case strings.HasPrefix(p, "*."):
			if strings.HasSuffix(host, p[1:]) {
				return true
			}
		}
	}
	return false
}

//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func resolveAuth(provider AuthProvider, remoteURL string) (transport.AuthMethod, error) {
	if provider == nil {
		return nil, nil
	}
	method, err := provider.Method(remoteURL)
	if err != nil {
		return nil, WrapError(ErrAuthRequired, err.Error())
	}
	return method, nil
}

// redactURL drops user info from u for logs and errors.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.User == nil {
		return u
	}
	parsed.User = nil
	return parsed.String()
}
