package platform

import (
	"fmt"
	"net/url"
	"strings"
)

// Environment selects the service deployment. It is one of the named
// environments below or a custom http(s) base URL.
type Environment string

// Named environments.
const (
	EnvironmentDev         Environment = "dev"
	EnvironmentStaging     Environment = "staging"
	EnvironmentIntegration Environment = "integration"
	EnvironmentProduction  Environment = "production"
)

var environmentHosts = map[Environment]string{
	EnvironmentDev:         "https://dev1.dev.tidepool.org",
	EnvironmentStaging:     "https://qa1.development.tidepool.org",
	EnvironmentIntegration: "https://int-api.tidepool.org",
	EnvironmentProduction:  "https://api.tidepool.org",
}

// ParseEnvironment accepts a named environment (case-insensitive) or an
// absolute http(s) URL.
func ParseEnvironment(s string) (Environment, error) {
	s = strings.TrimSpace(s)

	named := Environment(strings.ToLower(s))
	if _, ok := environmentHosts[named]; ok {
		return named, nil
	}

	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("platform: unknown environment %q (want dev, staging, integration, production, or an http(s) URL)", s)
	}

	return Environment(strings.TrimRight(s, "/")), nil
}

// BaseURL returns the API host for the environment, without a trailing slash.
func (e Environment) BaseURL() string {
	if host, ok := environmentHosts[e]; ok {
		return host
	}

	return strings.TrimRight(string(e), "/")
}

// IsCustom reports whether e is a custom host URL rather than a named
// environment.
func (e Environment) IsCustom() bool {
	_, ok := environmentHosts[e]
	return !ok
}

// Session is the authenticated context required by every call except login.
// Sessions are immutable; refresh replaces the whole value.
type Session struct {
	Environment Environment `json:"environment"`
	Token       string      `json:"token"`
	UserID      string      `json:"user_id"`
}

// String omits the token so sessions are safe to log.
func (s *Session) String() string {
	if s == nil {
		return "<no session>"
	}

	return fmt.Sprintf("session(user=%s env=%s)", s.UserID, s.Environment)
}

// User is the identity of the logged-in account.
type User struct {
	ID       string
	Email    string
	FullName string
}

// Credentials are the email/password pair used for login.
type Credentials struct {
	Email    string
	Password string
}
