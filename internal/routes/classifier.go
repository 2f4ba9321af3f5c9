package routes

import "strings"

const wildcardSuffix = "/**"

// Rule restricts a path pattern to callers holding at least one of Roles.
// Method is optional; method-scoped rules take precedence over method-agnostic
// ones for the same path. A pattern ending in "/**" matches by prefix.
type Rule struct {
	Method  string
	Pattern string
	Roles   []string
}

// Classifier is the static routing table: open-path prefixes that never
// require authentication, and the restricted-route rules. It is built once at
// startup and shared by reference; it is never mutated afterwards.
type Classifier struct {
	openPaths []string
	rules     []Rule
}

func NewClassifier(openPaths []string, rules []Rule) *Classifier {
	c := &Classifier{
		openPaths: make([]string, len(openPaths)),
		rules:     make([]Rule, len(rules)),
	}
	copy(c.openPaths, openPaths)
	copy(c.rules, rules)
	return c
}

// NewDefaultClassifier carries the platform's routing table.
func NewDefaultClassifier() *Classifier {
	return NewClassifier(
		[]string{
			"/api/auth/register",
			"/api/auth/login",
			"/api/auth/refresh",
			"/api/auth/validate",
			"/health",
			"/fallback",
		},
		[]Rule{
			{Pattern: "/api/admin/**", Roles: []string{"ADMIN"}},
			{Method: "POST", Pattern: "/api/movies", Roles: []string{"ADMIN", "MODERATOR"}},
			{Method: "PUT", Pattern: "/api/movies/**", Roles: []string{"ADMIN", "MODERATOR"}},
			{Method: "DELETE", Pattern: "/api/movies/**", Roles: []string{"ADMIN"}},
			{Method: "DELETE", Pattern: "/api/payments/**", Roles: []string{"ADMIN"}},
		},
	)
}

// IsSecured reports whether the path requires authentication. A path is open
// when it equals an open prefix or continues it past a path separator.
func (c *Classifier) IsSecured(path string) bool {
	for _, open := range c.openPaths {
		if path == open || strings.HasPrefix(path, open+"/") {
			return false
		}
	}
	return true
}

// RequiredRoles returns the role set restricting method+path, or nil when the
// route is unrestricted (authorization is default-allow).
func (c *Classifier) RequiredRoles(method, path string) []string {
	for _, r := range c.rules {
		if r.Method == method && matchPattern(path, r.Pattern) {
			return r.Roles
		}
	}
	for _, r := range c.rules {
		if r.Method == "" && matchPattern(path, r.Pattern) {
			return r.Roles
		}
	}
	return nil
}

func matchPattern(path, pattern string) bool {
	if strings.HasSuffix(pattern, wildcardSuffix) {
		return strings.HasPrefix(path, strings.TrimSuffix(pattern, wildcardSuffix))
	}
	return path == pattern
}
