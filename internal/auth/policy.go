package auth

import (
	"net/http"
	"strings"
)

// Route binds a path (or path prefix when it ends in "*") and an optional method to a role.
type Route struct {
	Method string
	Path   string
	Role   Role
}

func (rt Route) matches(r *http.Request) bool {
	if rt.Method != "" && rt.Method != r.Method {
		return false
	}
	if prefix, ok := strings.CutSuffix(rt.Path, "*"); ok {
		return strings.HasPrefix(r.URL.Path, prefix)
	}
	return r.URL.Path == rt.Path
}

// Policy resolves the role a request needs. The first matching route wins;
// unmatched /api/ reads need viewer and unmatched /api/ writes need operator.
type Policy struct {
	Exempt map[string]struct{}
	Routes []Route
	// QueryToken lists paths that may carry the token as ?access_token=,
	// for clients such as EventSource that cannot set headers.
	QueryToken map[string]struct{}
}

// DefaultRoutes are the role overrides of the plantwatch API.
func DefaultRoutes() []Route {
	return []Route{
		{Method: http.MethodDelete, Path: "/api/v1/history", Role: RoleAdmin},
		{Path: "/api/v1/alerts/clear", Role: RoleOperator},
		{Path: "/api/v1/history/export.*", Role: RoleViewer},
	}
}

// NewPolicy builds a policy with DefaultRoutes and the given exempt paths.
func NewPolicy(exempt ...string) Policy {
	set := make(map[string]struct{}, len(exempt))
	for _, path := range exempt {
		set[path] = struct{}{}
	}
	return Policy{
		Exempt:     set,
		Routes:     DefaultRoutes(),
		QueryToken: map[string]struct{}{"/api/v1/alerts/stream": {}},
	}
}

// IsExempt reports whether a request skips authentication.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	_, ok := p.Exempt[r.URL.Path]
	return ok
}

// RequiredRole resolves the role for r; ok is false for paths outside the API.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	for _, rt := range p.Routes {
		if rt.matches(r) {
			return rt.Role, true
		}
	}
	if !strings.HasPrefix(r.URL.Path, "/api/") {
		return "", false
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return RoleViewer, true
	default:
		return RoleOperator, true
	}
}

func (p Policy) allowsQueryToken(r *http.Request) bool {
	_, ok := p.QueryToken[r.URL.Path]
	return ok
}
