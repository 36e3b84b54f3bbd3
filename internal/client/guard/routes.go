package guard

import (
	"net/url"
	"strings"
)

// Route names of the navigation surface.
const (
	RouteLogin          = "login"
	RouteRegister       = "register"
	RouteVerifyEmail    = "verify-email"
	RouteForgotPassword = "forgot-password"
	RouteResetPassword  = "reset-password"
	RouteOnboarding     = "onboarding"
	RouteDashboard      = "dashboard"
)

// Route is a matched navigation target.
type Route struct {
	// Name is one of the Route* constants, or "" for an unmatched path.
	Name  string
	Path  string
	Class Class

	// Params holds path parameters (uid and token for reset-password).
	Params map[string]string
	Query  url.Values
}

type pattern struct {
	name     string
	segments []string
	class    Class
}

var patterns = []pattern{
	{RouteLogin, []string{"login"}, ClassPublic},
	{RouteRegister, []string{"register"}, ClassPublic},
	{RouteVerifyEmail, []string{"verify-email"}, ClassPublic},
	{RouteForgotPassword, []string{"forgot-password"}, ClassPublic},
	{RouteResetPassword, []string{"reset-password", ":uid", ":token"}, ClassPublic},
	{RouteOnboarding, []string{"onboarding"}, ClassOnboardingOnly},
	{RouteDashboard, []string{"dashboard"}, ClassProtected},
}

// Match resolves raw (path plus optional query) to a Route. Unmatched
// paths, including "/", are protected.
func Match(raw string) Route {
	u, err := url.Parse(raw)
	if err != nil {
		return Route{Path: raw, Class: ClassProtected, Query: url.Values{}}
	}

	path := "/" + strings.Trim(u.Path, "/")
	r := Route{Path: path, Class: ClassProtected, Query: u.Query()}

	segs := splitPath(path)
	for _, p := range patterns {
		if params, ok := p.match(segs); ok {
			r.Name = p.name
			r.Class = p.class
			r.Params = params
			return r
		}
	}
	return r
}

func (p pattern) match(segs []string) (map[string]string, bool) {
	if len(segs) != len(p.segments) {
		return nil, false
	}
	var params map[string]string
	for i, want := range p.segments {
		if strings.HasPrefix(want, ":") {
			if params == nil {
				params = map[string]string{}
			}
			params[want[1:]] = segs[i]
			continue
		}
		if segs[i] != want {
			return nil, false
		}
	}
	return params, true
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
