package router

import (
	"github.com/searchktools/tiny-server/core/http"
)

// Route is one registration. It is immutable once added.
type Route struct {
	Method  string
	Pattern string
	Matcher *Matcher
	Handler http.HandlerFunc
}

// Router matches requests against routes in registration order. Routes are
// added before serving starts and only read afterwards, so lookups take no
// locks.
type Router struct {
	routes []Route

	// method -> indexes into routes, in registration order
	byMethod map[string][]int
}

// New creates an empty router
func New() *Router {
	return &Router{
		byMethod: make(map[string][]int),
	}
}

// Add compiles pattern and appends the route. Duplicate (method, pattern)
// pairs are kept; the first one registered wins.
func (r *Router) Add(method, pattern string, handler http.HandlerFunc) error {
	m, err := Compile(pattern)
	if err != nil {
		return err
	}

	r.byMethod[method] = append(r.byMethod[method], len(r.routes))
	r.routes = append(r.routes, Route{
		Method:  method,
		Pattern: pattern,
		Matcher: m,
		Handler: handler,
	})
	return nil
}

// Find returns the first route of method matching path and its parameters,
// or nil. Methods compare case-sensitively.
func (r *Router) Find(method, path string) (*Route, map[string]string) {
	for _, i := range r.byMethod[method] {
		route := &r.routes[i]
		if params, ok := route.Matcher.Match(path); ok {
			return route, params
		}
	}
	return nil, nil
}

// Dispatch invokes the handler of the first matching route, or answers 404
// with an empty body.
func (r *Router) Dispatch(req *http.Request, res *http.Response) {
	route, params := r.Find(req.Method, req.Path)
	if route == nil {
		res.Status(404).Send()
		return
	}

	req.Params = params
	req.Pattern = route.Pattern
	route.Handler(req, res)
}

// Routes returns the registered routes in order.
func (r *Router) Routes() []Route {
	return append([]Route(nil), r.routes...)
}
