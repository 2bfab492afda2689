package observe

import (
	"net/http"
	"slices"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Multiplexer interface {
	Handle(pattern string, handler http.Handler)
	http.Handler
}

// Mux traces each sidecar route under its pattern, so spans for
// /api/pages/42/master/docs/Home and /api/pages/7/main/Index share a name.
type Mux struct {
	wrapped Multiplexer
	routes  []Route
}

// Route is a registered pattern and whether it is traced.
type Route struct {
	Pattern  string
	Observed bool
}

func NewMux(wrapped Multiplexer) *Mux {
	return &Mux{
		wrapped: wrapped,
	}
}

func (mux *Mux) Handle(pattern string, handler http.Handler) {
	traced := otelhttp.NewHandler(
		handler,
		TrimMethod(pattern),
		otelhttp.WithSpanNameFormatter(spanName),
	)

	mux.routes = append(mux.routes, Route{Pattern: pattern, Observed: true})
	mux.wrapped.Handle(pattern, traced)
}

// HandleUnobserved registers a route that produces no spans or metrics.
func (mux *Mux) HandleUnobserved(pattern string, handler http.Handler) {
	mux.routes = append(mux.routes, Route{Pattern: pattern})
	mux.wrapped.Handle(pattern, handler)
}

// Routes lists the registered routes in registration order.
func (mux *Mux) Routes() []Route {
	return slices.Clone(mux.routes)
}

func (mux *Mux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux.wrapped.ServeHTTP(w, r)
}

func spanName(route string, r *http.Request) string {
	return r.Method + " " + route
}

var routeMethods = []string{
	http.MethodConnect,
	http.MethodDelete,
	http.MethodGet,
	http.MethodHead,
	http.MethodOptions,
	http.MethodPatch,
	http.MethodPost,
	http.MethodPut,
	http.MethodTrace,
}

// TrimMethod returns the path part of a ServeMux pattern.
func TrimMethod(pattern string) string {
	method, route, hasMethod := strings.Cut(pattern, " ")
	if hasMethod && slices.Contains(routeMethods, method) {
		return route
	}
	return pattern
}
