package httpkit

import "net/http"

// Middlewares is an ordered middleware chain
type Middlewares = []func(http.Handler) http.Handler

// MountUnder mounts a subrouter at prefix with its own middleware
func MountUnder(r Router, prefix string, mw Middlewares, mount func(Router)) {
	r.Route(prefix, func(sub Router) {
		if len(mw) > 0 {
			sub.Use(mw...)
		}
		mount(sub)
	})
}

// MountAPIV1 mounts the versioned API root, /v1
func MountAPIV1(r Router, mw Middlewares, mount func(Router)) {
	MountUnder(r, "/v1", mw, mount)
}

// Protected groups routes that need an Authorization: Bearer header;
// handlers read the token with Token
func Protected(r Router, fn func(Router)) {
	r.Group(func(gr Router) {
		gr.Use(Bearer())
		fn(gr)
	})
}
