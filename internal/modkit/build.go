package modkit

import (
	"net/http"

	"mpak/internal/modkit/httpkit"
	pstrings "mpak/internal/platform/strings"
)

// Option tunes Build
type Option func(*Built)

// Built is the resolved module configuration
type Built struct {
	Name   string
	Prefix string
	Mw     httpkit.Middlewares
	// Ports are injected from other modules; the concrete type belongs to the receiver
	Ports any
	// Subrouter may wrap the module router, e.g. to add a group
	Subrouter func(httpkit.Router) httpkit.Router
	// Register attaches extra routes next to the module's own
	Register func(httpkit.Router)
}

// Build applies opts over identity and no-op hooks
func Build(opts ...Option) Built {
	b := Built{
		Subrouter: func(r httpkit.Router) httpkit.Router { return r },
		Register:  func(httpkit.Router) {},
	}
	for _, o := range opts {
		o(&b)
	}
	b.Mw = append(httpkit.Middlewares(nil), b.Mw...)
	return b
}

// WithName names the module for logs and the port registry
func WithName(name string) Option { return func(b *Built) { b.Name = name } }

// WithPrefix mounts the module under prefix
func WithPrefix(prefix string) Option { return func(b *Built) { b.Prefix = prefix } }

// WithMiddlewares appends per-module middleware, outermost first
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(b *Built) { b.Mw = append(b.Mw, mw...) }
}

// WithPorts injects ports declared by another module
func WithPorts[T any](p T) Option { return func(b *Built) { b.Ports = p } }

// WithSubrouter replaces the identity subrouter
func WithSubrouter(fn func(httpkit.Router) httpkit.Router) Option {
	return func(b *Built) { b.Subrouter = fn }
}

// WithRegister attaches extra routes to the module router
func WithRegister(fn func(httpkit.Router)) Option { return func(b *Built) { b.Register = fn } }

// Mount routes a module under prefix: the module middleware first, then the
// subrouter, then routes and finally any WithRegister extras
func (b Built) Mount(r httpkit.Router, prefix string, routes func(httpkit.Router)) {
	httpkit.MountUnder(r, pstrings.MustPrefix(prefix), b.Mw, func(rr httpkit.Router) {
		if b.Subrouter != nil {
			rr = b.Subrouter(rr)
		}
		routes(rr)
		if b.Register != nil {
			b.Register(rr)
		}
	})
}
