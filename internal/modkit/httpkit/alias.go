// Package httpkit is the HTTP surface modules program against, so they never
// import internal/platform/net/http directly
package httpkit

import (
	"net/http"

	phttp "mpak/internal/platform/net/http"
	"mpak/internal/platform/net/http/bind"

	"github.com/go-chi/chi/v5"
)

type (
	// Response is what Handle-style handlers return
	Response = phttp.Response

	// Handler is the platform handler type
	Handler = phttp.Handler

	// Router is the platform routing seam
	Router = phttp.Router

	// JSONOptions tunes ParseJSON
	JSONOptions = bind.JSONOptions
)

// OK returns a 200 enveloped response
func OK(data any) Response { return phttp.OK(data) }

// Bare returns a 200 response written without the envelope
func Bare(v any) Response { return phttp.Bare(v) }

// Redirect returns a 302 response
func Redirect(location string) Response { return phttp.Redirect(location) }

// Error returns a response that maps err to its status and error envelope
func Error(err error) Response { return phttp.Error(err) }

// Handle adapts a Response-returning function
func Handle(fn func(*http.Request) Response) Handler { return phttp.Handle(fn) }

// Get mounts a body-less GET handler whose result is enveloped
func Get(r Router, path string, h func(*http.Request) (any, error)) { r.Get(path, phttp.Call(h)) }

// ParseJSON decodes and validates the request body into T
func ParseJSON[T any](r *http.Request, opts ...JSONOptions) (T, error) {
	return bind.ParseJSON[T](r, opts...)
}

// Param returns a path parameter captured by the router
func Param(r *http.Request, name string) string { return chi.URLParam(r, name) }

// RespondError writes err with the standard error envelope,
// for raw handlers that stream their own success bodies
func RespondError(w http.ResponseWriter, r *http.Request, err error) { phttp.RespondError(w, r, err) }
