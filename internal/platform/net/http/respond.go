// Package http provides the chi-backed router seam, the server and helpers for
// writing JSON responses with a consistent envelope
package http

import (
	"encoding/json"
	stdhttp "net/http"

	pnet "mpak/internal/platform/net"
)

// Envelope is the standard response body for all endpoints
type Envelope = pnet.Envelope

// JSON writes v as application/json with the given status
func JSON(w stdhttp.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RespondError writes err as an error envelope; internal causes are masked
func RespondError(w stdhttp.ResponseWriter, r *stdhttp.Request, err error) {
	status, env := pnet.Error(err, pnet.RequestID(r.Context()))
	JSON(w, status, env)
}

// Response is what return-style handlers produce
type Response struct {
	Status int
	Body   any
	// Bare writes Body as-is, without the envelope
	Bare bool
	// Location, when set, turns the response into a redirect
	Location string
}

// Handle adapts a Response-returning handler to net/http
func Handle(h func(r *stdhttp.Request) Response) stdhttp.HandlerFunc {
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		h(r).write(w, r)
	}
}

// Call adapts a handler returning (data, error); data may itself be a Response
func Call(fn func(*stdhttp.Request) (any, error)) stdhttp.HandlerFunc {
	return Handle(func(r *stdhttp.Request) Response {
		out, err := fn(r)
		if err != nil {
			return Error(err)
		}
		if resp, ok := out.(Response); ok {
			return resp
		}
		return OK(out)
	})
}

func (resp Response) write(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	if err, ok := resp.Body.(error); ok && err != nil {
		RespondError(w, r, err)
		return
	}
	status := resp.Status
	if status == 0 {
		status = stdhttp.StatusOK
	}
	switch {
	case status == stdhttp.StatusNoContent:
		w.WriteHeader(status)
	case resp.Location != "":
		stdhttp.Redirect(w, r, resp.Location, status)
	case resp.Bare:
		JSON(w, status, resp.Body)
	default:
		JSON(w, status, pnet.Success(status, resp.Body, pnet.RequestID(r.Context())))
	}
}

// OK returns a 200 response
func OK(data any) Response { return Response{Status: stdhttp.StatusOK, Body: data} }

// Created returns a 201 response
func Created(data any) Response { return Response{Status: stdhttp.StatusCreated, Body: data} }

// NoContent returns a 204 response
func NoContent() Response { return Response{Status: stdhttp.StatusNoContent} }

// Error returns a response that maps the error to status and envelope
func Error(err error) Response { return Response{Body: err} }

// Bare returns a 200 response whose body is written without the envelope
func Bare(v any) Response { return Response{Status: stdhttp.StatusOK, Body: v, Bare: true} }

// Redirect returns a 302 to location
func Redirect(location string) Response {
	return Response{Status: stdhttp.StatusFound, Location: location}
}
