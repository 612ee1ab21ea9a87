// Package http is the scanner callback transport
package http

import (
	stdhttp "net/http"

	"mpak/internal/modkit/httpkit"
	"mpak/internal/services/scans/domain"
)

// SecretHeader carries the pre-shared callback secret
const SecretHeader = "X-Callback-Secret"

// reports carry full findings lists
const maxCallbackBytes = 8 << 20

// Register mounts the callback route
func Register(r httpkit.Router, c domain.CorrelatorPort) {
	h := &handlers{svc: c}
	r.Post("/", httpkit.Handle(h.callback))
}

type handlers struct{ svc domain.CorrelatorPort }

// callback answers {success} without the envelope; scanners only read that field
func (h *handlers) callback(r *stdhttp.Request) httpkit.Response {
	in, err := httpkit.ParseJSON[domain.CallbackInput](r, httpkit.JSONOptions{MaxBytes: maxCallbackBytes})
	if err != nil {
		return httpkit.Error(err)
	}
	out, err := h.svc.Callback(r.Context(), r.Header.Get(SecretHeader), in)
	if err != nil {
		return httpkit.Error(err)
	}
	return httpkit.Bare(out)
}
