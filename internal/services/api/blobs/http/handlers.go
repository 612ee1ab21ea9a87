// Package http serves objects of the local blob backend behind signed urls
package http

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"mpak/internal/modkit/httpkit"
	perr "mpak/internal/platform/errors"
	"mpak/internal/platform/logger"
)

// Signed is the local store surface needed to serve a download
type Signed interface {
	Verify(key, exp, sig string) error
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
}

type handlers struct {
	store Signed
}

// Register mounts GET /* relative to the caller's prefix
func Register(r httpkit.Router, s Signed) {
	h := &handlers{store: s}
	r.Get("/*", h.serve)
}

func (h *handlers) serve(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(httpkit.Param(r, "*"))
	if err != nil || key == "" {
		httpkit.RespondError(w, r, perr.NotFoundf("object not found"))
		return
	}
	q := r.URL.Query()
	if err := h.store.Verify(key, q.Get("exp"), q.Get("sig")); err != nil {
		httpkit.RespondError(w, r, err)
		return
	}

	rc, size, err := h.store.Open(r.Context(), key)
	if err != nil {
		httpkit.RespondError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)}))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logger.C(r.Context()).Warn().Err(err).Str("key", key).Msg("blob stream interrupted")
	}
}
