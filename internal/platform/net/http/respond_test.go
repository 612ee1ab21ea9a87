package http_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	perr "mpak/internal/platform/errors"
	phttp "mpak/internal/platform/net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h http.HandlerFunc) (*httptest.ResponseRecorder, phttp.Envelope) {
	t.Helper()
	m := chi.NewRouter()
	m.Use(chimw.RequestID)
	m.Get("/", h)
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var env phttp.Envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHandle_Envelope(t *testing.T) {
	rec, env := serve(t, phttp.Handle(func(*http.Request) phttp.Response {
		return phttp.Created(map[string]string{"status": "created"})
	}))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, 201, env.StatusCode)
	assert.Equal(t, "Created", env.Status)
	assert.NotEmpty(t, env.RequestID)
	assert.Equal(t, map[string]any{"status": "created"}, env.Data)
}

func TestHandle_ErrorMasksInternals(t *testing.T) {
	rec, env := serve(t, phttp.Handle(func(*http.Request) phttp.Response {
		return phttp.Error(perr.Wrap(errors.New("dial tcp 10.0.0.5:5432"), perr.ErrorCodeDB, "lock package"))
	}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "db", env.Code)
	assert.Equal(t, perr.InternalMessage, env.Error)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")

	rec, env = serve(t, phttp.Handle(func(*http.Request) phttp.Response {
		return phttp.Error(perr.WithField(perr.Integrityf("sha256 mismatch"), "sha256"))
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "integrity", env.Code)
	assert.Equal(t, "sha256", env.Field)
}

func TestHandle_BareRedirectNoContent(t *testing.T) {
	rec, _ := serve(t, phttp.Handle(func(*http.Request) phttp.Response {
		return phttp.Bare(map[string]int{"total": 3})
	}))
	assert.JSONEq(t, `{"total":3}`, rec.Body.String())

	rec, _ = serve(t, phttp.Handle(func(*http.Request) phttp.Response {
		return phttp.Redirect("https://blobs.example/bundles/x.mcpb")
	}))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://blobs.example/bundles/x.mcpb", rec.Header().Get("Location"))

	rec, _ = serve(t, phttp.Handle(func(*http.Request) phttp.Response { return phttp.NoContent() }))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestCall(t *testing.T) {
	rec, env := serve(t, phttp.Call(func(*http.Request) (any, error) { return "ok", nil }))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", env.Data)

	rec, env = serve(t, phttp.Call(func(*http.Request) (any, error) { return nil, perr.NotFoundf("no such package") }))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no such package", env.Error)

	rec, _ = serve(t, phttp.Call(func(*http.Request) (any, error) { return phttp.NoContent(), nil }))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
