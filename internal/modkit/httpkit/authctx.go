package httpkit

import (
	"net/http"

	perrs "mpak/internal/platform/errors"
	"mpak/internal/platform/net/middleware"
)

// Token returns the raw bearer token stored by the Bearer middleware,
// falling back to parsing the Authorization header
func Token(r *http.Request) (string, error) {
	if t := middleware.BearerToken(r.Context()); t != "" {
		return t, nil
	}
	if t, ok := middleware.ParseBearer(r.Header.Get("Authorization")); ok {
		return t, nil
	}
	return "", perrs.Unauthorizedf("missing bearer token")
}
