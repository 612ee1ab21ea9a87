package middleware

import (
	"context"
	"net/http"
	"strings"

	perr "mpak/internal/platform/errors"
	pnet "mpak/internal/platform/net"
)

type tokenKey struct{}

// BearerToken returns the token stored by Bearer, if any
func BearerToken(ctx context.Context) string {
	v, _ := ctx.Value(tokenKey{}).(string)
	return v
}

// WithBearerToken stores a raw bearer token on ctx
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// ParseBearer extracts the token from an Authorization header value
func ParseBearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Bearer requires an Authorization: Bearer header and stores the raw token on the context
// the token is only extracted here, verification belongs to the handler's service
func Bearer(write func(w http.ResponseWriter, status int, body any)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := ParseBearer(r.Header.Get("Authorization"))
			if !ok {
				status, body := pnet.Error(
					perr.Unauthorizedf("missing bearer token"),
					pnet.RequestID(r.Context()),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="mpak"`)
				write(w, status, body)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithBearerToken(r.Context(), token)))
		})
	}
}
