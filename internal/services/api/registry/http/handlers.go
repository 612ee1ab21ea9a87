// Package http is the publish and download transport for bundles and skills
package http

import (
	stdhttp "net/http"
	"net/url"
	"strings"

	"mpak/internal/core/artifact"
	"mpak/internal/modkit/httpkit"
	"mpak/internal/services/registry/domain"
)

// manifests and frontmatter are small; 1MB leaves room for both
const maxAnnounceBytes = 1 << 20

// Services are the registry ports the transport calls
type Services struct {
	Announcer domain.AnnouncerPort
	Resolver  domain.ResolverPort
}

// Register mounts announce and download for one artifact kind
func Register(r httpkit.Router, kind artifact.Kind, s Services) {
	h := &handlers{kind: kind, svc: s}
	httpkit.Protected(r, func(pr httpkit.Router) {
		pr.Post("/announce", httpkit.Handle(h.announce))
	})
	r.Get("/{scope}/{name}/versions/{version}/download", httpkit.Handle(h.download))
}

type handlers struct {
	kind artifact.Kind
	svc  Services
}

func (h *handlers) announce(r *stdhttp.Request) httpkit.Response {
	in, err := httpkit.ParseJSON[AnnounceRequest](r, httpkit.JSONOptions{MaxBytes: maxAnnounceBytes})
	if err != nil {
		return httpkit.Error(err)
	}
	token, err := httpkit.Token(r)
	if err != nil {
		return httpkit.Error(err)
	}
	out, err := h.svc.Announcer.Announce(r.Context(), h.kind, token, in.toDomain())
	if err != nil {
		return httpkit.Error(err)
	}
	return httpkit.Bare(out)
}

// download answers JSON clients with the reference and redirects everyone else
func (h *handlers) download(r *stdhttp.Request) httpkit.Response {
	q := r.URL.Query()
	dl, err := h.svc.Resolver.Resolve(r.Context(), h.kind, domain.ResolveInput{
		Name:    param(r, "scope") + "/" + param(r, "name"),
		Version: param(r, "version"),
		OS:      q.Get("os"),
		Arch:    q.Get("arch"),
	})
	if err != nil {
		return httpkit.Error(err)
	}
	if wantsJSON(r) {
		return httpkit.Bare(dl)
	}
	return httpkit.Redirect(dl.URL)
}

// param undoes escaping of "@" when the router matched the raw path
func param(r *stdhttp.Request, name string) string {
	v := httpkit.Param(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func wantsJSON(r *stdhttp.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Accept")), "application/json")
}
