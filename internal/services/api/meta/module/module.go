// Package module mounts the health, readiness and version endpoints
package module

import (
	"time"

	"mpak/internal/adapters/blob"
	modkit "mpak/internal/modkit"
	"mpak/internal/modkit/httpkit"

	metahttp "mpak/internal/services/api/meta/http"
)

type Module struct {
	b    modkit.Built
	deps metahttp.Deps
}

// New builds the meta module; the uptime clock starts here
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("meta"),
		modkit.WithPrefix("/meta"),
	}, opts...)...)

	return &Module{b: b, deps: metahttp.Deps{
		ServiceName: "mpak-api",
		StartedAt:   time.Now(),
		PG:          deps.PG,
		CH:          deps.CH,
		BlobBackend: backendName(deps.Blob),
	}}
}

func (m *Module) MountRoutes(r httpkit.Router) {
	m.b.Mount(r, m.b.Prefix, func(rr httpkit.Router) { metahttp.Register(rr, m.deps) })
}

func (m *Module) Name() string { return m.b.Name }
func (m *Module) Ports() any { return nil }

func backendName(s blob.Store) string {
	switch s.(type) {
	case nil:
		return ""
	case *blob.Local:
		return "local"
	}
	return "s3"
}
