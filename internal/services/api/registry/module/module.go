// Package module wires the publish pipeline and downloads for bundles and
// skills. Both kinds share one Announcer and one Resolver; each is mounted
// under its own prefix.
package module

import (
	"context"

	"mpak/internal/adapters/github"
	"mpak/internal/adapters/oidc"
	"mpak/internal/core/artifact"
	modkit "mpak/internal/modkit"
	"mpak/internal/modkit/httpkit"

	reghttp "mpak/internal/services/api/registry/http"
	"mpak/internal/services/registry/domain"
	"mpak/internal/services/registry/repo"
	"mpak/internal/services/registry/service"
)

// Ports are injected by the API composer; Scans may be nil
type Ports struct {
	Scans service.ScanTrigger
}

type Module struct {
	b     modkit.Built
	kinds []artifact.Kind
	svc   reghttp.Services
}

// New builds the registry module; deps.PG and deps.Blob are required
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("registry")}, opts...)...)
	switch {
	case deps.PG == nil:
		panic("registry module requires deps.PG")
	case deps.Blob == nil:
		panic("registry module requires deps.Blob")
	}
	injected, _ := b.Ports.(Ports)

	o := FromConfig(deps.Cfg)
	binder := repo.NewPG()

	ann := service.NewAnnouncer(service.AnnouncerDeps{
		Verifier:    oidc.New(context.Background(), o.OIDC),
		Releases:    github.NewClient(o.GitHub),
		Blobs:       deps.Blob,
		Coordinator: service.NewCoordinator(deps.PG, binder, o.Coordinator),
		Reconciler:  service.NewReconciler(deps.Blob, o.Cleanup),
		Scans:       injected.Scans,
		Spawner:     deps.Spawner(),
	}, o.Announcer)

	var events domain.EventSink
	if deps.CH != nil {
		events = repo.NewCHSink(deps.CH)
	}
	res := service.NewResolver(deps.PG, binder, deps.Blob, deps.Spawner(), events, o.URLTTL)

	return &Module{
		b:     b,
		kinds: []artifact.Kind{artifact.KindBundle, artifact.KindSkill},
		svc:   reghttp.Services{Announcer: ann, Resolver: res},
	}
}

// MountRoutes mounts /bundles and /skills
func (m *Module) MountRoutes(r httpkit.Router) {
	for _, k := range m.kinds {
		m.b.Mount(r, string(k)+"s", func(rr httpkit.Router) { reghttp.Register(rr, k, m.svc) })
	}
}

func (m *Module) Name() string { return m.b.Name }

// Ports exposes the announce and download services
func (m *Module) Ports() any { return m.svc }
