// Package module wires scan correlation into the API: the scanner callback
// route, and the Trigger port the registry module fires after a publish
package module

import (
	"context"

	modkit "mpak/internal/modkit"
	"mpak/internal/modkit/httpkit"

	"mpak/internal/adapters/scanjob"
	scanshttp "mpak/internal/services/api/scans/http"
	"mpak/internal/services/scans/repo"
	"mpak/internal/services/scans/service"
)

// Trigger starts a scan for a committed artifact
type Trigger interface {
	Trigger(ctx context.Context, versionID, storageKey string) error
}

// Ports exposes the scan trigger; Trigger is nil when scanning is disabled
type Ports struct {
	Trigger Trigger
}

type Module struct {
	b     modkit.Built
	corr  *service.Correlator
	ports Ports
}

// New builds the scans module. The callback route is always mounted so a
// scanner finishing after scanning was switched off can still report.
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("scans"),
		modkit.WithPrefix("/scan-results"),
	}, opts...)...)

	o := FromConfig(deps.Cfg)
	var jobs service.Submitter
	if o.Enabled {
		d, err := scanjob.New(o.Job)
		if err != nil {
			panic("scans module: " + err.Error())
		}
		jobs = d
	}

	m := &Module{b: b, corr: service.New(deps.PG, repo.NewPG(), jobs, service.Config{
		Bucket:         o.Bucket,
		CallbackSecret: o.Job.CallbackSecret,
	})}
	if o.Enabled {
		m.ports.Trigger = m.corr
	}
	return m
}

func (m *Module) MountRoutes(r httpkit.Router) {
	m.b.Mount(r, m.b.Prefix, func(rr httpkit.Router) { scanshttp.Register(rr, m.corr) })
}

func (m *Module) Name() string { return m.b.Name }

// Ports implements modkit.Module
func (m *Module) Ports() any { return m.ports }
