// Package http serves /meta: liveness, readiness against the databases, and build info
package http

import (
	"context"
	"net/http"
	"time"

	"mpak/internal/core/version"
	"mpak/internal/modkit/httpkit"
)

const readyTimeout = 2 * time.Second

// Deps are what the meta endpoints report on. PG and CH are checked only
// when they implement Ping; nil means not configured.
type Deps struct {
	ServiceName string
	StartedAt   time.Time
	PG          any
	CH          any
	BlobBackend string
}

type meta struct {
	Deps
	now func() time.Time
}

func Register(r httpkit.Router, d Deps) {
	m := &meta{Deps: d, now: time.Now}
	httpkit.Get(r, "/health", m.health)
	httpkit.Get(r, "/ready", m.ready)
	httpkit.Get(r, "/version", func(*http.Request) (any, error) { return version.Info(), nil })
	httpkit.Get(r, "/service", m.service)
}

type HealthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Started string `json:"started"`
	Now     string `json:"now"`
}

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func (m *meta) health(*http.Request) (any, error) {
	return HealthResponse{OK: true, Service: m.ServiceName, Started: stamp(m.StartedAt), Now: stamp(m.now())}, nil
}

// Check statuses
const (
	statusOK      = "ok"
	statusFail    = "fail"
	statusSkipped = "skipped"
	statusUnknown = "unknown"
	// overall only
	statusDegraded = "degraded"
)

type ReadyCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type ReadyResponse struct {
	Status string       `json:"status"`
	Checks []ReadyCheck `json:"checks"`
	Now    string       `json:"now"`
}

func checkDep(ctx context.Context, name string, dep any) ReadyCheck {
	c := ReadyCheck{Name: name, Status: statusUnknown}
	if dep == nil {
		c.Status = statusSkipped
		return c
	}
	p, ok := dep.(interface{ Ping(context.Context) error })
	if !ok {
		return c
	}
	if err := p.Ping(ctx); err != nil {
		c.Status, c.Error = statusFail, err.Error()
		return c
	}
	c.Status = statusOK
	return c
}

// ready fails when postgres is down and degrades when it is missing or
// unverifiable. Clickhouse only carries analytics, so skipping it is fine.
func (m *meta) ready(r *http.Request) (any, error) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	pg, ch := checkDep(ctx, "pg", m.PG), checkDep(ctx, "ch", m.CH)
	overall := statusOK
	if pg.Status == statusFail {
		overall = statusFail
	} else if pg.Status != statusOK || (ch.Status != statusOK && ch.Status != statusSkipped) {
		overall = statusDegraded
	}
	return ReadyResponse{Status: overall, Checks: []ReadyCheck{pg, ch}, Now: stamp(m.now())}, nil
}

type ServiceResponse struct {
	Name        string `json:"name"`
	Started     string `json:"started"`
	Uptime      int64  `json:"uptime"`
	BlobBackend string `json:"blob_backend,omitempty"`
}

func (m *meta) service(*http.Request) (any, error) {
	return ServiceResponse{
		Name:        m.ServiceName,
		Started:     stamp(m.StartedAt),
		Uptime:      int64(m.now().Sub(m.StartedAt).Seconds()),
		BlobBackend: m.BlobBackend,
	}, nil
}
