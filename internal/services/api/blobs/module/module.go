// Package module serves signed downloads for the local blob backend. With
// the s3 backend clients go straight to presigned URLs and nothing is mounted.
package module

import (
	"mpak/internal/adapters/blob"
	modkit "mpak/internal/modkit"
	"mpak/internal/modkit/httpkit"

	blobshttp "mpak/internal/services/api/blobs/http"
)

type Module struct {
	b     modkit.Built
	local *blob.Local
}

func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("blobs"),
		modkit.WithPrefix("/blobs"),
	}, opts...)...)
	local, _ := deps.Blob.(*blob.Local)
	return &Module{b: b, local: local}
}

func (m *Module) MountRoutes(r httpkit.Router) {
	if m.local == nil {
		return
	}
	m.b.Mount(r, m.b.Prefix, func(rr httpkit.Router) { blobshttp.Register(rr, m.local) })
}

func (m *Module) Name() string { return m.b.Name }
func (m *Module) Ports() any { return nil }
