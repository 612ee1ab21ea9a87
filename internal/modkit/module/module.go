// Package module holds the module contract plus port discovery between modules
package module

import (
	phttp "mpak/internal/platform/net/http"
)

// Module mirrors modkit.Module so port lookups avoid an import cycle
type Module interface {
	MountRoutes(r phttp.Router)
	Ports() any
	Name() string
}
