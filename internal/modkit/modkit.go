// Package modkit wires API modules: shared deps in, routes and ports out
package modkit

import (
	phttp "mpak/internal/platform/net/http"
)

// Module is the surface every API module exposes to the composition root
type Module interface {
	// MountRoutes mounts the module's routes on r
	MountRoutes(r phttp.Router)
	// Ports returns what the module offers other modules
	Ports() any
	Name() string
}
