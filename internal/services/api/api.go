// Package api provides the HTTP API for the registry
package api

import (
	"time"

	"mpak/internal/adapters/blob"
	"mpak/internal/platform/async"
	"mpak/internal/platform/config"
	"mpak/internal/platform/logger"
	phttp "mpak/internal/platform/net/http"
	"mpak/internal/platform/store"

	"mpak/internal/modkit"
	"mpak/internal/modkit/httpkit"
	"mpak/internal/modkit/module"

	blobsmod "mpak/internal/services/api/blobs/module"
	metamod "mpak/internal/services/api/meta/module"
	registrymod "mpak/internal/services/api/registry/module"
	scansmod "mpak/internal/services/api/scans/module"
)

// Options are the API options
type Options struct {
	// Config is the root view; modules pick their own prefixes
	Config         config.Conf
	Store          *store.Store
	Blob           blob.Store
	Async          async.Spawner
	Logger         *logger.Logger
	EnableProfiler bool
}

// Mount mounts the API service onto the given router
func Mount(r phttp.Router, opt Options) {
	deps := modkit.Deps{
		Cfg:   opt.Config,
		PG:    opt.Store.PG,
		CH:    opt.Store.CH,
		Blob:  opt.Blob,
		Async: opt.Async,
	}
	if opt.Logger != nil {
		deps.Log = *opt.Logger
	}

	// scans first; the registry fires its Trigger after every publish
	scans := scansmod.New(deps)
	trig := module.MustPortsOf[scansmod.Ports](scans).Trigger
	if trig == nil {
		logger.Named("api").Info().Msg("security scanning disabled")
	} else if _, local := opt.Blob.(*blob.Local); local {
		logger.Named("api").Warn().Msg("scanning is enabled but blobs are local; the scanner cannot reach them")
	}

	regPorts := registrymod.Ports{}
	if trig != nil {
		regPorts.Scans = trig
	}

	mods := []module.Module{
		metamod.New(deps),
		registrymod.New(deps, modkit.WithPorts(regPorts)),
		scans,
		blobsmod.New(deps),
	}

	apiCfg := opt.Config.Prefix("CORE_API_")
	stack := httpkit.CommonStack(httpkit.StackOptions{
		CORSOrigins: apiCfg.MayCSV("CORS_ORIGINS", nil),
		// announce streams a whole release asset before replying
		Timeout: apiCfg.MayDuration("REQUEST_TIMEOUT", 15*time.Minute),
		SlowLog: apiCfg.MayDuration("SLOW_LOG", 500*time.Millisecond),
	})

	phttp.MountProfiler(r, "/debug", opt.EnableProfiler)
	httpkit.MountAPIV1(r, stack, func(api httpkit.Router) {
		for _, m := range mods {
			module.Register(m.Name(), m.Ports())
			m.MountRoutes(api)
		}
	})
}
