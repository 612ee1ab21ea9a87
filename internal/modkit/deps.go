package modkit

import (
	"mpak/internal/adapters/blob"
	"mpak/internal/modkit/repokit"
	"mpak/internal/platform/async"
	"mpak/internal/platform/config"
	"mpak/internal/platform/logger"
	"mpak/internal/platform/store"
)

// Deps holds the process-wide dependencies handed to every module.
// PG and Blob are required by the registry; CH is nil when download analytics are off.
type Deps struct {
	Log  logger.Logger
	Cfg  config.Conf
	PG   repokit.TxRunner
	CH   store.Clickhouse
	Blob blob.Store
	// Async runs detached best-effort work; nil means inline
	Async async.Spawner
}

// Spawner returns Async, or an inline runner when unset
func (d Deps) Spawner() async.Spawner {
	if d.Async == nil {
		return async.Inline{}
	}
	return d.Async
}
