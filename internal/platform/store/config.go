package store

import "time"

// Config aggregates per backend configuration
type Config struct {
	AppName string
	PG      PGConfig
	CH      CHConfig
}

// PGConfig configures postgres connectivity and tracing
type PGConfig struct {
	Enabled     bool
	URL         string
	MaxConns    int32
	LogSQL      bool
	SlowQueryMs int

	// ConnectRetries bounds startup pings; zero means 20
	ConnectRetries int
	// PingTimeout bounds each startup ping; zero means 3s
	PingTimeout time.Duration
}

// CHConfig configures clickhouse connectivity for download events
type CHConfig struct {
	Enabled bool
	URL     string
	Role    string
}
