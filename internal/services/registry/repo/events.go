package repo

import (
	"context"

	"mpak/internal/platform/store"
	"mpak/internal/services/registry/domain"
)

const downloadEventsTable = "download_events"

// CHSink appends download events to ClickHouse
type CHSink struct{ ch store.Clickhouse }

// NewCHSink wraps a ClickHouse seam
func NewCHSink(ch store.Clickhouse) *CHSink { return &CHSink{ch: ch} }

// DownloadEvent implements domain.EventSink
func (s *CHSink) DownloadEvent(ctx context.Context, ev domain.DownloadEvent) error {
	size := uint64(0)
	if ev.Size > 0 {
		size = uint64(ev.Size)
	}
	return s.ch.Insert(ctx, downloadEventsTable, [][]any{{
		ev.At.UTC(), string(ev.Kind), ev.Package, ev.Version,
		ev.Platform.OS, ev.Platform.Arch, size, ev.RequestID,
	}})
}
