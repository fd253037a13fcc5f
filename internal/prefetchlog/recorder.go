package prefetchlog

import (
	"context"
	"log/slog"

	"github.com/ziadkadry99/foliocache/internal/logging"
	"github.com/ziadkadry99/foliocache/internal/worker"
)

// Recorder persists every finished prefetch batch. It implements
// worker.PrefetchObserver.
type Recorder struct {
	worker.NopObserver
	store  *Store
	logger *slog.Logger
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Recorder{store: store, logger: logger}
}

// PrefetchFinished stores the batch summary. Storage errors are logged and
// never reach the worker.
func (r *Recorder) PrefetchFinished(report worker.PrefetchReport) {
	if err := r.store.Record(context.Background(), FromReport(report)); err != nil {
		r.logger.Warn("recording prefetch batch", "batch", report.BatchID, "error", err)
	}
}
