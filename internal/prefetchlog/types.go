package prefetchlog

import (
	"time"

	"github.com/ziadkadry99/foliocache/internal/worker"
)

// Batch is the persisted summary of one prefetch run.
type Batch struct {
	ID         string    `json:"id"`
	CacheName  string    `json:"cache_name"`
	Source     string    `json:"source"`
	Requested  int       `json:"requested"`
	Hits       int       `json:"hits"`
	Stored     int       `json:"stored"`
	Rejected   int       `json:"rejected"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// FromReport converts a finished worker report into a Batch.
func FromReport(r worker.PrefetchReport) Batch {
	return Batch{
		ID:         r.BatchID,
		CacheName:  r.CacheName,
		Source:     r.Source,
		Requested:  r.Requested,
		Hits:       r.Hits,
		Stored:     r.Stored,
		Rejected:   r.Rejected,
		Failed:     r.Failed,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// Duration is how long the batch ran.
func (b Batch) Duration() time.Duration {
	return b.FinishedAt.Sub(b.StartedAt)
}
