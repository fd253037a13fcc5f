package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/foliocache/internal/cachestore"
	"github.com/ziadkadry99/foliocache/internal/fetch"
)

// Outcome is what happened to one URL of a prefetch batch.
type Outcome string

const (
	// OutcomeHit means the URL was already cached and was skipped.
	OutcomeHit Outcome = "hit"
	// OutcomeStored means the URL was fetched and written to the cache.
	OutcomeStored Outcome = "stored"
	// OutcomeRejected means the response was neither OK nor opaque.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means the URL could not be built, looked up, fetched or stored.
	OutcomeFailed Outcome = "failed"
)

// PrefetchReport summarises one prefetch batch.
type PrefetchReport struct {
	BatchID    string    `json:"batch_id"`
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

// Processed is the number of URLs handled so far.
func (r PrefetchReport) Processed() int {
	return r.Hits + r.Stored + r.Rejected + r.Failed
}

func (r *PrefetchReport) count(o Outcome) {
	switch o {
	case OutcomeHit:
		r.Hits++
	case OutcomeStored:
		r.Stored++
	case OutcomeRejected:
		r.Rejected++
	default:
		r.Failed++
	}
}

// PrefetchObserver receives progress of prefetch batches. Calls for one
// batch come from a single goroutine, in order.
type PrefetchObserver interface {
	PrefetchStarted(report PrefetchReport)
	PrefetchProgress(report PrefetchReport, url string, outcome Outcome)
	PrefetchFinished(report PrefetchReport)
}

// NopObserver ignores all prefetch events.
type NopObserver struct{}

func (NopObserver) PrefetchStarted(PrefetchReport)                   {}
func (NopObserver) PrefetchProgress(PrefetchReport, string, Outcome) {}
func (NopObserver) PrefetchFinished(PrefetchReport)                  {}

// Observers fans prefetch events out to several observers.
type Observers []PrefetchObserver

func (o Observers) PrefetchStarted(r PrefetchReport) {
	for _, obs := range o {
		obs.PrefetchStarted(r)
	}
}

func (o Observers) PrefetchProgress(r PrefetchReport, url string, outcome Outcome) {
	for _, obs := range o {
		obs.PrefetchProgress(r, url, outcome)
	}
}

func (o Observers) PrefetchFinished(r PrefetchReport) {
	for _, obs := range o {
		obs.PrefetchFinished(r)
	}
}

// prefetch warms the cache with urls one at a time. Failures are counted,
// never retried, and never abort the batch.
func (w *Worker) prefetch(ctx context.Context, source string, urls []string) (PrefetchReport, error) {
	report := PrefetchReport{
		BatchID:   uuid.NewString(),
		CacheName: w.opts.CacheName,
		Source:    source,
		Requested: len(urls),
		StartedAt: time.Now().UTC(),
	}
	log := w.logger.With("batch", report.BatchID, "source", source)
	w.opts.Observer.PrefetchStarted(report)

	cache, err := w.storage.Open(ctx, w.opts.CacheName)
	if err != nil {
		report.Failed = len(urls)
		report.FinishedAt = time.Now().UTC()
		log.Warn("prefetch could not open cache", "error", err)
		w.opts.Observer.PrefetchFinished(report)
		return report, err
	}

	for _, raw := range urls {
		outcome := w.prefetchOne(ctx, cache, raw)
		report.count(outcome)
		w.opts.Observer.PrefetchProgress(report, raw, outcome)
	}

	report.FinishedAt = time.Now().UTC()
	log.Info("prefetch finished",
		"requested", report.Requested,
		"hits", report.Hits,
		"stored", report.Stored,
		"rejected", report.Rejected,
		"failed", report.Failed,
		"took", report.FinishedAt.Sub(report.StartedAt),
	)
	w.opts.Observer.PrefetchFinished(report)
	return report, nil
}

func (w *Worker) prefetchOne(ctx context.Context, cache cachestore.Cache, raw string) Outcome {
	req, err := fetch.NewRequest(raw, w.opts.Scope,
		fetch.WithMode(fetch.ModeNoCORS),
		fetch.WithCache(fetch.CacheReload),
	)
	if err != nil {
		w.logger.Debug("prefetch skipped bad url", "url", raw, "error", err)
		return OutcomeFailed
	}

	if _, ok, err := cache.Match(ctx, req, cachestore.MatchOptions{}); err != nil {
		w.logger.Debug("prefetch lookup failed", "url", req.URL.Redacted(), "error", err)
		return OutcomeFailed
	} else if ok {
		return OutcomeHit
	}

	resp, err := w.network.Fetch(ctx, req)
	if err != nil {
		w.logger.Debug("prefetch fetch failed", "url", req.URL.Redacted(), "error", err)
		return OutcomeFailed
	}
	if !resp.Cacheable() {
		w.logger.Debug("prefetch response not cacheable", "url", req.URL.Redacted(), "status", resp.StatusCode)
		return OutcomeRejected
	}
	if err := cache.Put(ctx, req, resp); err != nil {
		w.logger.Debug("prefetch store failed", "url", req.URL.Redacted(), "error", err)
		return OutcomeFailed
	}
	return OutcomeStored
}
