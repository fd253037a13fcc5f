// Package worker implements the background cache worker: a cache-first
// interceptor for image requests plus a prefetch command that warms the
// cache ahead of page loads.
//
// Each event (install, activate, message, fetch) is an explicit method.
// Work that must outlive the event call, such as a prefetch batch, is
// tracked by the worker and joined by Terminate.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ziadkadry99/foliocache/internal/cachestore"
	"github.com/ziadkadry99/foliocache/internal/fetch"
	"github.com/ziadkadry99/foliocache/internal/logging"
)

// DefaultCacheName is the cache version used when none is configured.
const DefaultCacheName = "work-images-v1"

var (
	// ErrNotActive is returned for events sent to a worker that is not active.
	ErrNotActive = errors.New("worker is not active")
	// ErrNoActiveWorker is returned when a registration has no active worker.
	ErrNoActiveWorker = errors.New("no active worker")
)

// State is a worker lifecycle state.
type State int

const (
	StateInstalling State = iota
	StateInstalled
	StateActivating
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a Worker.
type Options struct {
	// CacheName names the cache this worker reads and writes.
	CacheName string
	// Scope resolves relative prefetch URLs.
	Scope *url.URL
	// Classifier decides which requests are image traffic.
	Classifier *Classifier
	// IgnoreSearch drops query strings when matching intercepted requests.
	IgnoreSearch bool
	// SkipWaiting activates the worker as soon as it is installed.
	SkipWaiting bool
	// ClaimClients takes control of already-connected clients on activation.
	// Client control is bookkeeping for pages and for promoting a waiting
	// worker; HandleFetch does not consult it.
	ClaimClients bool
	// PruneStaleCaches deletes every other named cache on activation.
	PruneStaleCaches bool
	Observer         PrefetchObserver
	Logger           *slog.Logger
}

// Worker is one instance of the background cache worker.
type Worker struct {
	id      string
	opts    Options
	storage cachestore.Storage
	network fetch.Fetcher
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	extended sync.WaitGroup
	inflight atomic.Int64
}

// New creates a worker in the installing state. storage is the cache
// store handle and network performs every outgoing fetch.
func New(storage cachestore.Storage, network fetch.Fetcher, opts Options) *Worker {
	if opts.CacheName == "" {
		opts.CacheName = DefaultCacheName
	}
	if opts.Classifier == nil {
		opts.Classifier = NewClassifier(nil)
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	id := uuid.NewString()
	return &Worker{
		id:      id,
		opts:    opts,
		storage: storage,
		network: network,
		logger:  opts.Logger.With("worker", id[:8], "cache", opts.CacheName),
		state:   StateInstalling,
	}
}

// ID returns the worker's unique identifier.
func (w *Worker) ID() string { return w.id }

// CacheName returns the name of the cache the worker uses.
func (w *Worker) CacheName() string { return w.opts.CacheName }

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Busy reports whether the worker is handling any event.
func (w *Worker) Busy() bool { return w.inflight.Load() > 0 }

func (w *Worker) transition(from, to State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != from {
		return fmt.Errorf("worker %s: cannot move from %s to %s", w.id, w.state, to)
	}
	w.state = to
	return nil
}

// Install opens the worker's cache to make sure storage is usable.
func (w *Worker) Install(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateInstalling {
		st := w.state
		w.mu.Unlock()
		return fmt.Errorf("worker %s: install in state %s", w.id, st)
	}
	w.mu.Unlock()

	if _, err := w.storage.Open(ctx, w.opts.CacheName); err != nil {
		w.markTerminated()
		return fmt.Errorf("opening cache %s: %w", w.opts.CacheName, err)
	}
	if err := w.transition(StateInstalling, StateInstalled); err != nil {
		return err
	}
	w.logger.Debug("worker installed", "skip_waiting", w.opts.SkipWaiting)
	return nil
}

// Activate moves an installed worker to active, pruning stale caches
// first when configured to.
func (w *Worker) Activate(ctx context.Context) error {
	if err := w.transition(StateInstalled, StateActivating); err != nil {
		return err
	}

	if w.opts.PruneStaleCaches {
		w.pruneStaleCaches(ctx)
	}

	if err := w.transition(StateActivating, StateActive); err != nil {
		return err
	}
	w.logger.Info("worker active")
	return nil
}

func (w *Worker) pruneStaleCaches(ctx context.Context) {
	names, err := w.storage.Names(ctx)
	if err != nil {
		w.logger.Warn("listing caches for pruning", "error", err)
		return
	}
	for _, name := range names {
		if name == w.opts.CacheName {
			continue
		}
		if _, err := w.storage.Delete(ctx, name); err != nil {
			w.logger.Warn("deleting stale cache", "stale", name, "error", err)
			continue
		}
		w.logger.Info("deleted stale cache", "stale", name)
	}
}

// Terminate stops the worker from accepting events and waits for its
// extended work to finish. It returns ctx.Err() if ctx ends first; the
// outstanding work still runs to completion.
func (w *Worker) Terminate(ctx context.Context) error {
	w.markTerminated()

	done := make(chan struct{})
	go func() {
		w.extended.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Debug("worker terminated")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) markTerminated() {
	w.mu.Lock()
	w.state = StateTerminated
	w.mu.Unlock()
}

// begin registers one unit of extended work. It fails unless the worker is active.
func (w *Worker) begin() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateActive {
		return false
	}
	w.extended.Add(1)
	w.inflight.Add(1)
	return true
}

func (w *Worker) end() {
	w.inflight.Add(-1)
	w.extended.Done()
}

// HandleMessage handles a message posted by a page. Messages that are not
// a valid prefetch command are ignored and yield a finished Completion with
// no report. source identifies the sender in logs and batch records.
func (w *Worker) HandleMessage(ctx context.Context, source string, data []byte) *Completion {
	cmd, ok := ParseMessage(data)
	if !ok {
		w.logger.Debug("ignoring message", "source", source, "bytes", len(data))
		return completed(nil, nil)
	}
	return w.StartPrefetch(ctx, source, cmd.URLs)
}

// StartPrefetch runs a prefetch batch as extended work. The batch is
// detached from ctx cancellation and keeps the worker alive until it ends.
func (w *Worker) StartPrefetch(ctx context.Context, source string, urls []string) *Completion {
	if len(urls) == 0 {
		return completed(nil, nil)
	}
	if !w.begin() {
		return completed(nil, ErrNotActive)
	}

	c := newCompletion()
	batchCtx := context.WithoutCancel(ctx)
	go func() {
		defer w.end()
		report, err := w.prefetch(batchCtx, source, urls)
		c.finish(&report, err)
	}()
	return c
}

// HandleFetch offers an outgoing request to the worker. handled is false
// when the request is not intercepted and should go to the network
// untouched. When handled is true the caller must use resp, or answer with
// a gateway error if err is non-nil.
func (w *Worker) HandleFetch(ctx context.Context, req *fetch.Request) (resp *fetch.Response, handled bool, err error) {
	if req.Method != "" && req.Method != "GET" {
		return nil, false, nil
	}
	if !w.opts.Classifier.IsImage(req) {
		return nil, false, nil
	}
	if !w.begin() {
		return nil, false, nil
	}
	defer w.end()

	ctx = context.WithoutCancel(ctx)
	resp, err = w.cacheFirst(ctx, req)
	return resp, true, err
}

func (w *Worker) cacheFirst(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	log := w.logger.With("url", req.URL.Redacted())

	cache, err := w.storage.Open(ctx, w.opts.CacheName)
	if err != nil {
		log.Warn("opening cache, fetching uncached", "error", err)
		return w.network.Fetch(ctx, req)
	}

	cached, ok, err := cache.Match(ctx, req, cachestore.MatchOptions{IgnoreSearch: w.opts.IgnoreSearch})
	if err != nil {
		log.Warn("cache lookup failed, treating as miss", "error", err)
	}
	if ok {
		log.Debug("cache hit")
		return cached, nil
	}

	netReq := req.Clone()
	fetch.StripConditional(netReq.Header)

	fetched, err := w.network.Fetch(ctx, netReq)
	if err != nil {
		log.Debug("fetch failed, retrying uncached", "error", err)
		return w.network.Fetch(ctx, req)
	}

	if fetched.Cacheable() {
		if err := cache.Put(ctx, req, fetched); err != nil {
			log.Warn("storing response", "error", err)
		} else {
			log.Debug("cached", "status", fetched.StatusCode, "type", fetched.Type)
		}
	}
	return fetched, nil
}
