// Package controller plays the page's part: it registers the cache worker
// and, on home-page loads, asks it to prefetch every manifest image.
package controller

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ziadkadry99/foliocache/internal/logging"
	"github.com/ziadkadry99/foliocache/internal/manifest"
	"github.com/ziadkadry99/foliocache/internal/worker"
)

// Source identifies messages posted by the controller.
const Source = "controller"

// ManifestLoader loads the work manifest.
type ManifestLoader interface {
	Load(ctx context.Context) (*manifest.Manifest, error)
}

// WorkerFactory builds a fresh, not yet installed worker.
type WorkerFactory func() *worker.Worker

// Options configures a Controller.
type Options struct {
	// HomePaths are extra path suffixes that count as the home page.
	HomePaths []string
	// Delay is how long to wait after the manifest loads before posting
	// the prefetch message.
	Delay  time.Duration
	Logger *slog.Logger
}

// Controller drives worker registration and home-page precaching.
type Controller struct {
	reg       *worker.Registration
	newWorker WorkerFactory
	loader    ManifestLoader
	homePaths []string
	delay     time.Duration
	logger    *slog.Logger

	registerMu sync.Mutex
	inflight   atomic.Bool
	pending    sync.WaitGroup
}

// New creates a Controller.
func New(reg *worker.Registration, newWorker WorkerFactory, loader ManifestLoader, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	paths := make([]string, 0, len(opts.HomePaths))
	for _, p := range opts.HomePaths {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			paths = append(paths, p)
		}
	}
	return &Controller{
		reg:       reg,
		newWorker: newWorker,
		loader:    loader,
		homePaths: paths,
		delay:     opts.Delay,
		logger:    opts.Logger,
	}
}

// RegisterWorker registers a new worker unless one is already active or
// waiting. Failures are logged and swallowed.
func (c *Controller) RegisterWorker(ctx context.Context) {
	c.registerMu.Lock()
	defer c.registerMu.Unlock()

	if c.reg.Active() != nil || c.reg.Waiting() != nil {
		return
	}
	if err := c.reg.Register(ctx, c.newWorker()); err != nil {
		c.logger.Debug("worker registration failed", "error", err)
	}
}

// IsHomePath reports whether path is the portfolio's home page.
func (c *Controller) IsHomePath(path string) bool {
	p := strings.ToLower(path)
	if p == "" || strings.HasSuffix(p, "/") || strings.HasSuffix(p, "/index.html") {
		return true
	}
	for _, suffix := range c.homePaths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// PrecacheHome registers the worker, loads the manifest and, after the
// configured delay, posts a prefetch message listing every image. It does
// nothing unless pageURL is the home page. Only one pass runs at a time;
// overlapping calls return nil immediately. The returned completion is nil
// when no message was posted.
func (c *Controller) PrecacheHome(ctx context.Context, pageURL string) *worker.Completion {
	u, err := url.Parse(pageURL)
	if err != nil || !c.IsHomePath(u.Path) {
		return nil
	}
	if !c.inflight.CompareAndSwap(false, true) {
		c.logger.Debug("precache already running", "page", pageURL)
		return nil
	}
	defer c.inflight.Store(false)

	c.RegisterWorker(ctx)

	m, err := c.loader.Load(ctx)
	if err != nil {
		c.logger.Warn("loading manifest", "error", err)
		return nil
	}
	urls := m.ImageURLs()
	if len(urls) == 0 {
		return nil
	}

	if c.delay > 0 {
		t := time.NewTimer(c.delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil
		}
	}

	msg, err := worker.NewPrefetchMessage(urls)
	if err != nil {
		c.logger.Warn("encoding prefetch message", "error", err)
		return nil
	}
	done, err := c.reg.PostMessage(ctx, Source, msg)
	if err != nil {
		c.logger.Debug("posting prefetch message", "error", err)
		return nil
	}
	c.logger.Debug("prefetch requested", "page", pageURL, "images", len(urls))
	return done
}

// OnPageLoad runs PrecacheHome in the background for a page navigation.
func (c *Controller) OnPageLoad(pageURL string) {
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		c.PrecacheHome(context.Background(), pageURL)
	}()
}

// Wait blocks until background page-load work has finished.
func (c *Controller) Wait() {
	c.pending.Wait()
}
