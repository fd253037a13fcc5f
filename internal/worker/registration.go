package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/foliocache/internal/logging"
)

// ClientInfo describes a connected page.
type ClientInfo struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Controller  string    `json:"controller,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Controlled reports whether a worker controls the client.
func (c ClientInfo) Controlled() bool { return c.Controller != "" }

type client struct {
	id          string
	url         string
	controller  *Worker
	connectedAt time.Time
}

func (c *client) info() ClientInfo {
	ci := ClientInfo{ID: c.id, URL: c.url, ConnectedAt: c.connectedAt}
	if c.controller != nil {
		ci.Controller = c.controller.ID()
	}
	return ci
}

// Registration tracks the active and waiting workers for one scope and
// the pages (clients) they control.
type Registration struct {
	logger *slog.Logger

	mu      sync.Mutex
	active  *Worker
	waiting *Worker
	clients map[string]*client
	retired sync.WaitGroup
}

// NewRegistration creates an empty registration.
func NewRegistration(logger *slog.Logger) *Registration {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registration{
		logger:  logger,
		clients: make(map[string]*client),
	}
}

// Active returns the active worker, or nil.
func (r *Registration) Active() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Waiting returns the installed worker waiting to activate, or nil.
func (r *Registration) Waiting() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

// Register installs w and activates it right away if it skips waiting or
// nothing is active. Otherwise w waits until no client is controlled by
// the current active worker.
func (r *Registration) Register(ctx context.Context, w *Worker) error {
	if err := w.Install(ctx); err != nil {
		return fmt.Errorf("installing worker: %w", err)
	}

	r.mu.Lock()
	if r.active != nil && !w.opts.SkipWaiting {
		prev := r.waiting
		r.waiting = w
		r.mu.Unlock()
		r.retire(prev)
		r.logger.Info("worker installed, waiting for clients to close", "worker", w.ID())
		return r.maybePromote(ctx)
	}
	r.mu.Unlock()
	return r.promote(ctx, w)
}

func (r *Registration) promote(ctx context.Context, w *Worker) error {
	if err := w.Activate(ctx); err != nil {
		r.mu.Lock()
		if r.waiting == w {
			r.waiting = nil
		}
		r.mu.Unlock()
		w.markTerminated()
		return fmt.Errorf("activating worker: %w", err)
	}

	r.mu.Lock()
	old := r.active
	r.active = w
	var staleWaiting *Worker
	if r.waiting != nil && r.waiting != w {
		staleWaiting = r.waiting
	}
	r.waiting = nil
	claimed := 0
	for _, c := range r.clients {
		switch {
		case w.opts.ClaimClients:
			c.controller = w
			claimed++
		case c.controller == old:
			c.controller = nil
		}
	}
	r.mu.Unlock()

	if claimed > 0 {
		r.logger.Info("worker claimed clients", "worker", w.ID(), "clients", claimed)
	}
	if old != w {
		r.retire(old)
	}
	r.retire(staleWaiting)
	return nil
}

// maybePromote activates the waiting worker if no client still depends on
// the active one.
func (r *Registration) maybePromote(ctx context.Context) error {
	r.mu.Lock()
	w := r.waiting
	if w == nil || r.controlledLocked(r.active) > 0 {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()
	return r.promote(ctx, w)
}

func (r *Registration) controlledLocked(w *Worker) int {
	if w == nil {
		return 0
	}
	n := 0
	for _, c := range r.clients {
		if c.controller == w {
			n++
		}
	}
	return n
}

// retire terminates w in the background so its extended work can finish.
func (r *Registration) retire(w *Worker) {
	if w == nil {
		return
	}
	r.retired.Add(1)
	go func() {
		defer r.retired.Done()
		if err := w.Terminate(context.Background()); err != nil {
			r.logger.Warn("terminating worker", "worker", w.ID(), "error", err)
		}
	}()
}

// Connect records a new page and hands it to the active worker, if any.
func (r *Registration) Connect(pageURL string) ClientInfo {
	c := &client{
		id:          uuid.NewString(),
		url:         pageURL,
		connectedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	c.controller = r.active
	r.clients[c.id] = c
	info := c.info()
	r.mu.Unlock()
	return info
}

// Disconnect forgets a page. A waiting worker is promoted once the
// active worker controls no more pages.
func (r *Registration) Disconnect(ctx context.Context, id string) {
	r.mu.Lock()
	delete(r.clients, id)
	r.mu.Unlock()

	if err := r.maybePromote(ctx); err != nil {
		r.logger.Warn("promoting waiting worker", "error", err)
	}
}

// Client returns the page with the given id.
func (r *Registration) Client(id string) (ClientInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return ClientInfo{}, false
	}
	return c.info(), true
}

// Clients lists connected pages in connection order.
func (r *Registration) Clients() []ClientInfo {
	r.mu.Lock()
	out := make([]ClientInfo, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c.info())
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// PostMessage delivers a page message to the active worker.
func (r *Registration) PostMessage(ctx context.Context, source string, data []byte) (*Completion, error) {
	w := r.Active()
	if w == nil {
		return nil, ErrNoActiveWorker
	}
	return w.HandleMessage(ctx, source, data), nil
}

// Unregister terminates every worker and waits for their extended work.
func (r *Registration) Unregister(ctx context.Context) error {
	r.mu.Lock()
	active, waiting := r.active, r.waiting
	r.active, r.waiting = nil, nil
	for _, c := range r.clients {
		c.controller = nil
	}
	r.mu.Unlock()

	r.retire(active)
	r.retire(waiting)

	done := make(chan struct{})
	go func() {
		r.retired.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
