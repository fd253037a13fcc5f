// Package channel lets pages talk to the cache worker over a websocket or
// plain HTTP.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/foliocache/internal/logging"
	"github.com/ziadkadry99/foliocache/internal/worker"
)

// MaxMessageBytes bounds a single page message.
const MaxMessageBytes = 1 << 20

const writeWait = 10 * time.Second

// SourceAPI identifies messages posted over HTTP.
const SourceAPI = "api"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Frame types sent to pages.
const (
	FrameClient       = "CLIENT"
	FramePrefetchDone = "PREFETCH_DONE"
	FrameError        = "ERROR"
)

// Frame is an outgoing websocket message.
type Frame struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id,omitempty"`
	Controlled bool                   `json:"controlled,omitempty"`
	Report     *worker.PrefetchReport `json:"report,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// Hub connects pages to the worker registration.
type Hub struct {
	reg    *worker.Registration
	logger *slog.Logger
}

// NewHub creates a Hub.
func NewHub(reg *worker.Registration, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Hub{reg: reg, logger: logger}
}

// RegisterRoutes mounts the channel endpoints under prefix.
func RegisterRoutes(r chi.Router, prefix string, hub *Hub) {
	r.Get(prefix+"/ws", hub.handleWebSocket)
	r.Post(prefix+"/api/messages", hub.handlePostMessage)
}

// pageConn serialises writes to one websocket.
type pageConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *pageConn) send(f Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	// Replaces the server's write deadline, which would otherwise close
	// long-lived sockets.
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return p.conn.WriteJSON(f)
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(MaxMessageBytes)

	client := h.reg.Connect(r.URL.Query().Get("page"))
	log := h.logger.With("client", client.ID)
	defer h.reg.Disconnect(context.Background(), client.ID)

	page := &pageConn{conn: conn}
	if err := page.send(Frame{Type: FrameClient, ID: client.ID, Controlled: client.Controlled()}); err != nil {
		log.Debug("websocket write", "error", err)
		return
	}

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read", "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		done, err := h.reg.PostMessage(r.Context(), client.ID, msg)
		if err != nil {
			if err := page.send(Frame{Type: FrameError, Error: err.Error()}); err != nil {
				log.Debug("websocket write", "error", err)
			}
			continue
		}

		go func() {
			<-done.Done()
			if report := done.Report(); report != nil {
				if err := page.send(Frame{Type: FramePrefetchDone, Report: report}); err != nil {
					log.Debug("websocket write", "error", err)
				}
			}
		}()
	}
}

type messageResponse struct {
	Accepted bool                   `json:"accepted"`
	Report   *worker.PrefetchReport `json:"report,omitempty"`
}

func (h *Hub) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxMessageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "message too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "reading message", http.StatusBadRequest)
		return
	}

	done, err := h.reg.PostMessage(r.Context(), SourceAPI, body)
	if errors.Is(err, worker.ErrNoActiveWorker) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, messageResponse{Accepted: true})
		return
	}

	if err := done.Wait(r.Context()); err != nil {
		if errors.Is(err, worker.ErrNotActive) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if r.Context().Err() != nil {
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Accepted: true, Report: done.Report()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
