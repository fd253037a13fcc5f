package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/foliocache/internal/cachestore"
	"github.com/ziadkadry99/foliocache/internal/fetch"
	"github.com/ziadkadry99/foliocache/internal/worker"
)

const prefix = "/_foliocache"

var scope, _ = url.Parse("https://site.test/")

func okNetwork() fetch.Fetcher {
	return fetch.FetcherFunc(func(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
		return &fetch.Response{
			Type:       fetch.TypeBasic,
			URL:        req.URL.String(),
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": {"image/png"}},
			Body:       []byte("img"),
		}, nil
	})
}

func setup(t *testing.T, activate bool) (*httptest.Server, *worker.Registration) {
	t.Helper()
	reg := worker.NewRegistration(nil)
	if activate {
		w := worker.New(cachestore.NewMemoryStorage(), okNetwork(), worker.Options{
			Scope:        scope,
			SkipWaiting:  true,
			ClaimClients: true,
		})
		if err := reg.Register(context.Background(), w); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	r := chi.NewRouter()
	RegisterRoutes(r, prefix, NewHub(reg, nil))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		reg.Unregister(context.Background())
	})
	return srv, reg
}

func dial(t *testing.T, srv *httptest.Server, page string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + prefix + "/ws?page=" + url.QueryEscape(page)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return f
}

func TestWebSocketConnectRegistersClient(t *testing.T) {
	srv, reg := setup(t, true)
	conn := dial(t, srv, "https://site.test/")

	f := readFrame(t, conn)
	if f.Type != FrameClient || f.ID == "" || !f.Controlled {
		t.Fatalf("frame = %+v", f)
	}
	info, ok := reg.Client(f.ID)
	if !ok || info.URL != "https://site.test/" {
		t.Errorf("client = %+v, %v", info, ok)
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := reg.Client(f.ID); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("client still registered after close")
}

func TestWebSocketPrefetch(t *testing.T) {
	srv, _ := setup(t, true)
	conn := dial(t, srv, "https://site.test/")
	readFrame(t, conn)

	msg, _ := worker.NewPrefetchMessage([]string{"/a.png", "/b.png"})
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	f := readFrame(t, conn)
	if f.Type != FramePrefetchDone || f.Report == nil {
		t.Fatalf("frame = %+v", f)
	}
	if f.Report.Stored != 2 || f.Report.Requested != 2 {
		t.Errorf("report = %+v", f.Report)
	}
}

func TestWebSocketWithoutWorker(t *testing.T) {
	srv, _ := setup(t, false)
	conn := dial(t, srv, "https://site.test/")

	if f := readFrame(t, conn); f.Controlled {
		t.Error("page should be uncontrolled without a worker")
	}
	msg, _ := worker.NewPrefetchMessage([]string{"/a.png"})
	conn.WriteMessage(websocket.TextMessage, msg)

	f := readFrame(t, conn)
	if f.Type != FrameError || f.Error == "" {
		t.Errorf("frame = %+v", f)
	}
}

func post(t *testing.T, srv *httptest.Server, query string, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+prefix+"/api/messages"+query, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPostMessageNoWorker(t *testing.T) {
	srv, _ := setup(t, false)
	msg, _ := worker.NewPrefetchMessage([]string{"/a.png"})
	if resp := post(t, srv, "", msg); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestPostMessageAccepted(t *testing.T) {
	srv, _ := setup(t, true)
	msg, _ := worker.NewPrefetchMessage([]string{"/a.png"})

	resp := post(t, srv, "", msg)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var got messageResponse
	json.NewDecoder(resp.Body).Decode(&got)
	if !got.Accepted || got.Report != nil {
		t.Errorf("response = %+v", got)
	}
}

func TestPostMessageWait(t *testing.T) {
	srv, _ := setup(t, true)
	msg, _ := worker.NewPrefetchMessage([]string{"/a.png", "/a.png", "/c.png"})

	resp := post(t, srv, "?wait=true", msg)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Report == nil || got.Report.Stored != 2 || got.Report.Hits != 1 || got.Report.Source != SourceAPI {
		t.Errorf("report = %+v", got.Report)
	}
}

func TestPostIgnoredMessageWait(t *testing.T) {
	srv, _ := setup(t, true)

	resp := post(t, srv, "?wait=true", []byte(`{"type":"HELLO"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got messageResponse
	json.NewDecoder(resp.Body).Decode(&got)
	if !got.Accepted || got.Report != nil {
		t.Errorf("response = %+v", got)
	}
}

func TestPostMessageTooLarge(t *testing.T) {
	srv, _ := setup(t, true)
	big := bytes.Repeat([]byte("x"), MaxMessageBytes+1)
	if resp := post(t, srv, "", big); resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}
