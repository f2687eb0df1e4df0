package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signchat/chat-relay/chat"
	"github.com/signchat/chat-relay/config"
	"github.com/signchat/chat-relay/db"
	"github.com/signchat/chat-relay/signchat"
	"github.com/signchat/chat-relay/testutil"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

// memStore backs the hub in HTTP-level tests.
type memStore struct {
	msgs []db.Message
}

func (s *memStore) Append(_ context.Context, content, username string) (int64, error) {
	id := int64(len(s.msgs) + 1)
	s.msgs = append(s.msgs, db.Message{ID: id, Content: content, Username: username})
	return id, nil
}

func (s *memStore) ListAll(ctx context.Context) ([]db.Message, error) { return s.ListAfter(ctx, 0) }

func (s *memStore) ListAfter(_ context.Context, afterID int64) ([]db.Message, error) {
	var out []db.Message
	for _, m := range s.msgs {
		if m.ID > afterID {
			out = append(out, m)
		}
	}
	return out, nil
}

// writePublicDir lays out a minimal client bundle.
func writePublicDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"index.html":     "<h1>home</h1>",
		"chat/chat.html": "<h1>chat</h1>",
		"css/app.css":    "body{}",
	}
	for name, body := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func newTestDeps(t *testing.T, upstream string) Deps {
	t.Helper()
	hub := chat.NewHub(&memStore{}, config.DefaultWebSocketConfig())
	t.Cleanup(hub.Close)
	return Deps{
		Store:     fakePinger{},
		Hub:       hub,
		Signchat:  signchat.NewClient(upstream, 0),
		PublicDir: writePublicDir(t),
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestStaticRoutes(t *testing.T) {
	h := NewMux(newTestDeps(t, "http://127.0.0.1:1"))

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/", http.StatusOK, "<h1>home</h1>"},
		{"/chat", http.StatusOK, "<h1>chat</h1>"},
		{"/chat/chat.html", http.StatusOK, "<h1>chat</h1>"},
		{"/css/app.css", http.StatusOK, "body{}"},
		{"/missing.js", http.StatusNotFound, ""},
		{"/empty/", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := get(t, h, tt.path)
			if rr.Code != tt.wantStatus {
				t.Fatalf("GET %s = %d, want %d", tt.path, rr.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rr.Body.String() != tt.wantBody {
				t.Errorf("GET %s body = %q, want %q", tt.path, rr.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestMissingPagesAre404(t *testing.T) {
	deps := newTestDeps(t, "http://127.0.0.1:1")
	deps.PublicDir = t.TempDir()
	h := NewMux(deps)

	for _, p := range []string{"/", "/chat"} {
		if rr := get(t, h, p); rr.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", p, rr.Code)
		}
	}
}

func TestCorrelationIDHeader(t *testing.T) {
	h := NewMux(newTestDeps(t, "http://127.0.0.1:1"))

	rr := get(t, h, "/healthz")
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected generated correlation id")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("correlation id = %q, want abc-123", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewMux(newTestDeps(t, "http://127.0.0.1:1"))
	rr := get(t, h, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Error("expected default Go collectors in metrics output")
	}
}

func TestWebSocketThroughMux(t *testing.T) {
	mock := testutil.NewMockSignchatServer(t)
	srv := httptest.NewServer(NewMux(newTestDeps(t, mock.URL)))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket?username=alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"chat message","args":["hola"]}`)); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if want := `{"event":"chat message","args":["hola","1","alice"]}`; string(raw) != want {
		t.Errorf("frame = %s, want %s", raw, want)
	}
}

func TestStartAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, newTestDeps(t, "http://127.0.0.1:1"), ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never answered: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("healthz body = %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStartReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	err = Start(context.Background(), newTestDeps(t, "http://127.0.0.1:1"), ln.Addr().String())
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected listen error, got %v", err)
	}
}
