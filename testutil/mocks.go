package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockSignchatServer fakes the translation microservice. Handlers are keyed
// by request path; unknown paths return 404. Every request is recorded.
type MockSignchatServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu       sync.Mutex
	requests []RecordedRequest
}

// RecordedRequest is a request seen by MockSignchatServer.
type RecordedRequest struct {
	Method      string
	Path        string
	ContentType string
	Body        []byte
}

// NewMockSignchatServer creates a new mock translation server.
func NewMockSignchatServer(t *testing.T) *MockSignchatServer {
	t.Helper()
	m := &MockSignchatServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		m.mu.Lock()
		m.requests = append(m.requests, RecordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			ContentType: r.Header.Get("Content-Type"),
			Body:        body,
		})
		handler, ok := m.Handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Requests returns a copy of the recorded requests.
func (m *MockSignchatServer) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

func (m *MockSignchatServer) handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[path] = h
}

// MockTextToImage answers /translate/txt-to-img.php with the given image URLs.
func (m *MockSignchatServer) MockTextToImage(images []string) {
	m.MockJSON("/translate/txt-to-img.php", map[string]any{"images": images})
}

// MockJSON answers path with body encoded as JSON.
func (m *MockSignchatServer) MockJSON(path string, body any) {
	m.handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
	})
}

// MockKeyboard answers /keyboard.php with html.
func (m *MockSignchatServer) MockKeyboard(html string) {
	m.handle("/keyboard.php", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, html)
	})
}

// MockStatus answers path with status and a plain diagnostic body.
func (m *MockSignchatServer) MockStatus(path string, status int, detail string) {
	m.handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, detail)
	})
}

// MockEcho answers path with the request body, as a JSON passthrough.
func (m *MockSignchatServer) MockEcho(path string) {
	m.handle(path, func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		body := m.requests[len(m.requests)-1].Body
		m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})
}
