package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockInnertubeServer creates a test server that mocks Innertube API responses,
// keyed by endpoint path (e.g. "/youtubei/v1/browse").
type MockInnertubeServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockInnertubeServer creates a new mock Innertube API server
func NewMockInnertubeServer(t *testing.T) *MockInnertubeServer {
	t.Helper()
	m := &MockInnertubeServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Respond registers a canned JSON response for one endpoint path.
func (m *MockInnertubeServer) Respond(path string, payload any) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload) //nolint:errcheck // test mock response
	}
}

// RespondRaw registers a raw JSON body for one endpoint path.
func (m *MockInnertubeServer) RespondRaw(path, body string) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}
