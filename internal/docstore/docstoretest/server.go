// Package docstoretest runs an in-process fake of the Elasticsearch REST
// API for tests.
package docstoretest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/config"
)

// Request is one call received by the fake server.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// JSON decodes the request body into a generic map.
func (r Request) JSON(t testing.TB) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(r.Body, &m); err != nil {
		t.Fatalf("decoding request body %q: %v", r.Body, err)
	}
	return m
}

// Server records requests and answers them with Handler.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	requests []Request
	handler  http.HandlerFunc
}

// NewServer starts a fake cluster. A nil handler answers 200 {}.
func NewServer(t testing.TB, handler http.HandlerFunc) *Server {
	t.Helper()
	s := &Server{handler: handler}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// SetHandler swaps the response handler.
func (s *Server) SetHandler(h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Requests returns a copy of all recorded requests.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Body:   body,
	})
	h := s.handler
	s.mu.Unlock()

	// go-elasticsearch refuses to talk to servers without this header.
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	if h == nil {
		io.WriteString(w, `{}`)
		return
	}
	h(w, r)
}

// Client returns a docstore client pointed at s.
func (s *Server) Client(t testing.TB) *docstore.Client {
	t.Helper()
	c, err := docstore.New(config.ElasticsearchConfig{
		Addresses:       []string{s.URL},
		RequestTimeout:  2 * time.Second,
		BreakerFailures: 1000,
		BreakerReset:    time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("creating docstore client: %v", err)
	}
	return c
}

// Reply writes status and a JSON body.
func Reply(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	io.WriteString(w, body)
}
