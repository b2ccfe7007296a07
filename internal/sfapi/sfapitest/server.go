// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package sfapitest provides a fake Element JSON-RPC endpoint for tests.
package sfapitest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/platformbuilds/sfc/internal/sfapi"
)

// Handler returns the "result" member for one call. Returning an
// *Failure produces an HTTP or JSON-RPC error instead.
type Handler func(params json.RawMessage) any

// Failure makes the server answer with a raw status and body.
type Failure struct {
	Status int
	Body   string
}

// Server is a fake cluster. Unknown methods answer with a JSON-RPC error.
type Server struct {
	*httptest.Server

	Username string
	Password string

	mu       sync.Mutex
	handlers map[string]Handler
	calls    []string
}

// NewServer starts a fake cluster that is closed with the test.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{Username: "monitor", Password: "secret", handlers: map[string]Handler{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Handle registers a handler for method.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Result registers a static JSON result for method.
func (s *Server) Result(method, resultJSON string) {
	s.Handle(method, func(json.RawMessage) any { return json.RawMessage(resultJSON) })
}

// Calls returns the methods invoked so far, in order.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CallCount returns how often method was invoked.
func (s *Server) CallCount(method string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == method {
			n++
		}
	}
	return n
}

// Config returns a client config pointing at the fake cluster.
func (s *Server) Config() sfapi.Config {
	return sfapi.Config{
		Endpoint: s.URL,
		Username: s.Username,
		Password: s.Password,
	}
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasPrefix(r.URL.Path, "/json-rpc/") {
		http.NotFound(w, r)
		return
	}
	if u, p, ok := r.BasicAuth(); !ok || u != s.Username || p != s.Password {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	body, _ := io.ReadAll(r.Body)
	var req struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
		ID     string          `json:"id"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls = append(s.calls, req.Method)
	h := s.handlers[req.Method]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if h == nil {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    req.ID,
			"error": map[string]any{"code": 500, "name": "xUnknownAPIMethod", "message": "Unknown method " + req.Method},
		})
		return
	}
	res := h(req.Params)
	if f, ok := res.(*Failure); ok {
		w.WriteHeader(f.Status)
		_, _ = io.WriteString(w, f.Body)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"id": req.ID, "result": res})
}
