package traceserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jmercer/isaforge/semantics"
)

// Server exposes a small HTTP+websocket API over a set of named
// execution harnesses: load a program's decoded block, run it, and
// stream the resulting trace events to any connected viewer.
type Server struct {
	mu          sync.RWMutex
	sessions    map[string]*session
	broadcaster *Broadcaster
	mux         *http.ServeMux
	httpServer  *http.Server
	port        int
}

type session struct {
	harness *semantics.Harness
	space   string
}

// NewServer creates a trace server bound to port, with no sessions
// registered yet — call RegisterSession before Start.
func NewServer(port int) *Server {
	s := &Server{
		sessions:    map[string]*session{},
		broadcaster: NewBroadcaster(),
		mux:         http.NewServeMux(),
		port:        port,
	}
	s.registerRoutes()
	return s
}

// RegisterSession attaches a harness under sessionID, executing
// instructions decoded from the named space. The harness's tracer is
// pointed at this server's broadcaster, so every fetch, register
// access, and host call the harness performs reaches connected viewers.
func (s *Server) RegisterSession(sessionID, space string, harness *semantics.Harness) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = &session{harness: harness, space: space}
	harness.EnableTracer(&sessionTracer{sessionID: sessionID, broadcaster: s.broadcaster})
}

// sessionTracer adapts a semantics.Tracer's generic events to this
// package's broadcaster, session-qualifying each one.
type sessionTracer struct {
	sessionID   string
	broadcaster *Broadcaster
}

func (t *sessionTracer) TraceFetch(address, bits uint64, mnemonic string) {
	t.broadcaster.BroadcastFetch(t.sessionID, address, bits, mnemonic)
}

func (t *sessionTracer) TraceRegisterRead(name string, value uint64, width uint) {
	t.broadcaster.BroadcastRegisterRead(t.sessionID, name, value, width)
}

func (t *sessionTracer) TraceRegisterWrite(name string, value uint64, width uint) {
	t.broadcaster.BroadcastRegisterWrite(t.sessionID, name, value, width)
}

func (t *sessionTracer) TraceHostOp(name string, args []uint64, result uint64) {
	t.broadcaster.BroadcastHostOp(t.sessionID, name, args, result)
}

// Broadcaster exposes the server's broadcaster for direct use (e.g. from
// cmd/isaforge wiring an execution loop to stream fetch events live).
func (s *Server) Broadcaster() *Broadcaster { return s.broadcaster }

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/session/", s.handleSessionRoute)
}

// Handler returns the server's HTTP handler with a localhost-only CORS
// policy applied.
func (s *Server) Handler() http.Handler { return s.corsMiddleware(s.mux) }

// Start runs the HTTP server until it errors or is shut down.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log.Printf("trace server listening on http://127.0.0.1:%d", s.port)
	return s.httpServer.ListenAndServe()
}

// Shutdown closes the broadcaster (disconnecting every viewer) and stops
// the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.broadcaster.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isAllowedOrigin(origin string) bool {
	if origin == "" || strings.HasPrefix(origin, "file://") {
		return true
	}
	for _, prefix := range []string{"http://localhost", "https://localhost", "http://127.0.0.1", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	count := len(s.sessions)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": count,
		"viewers":  s.broadcaster.SubscriptionCount(),
	})
}

type runRequest struct {
	ROM         []byte `json:"rom"`
	BaseAddress uint64 `json:"baseAddress"`
}

// handleSessionRoute dispatches /session/{id}/run.
func (s *Server) handleSessionRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/session/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[1] != "run" {
		writeError(w, http.StatusNotFound, "unknown route")
		return
	}
	sessionID := parts[0]

	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown session %q", sessionID))
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The harness's tracer (enabled in RegisterSession) already broadcasts
	// a Fetch event per instruction as it executes.
	results, err := sess.harness.ExecuteBlock(sess.space, req.ROM, req.BaseAddress)
	s.broadcaster.BroadcastHalt(sessionID, err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executed": len(results)})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("traceserver: error encoding JSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
