// Package server provides the HTTP API for the repostore daemon.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/grovetools/repostore/errors"
	"github.com/grovetools/repostore/internal/daemon/store"
	"github.com/grovetools/repostore/pkg/actions"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// maxActionBytes bounds the body of a dispatch request.
const maxActionBytes = 1 << 20

// Dispatcher queues actions, and resets, for delivery to the store.
type Dispatcher interface {
	Dispatch(ctx context.Context, a actions.Action) error
	Reset(ctx context.Context) error
}

// RunningConfig holds the active settings of the daemon.
// This is exposed via the /api/config endpoint so clients can verify what config is active.
type RunningConfig struct {
	ConfigFile        string        `json:"config_file,omitempty"`
	CollectorEnabled  bool          `json:"collector_enabled"`
	CollectorRoots    []string      `json:"collector_roots,omitempty"`
	CollectorInterval time.Duration `json:"collector_interval"`
	QueueSize         int           `json:"queue_size"`
	StartedAt         time.Time     `json:"started_at"`
}

// Server manages the daemon's HTTP server over a Unix socket and, optionally, TCP.
type Server struct {
	logger     *logrus.Entry
	store      *store.Store
	dispatcher Dispatcher
	upgrader   websocket.Upgrader

	mu            sync.RWMutex
	runningConfig *RunningConfig

	once   sync.Once
	server *http.Server
}

// New creates a new Server reading from st and dispatching through d.
func New(logger *logrus.Entry, st *store.Store, d Dispatcher) *Server {
	return &Server{
		logger:     logger,
		store:      st,
		dispatcher: d,
	}
}

// SetRunningConfig sets the running configuration for the server. It may be
// called again after a config reload.
func (s *Server) SetRunningConfig(cfg *RunningConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runningConfig = cfg
}

// Handler returns the router with every API route registered.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleGetState).Methods(http.MethodGet)
	api.HandleFunc("/repo", s.handleGetRepo).Methods(http.MethodGet)
	api.HandleFunc("/repos", s.handleListRepos).Methods(http.MethodGet)
	api.HandleFunc("/cloning", s.handleGetCloning).Methods(http.MethodGet)
	api.HandleFunc("/resolved-rev", s.handleGetResolvedRev).Methods(http.MethodGet)
	api.HandleFunc("/resolution", s.handleGetResolution).Methods(http.MethodGet)
	api.HandleFunc("/commit", s.handleGetCommit).Methods(http.MethodGet)
	api.HandleFunc("/inventory", s.handleGetInventory).Methods(http.MethodGet)
	api.HandleFunc("/branches", s.handleGetBranches).Methods(http.MethodGet)
	api.HandleFunc("/tags", s.handleGetTags).Methods(http.MethodGet)
	api.HandleFunc("/dispatch", s.handleDispatch).Methods(http.MethodPost)
	api.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)
	api.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)

	return r
}

func (s *Server) httpServer() *http.Server {
	s.once.Do(func() {
		s.server = &http.Server{
			Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	return s.server
}

// ListenAndServe starts the daemon on the given unix socket path.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(socketPath string) error {
	// Cleanup stale socket
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	// Set restrictive permissions on socket
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.WithField("socket", socketPath).Info("Daemon listening")
	return s.httpServer().Serve(listener)
}

// ListenAndServeTCP serves the same API on a TCP address.
func (s *Server) ListenAndServeTCP(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.logger.WithField("address", listener.Addr().String()).Info("Daemon listening")
	return s.httpServer().Serve(listener)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.httpServer().Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleGetState returns the serialisable store state as JSON.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ToJSON())
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	repo, ok := requireParam(w, r, "repo")
	if !ok {
		return
	}
	writeFound(w, s.store.Repos().Get(repo))
}

// handleListRepos serves a listing previously stored under the q query string.
func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	writeFound(w, s.store.Repos().List(r.URL.Query().Get("q")))
}

func (s *Server) handleGetCloning(w http.ResponseWriter, r *http.Request) {
	repo, ok := requireParam(w, r, "repo")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cloning": s.store.Repos().IsCloning(repo)})
}

func (s *Server) handleGetResolvedRev(w http.ResponseWriter, r *http.Request) {
	repo, ok := requireParam(w, r, "repo")
	if !ok {
		return
	}
	commitID := s.store.ResolvedRevs().Get(repo, r.URL.Query().Get("rev"))
	if commitID == "" {
		writeError(w, http.StatusNotFound, errors.New(errors.ErrCodeInvalidInput, "revision not resolved"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"commitID": commitID})
}

func (s *Server) handleGetResolution(w http.ResponseWriter, r *http.Request) {
	repo, ok := requireParam(w, r, "repo")
	if !ok {
		return
	}
	writeFound(w, s.store.Resolutions().Get(repo))
}

func (s *Server) handleGetCommit(w http.ResponseWriter, r *http.Request) {
	repo, ok := requireParam(w, r, "repo")
	if !ok {
		return
	}
	writeFound(w, s.store.Commits().Get(repo, r.URL.Query().Get("rev")))
}

func (s *Server) handleGetInventory(w http.ResponseWriter, r *http.Request) {
	repo, ok := requireParam(w, r, "repo")
	if !ok {
		return
	}
	writeFound(w, s.store.Inventory().Get(repo, r.URL.Query().Get("commit")))
}

// RefsResponse is the body of the branches and tags endpoints.
type RefsResponse struct {
	Content interface{} `json:"content"`
	Error   interface{} `json:"error"`
}

func (s *Server) handleGetBranches(w http.ResponseWriter, r *http.Request) {
	repo, ok := requireParam(w, r, "repo")
	if !ok {
		return
	}
	branches := s.store.Branches()
	writeJSON(w, http.StatusOK, RefsResponse{Content: branches.List(repo), Error: branches.Error(repo)})
}

func (s *Server) handleGetTags(w http.ResponseWriter, r *http.Request) {
	repo, ok := requireParam(w, r, "repo")
	if !ok {
		return
	}
	tags := s.store.Tags()
	writeJSON(w, http.StatusOK, RefsResponse{Content: tags.List(repo), Error: tags.Error(repo)})
}

// handleDispatch decodes an action envelope and queues it on the engine.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxActionBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to read request body"))
		return
	}

	a, err := actions.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.dispatcher.Dispatch(r.Context(), a); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	s.logger.WithField("action", a.Kind()).Debug("Action dispatched")
	writeJSON(w, http.StatusAccepted, map[string]actions.Kind{"type": a.Kind()})
}

// handleReset queues a reset behind any actions already dispatched.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatcher.Reset(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.logger.Info("Store reset queued")
	w.WriteHeader(http.StatusAccepted)
}

// handleStream provides Server-Sent Events (SSE) for change notifications.
// Each event carries a store.Change; clients re-read state as needed.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	// Send initial ping to confirm connection
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	s.logger.Debug("SSE client connected")

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case change, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(change)
			if err != nil {
				s.logger.WithError(err).Error("Failed to marshal change")
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// handleWebSocket pushes the same notifications as handleStream over a websocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	// The client never sends data; reading detects when it goes away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Debug("Websocket client connected")

	for {
		select {
		case <-closed:
			s.logger.Debug("Websocket client disconnected")
			return
		case <-r.Context().Done():
			return
		case change, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(change); err != nil {
				s.logger.WithError(err).Debug("Websocket write failed")
				return
			}
		}
	}
}

// handleGetConfig returns the running configuration as JSON.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	cfg := s.runningConfig
	s.mu.RUnlock()

	if cfg == nil {
		http.Error(w, "config not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// requireParam returns the named query parameter. Only an absent parameter is
// rejected; an empty value is a valid key.
func requireParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	values, ok := r.URL.Query()[name]
	if !ok {
		writeError(w, http.StatusBadRequest,
			errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("missing query parameter %q", name)))
		return "", false
	}
	return values[0], true
}

// writeFound writes v, or 404 when the accessor returned a nil pointer.
func writeFound[T any](w http.ResponseWriter, v *T) {
	if v == nil {
		writeError(w, http.StatusNotFound, errors.New(errors.ErrCodeInvalidInput, "not found"))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err as a structured error body.
func writeError(w http.ResponseWriter, status int, err error) {
	structured, ok := err.(*errors.Error)
	if !ok {
		structured = errors.Wrap(err, errors.ErrCodeInternal, err.Error())
	}
	writeJSON(w, status, map[string]*errors.Error{"error": structured})
}
