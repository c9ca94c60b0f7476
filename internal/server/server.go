// Package server exposes the session state, quality and preview over HTTP and WebSocket
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrCodeEU/livecheck/internal/audit"
	"github.com/MrCodeEU/livecheck/internal/compositor"
	"github.com/MrCodeEU/livecheck/internal/config"
	"github.com/MrCodeEU/livecheck/internal/liveness"
	"github.com/MrCodeEU/livecheck/internal/session"
	"github.com/MrCodeEU/livecheck/pkg/models"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Controller is the part of a session the server drives
type Controller interface {
	Start(ctx context.Context) (string, error)
	Stop() error
	State() session.State
	Params() compositor.Params
	SetParams(p compositor.Params) error
	Preview() (*image.RGBA, bool)
}

// History lists past sessions
type History interface {
	ListSessions(limit int) ([]audit.SessionRecord, error)
}

// Event is a websocket message
type Event struct {
	Type      string              `json:"type"`
	SessionID string              `json:"session_id,omitempty"`
	State     *session.State      `json:"state,omitempty"`
	Challenge *liveness.Challenge `json:"challenge,omitempty"`
	Verified  bool                `json:"verified,omitempty"`
	At        time.Time           `json:"at"`
}

// Event types
const (
	EventState          = "state"
	EventSessionStarted = "session_started"
	EventChallenge      = "challenge_completed"
	EventSessionStopped = "session_stopped"
)

const (
	defaultStateInterval  = 100 * time.Millisecond
	defaultHistoryLimit   = 20
	maxHistoryLimit       = 500
	maxParamsRequestBytes = 4096
)

// Server serves the live verification surface
type Server struct {
	cfg      config.ServerConfig
	logger   *logrus.Logger
	router   *mux.Router
	upgrader websocket.Upgrader
	hub      *Hub
	gallery  *Gallery
	history  History

	mu   sync.RWMutex
	ctrl Controller

	stateInterval time.Duration
	lastState     atomic.Int64
}

var _ session.Observer = (*Server)(nil)

// New creates a server. history may be nil when no audit store is configured.
func New(cfg config.ServerConfig, history History, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Preview clients are served from other local origins
			},
		},
		hub:           newHub(logger),
		gallery:       NewGallery(cfg.Snapshots),
		history:       history,
		stateInterval: defaultStateInterval,
	}
	s.router = s.routes()
	return s
}

// Bind attaches the session the handlers operate on
func (s *Server) Bind(ctrl Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl = ctrl
}

func (s *Server) controller() Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctrl
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.withController(s.handleState)).Methods("GET")
	api.HandleFunc("/challenges", s.handleChallenges).Methods("GET")
	api.HandleFunc("/aspects", s.handleAspects).Methods("GET")
	api.HandleFunc("/verify/start", s.withController(s.handleStart)).Methods("POST")
	api.HandleFunc("/verify/stop", s.withController(s.handleStop)).Methods("POST")
	api.HandleFunc("/params", s.withController(s.handleGetParams)).Methods("GET")
	api.HandleFunc("/params", s.withController(s.handleSetParams)).Methods("PUT")
	api.HandleFunc("/preview.jpg", s.withController(s.handlePreview)).Methods("GET")
	api.HandleFunc("/snapshots", s.handleSnapshots).Methods("GET")
	api.HandleFunc("/snapshots/{index:[0-9]+}.jpg", s.handleSnapshot).Methods("GET")
	api.HandleFunc("/sessions", s.handleSessions).Methods("GET")

	router.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	// Subrouters report method mismatches as 404 without their own handler
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	return router
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.hub.run(ctx)

	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Infof("Serving verification API on http://%s", ln.Addr())
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// OnTick broadcasts the session state to websocket clients, at most once per state interval
func (s *Server) OnTick(session.TickResult) {
	if s.hub.clientCount() == 0 {
		return
	}
	now := time.Now()
	last := s.lastState.Load()
	if now.UnixNano()-last < int64(s.stateInterval) || !s.lastState.CompareAndSwap(last, now.UnixNano()) {
		return
	}

	ctrl := s.controller()
	if ctrl == nil {
		return
	}
	st := ctrl.State()
	s.broadcast(Event{Type: EventState, SessionID: st.SessionID, State: &st, At: now})
}

// SessionStarted implements session.Observer
func (s *Server) SessionStarted(id string, at time.Time) {
	s.gallery.Reset()
	s.broadcast(Event{Type: EventSessionStarted, SessionID: id, At: at})
}

// ChallengeCompleted implements session.Observer. It runs on the processing
// timeline, so it only stores the evidence frame and queues a message.
func (s *Server) ChallengeCompleted(ev session.CaptureEvent) {
	if ev.Frame != nil {
		if err := s.gallery.Add(ev.SessionID, ev.Challenge, ev.Label, ev.Frame, ev.At); err != nil {
			s.logger.Warnf("Failed to store snapshot: %v", err)
		}
	}
	c := liveness.Challenge{ID: ev.Challenge, Type: ev.Challenge.Type(), Label: ev.Label}
	s.broadcast(Event{Type: EventChallenge, SessionID: ev.SessionID, Challenge: &c, At: ev.At})
}

// SessionStopped implements session.Observer
func (s *Server) SessionStopped(id string, at time.Time, verified bool) {
	s.broadcast(Event{Type: EventSessionStopped, SessionID: id, Verified: verified, At: at})
}

func (s *Server) broadcast(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warnf("Failed to encode %s event: %v", ev.Type, err)
		return
	}
	s.hub.publish(msg)
}

func (s *Server) withController(h func(http.ResponseWriter, *http.Request, Controller)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl := s.controller()
		if ctrl == nil {
			writeError(w, http.StatusServiceUnavailable, "session not ready")
			return
		}
		h(w, r, ctrl)
	}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request, ctrl Controller) {
	writeJSON(w, http.StatusOK, ctrl.State())
}

func (s *Server) handleChallenges(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, liveness.Catalog())
}

func (s *Server) handleAspects(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, compositor.AspectPresets)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request, ctrl Controller) {
	id, err := ctrl.Start(r.Context())
	if err != nil {
		var initErr *models.InitError
		if errors.As(err, &initErr) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request, ctrl Controller) {
	if err := ctrl.Stop(); err != nil {
		if errors.Is(err, session.ErrNotVerifying) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetParams(w http.ResponseWriter, _ *http.Request, ctrl Controller) {
	writeJSON(w, http.StatusOK, ctrl.Params())
}

// handleSetParams applies a partial update over the current parameters
func (s *Server) handleSetParams(w http.ResponseWriter, r *http.Request, ctrl Controller) {
	params := ctrl.Params()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxParamsRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid parameters: %v", err))
		return
	}
	if err := ctrl.SetParams(params); err != nil {
		if errors.Is(err, compositor.ErrInvalidParams) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, params)
}

func (s *Server) handlePreview(w http.ResponseWriter, _ *http.Request, ctrl Controller) {
	img, ok := ctrl.Preview()
	if !ok {
		writeError(w, http.StatusNotFound, "no preview yet")
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleSnapshots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.gallery.List())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid snapshot index")
		return
	}
	data, ok := s.gallery.JPEG(index)
	if !ok {
		writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(data)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "audit log disabled")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := s.history.ListSessions(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []audit.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugf("WebSocket upgrade failed: %v", err)
		return
	}

	select {
	case s.hub.register <- conn:
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}

	// Clients only listen; reading detects disconnects
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				select {
				case s.hub.unregister <- conn:
				case <-time.After(writeWait):
					_ = conn.Close()
				}
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
