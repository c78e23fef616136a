package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/mcctrack/internal/config"
	"github.com/ent0n29/mcctrack/internal/lifecycle"
	"github.com/ent0n29/mcctrack/internal/location"
	"github.com/ent0n29/mcctrack/internal/observability"
	"github.com/ent0n29/mcctrack/internal/prediction"
	"github.com/ent0n29/mcctrack/internal/session"
	"github.com/ent0n29/mcctrack/internal/tracking"
)

// LifecyclePublisher accepts app lifecycle transitions reported by clients.
type LifecyclePublisher interface {
	Publish(ctx context.Context, state lifecycle.State) error
}

type Server struct {
	cfg       config.Config
	sessions  *session.Manager
	client    *prediction.Client
	lifecycle LifecyclePublisher
	storeMode string
	metrics   *observability.Metrics
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, client *prediction.Client, lifecycle LifecyclePublisher, metrics *observability.Metrics, storeMode string) *Server {
	return &Server{
		cfg:       cfg,
		sessions:  sessions,
		client:    client,
		lifecycle: lifecycle,
		storeMode: storeMode,
		metrics:   metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may watch a user's location stream.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/tracking/session", s.handleStartSession)
	r.Post("/v1/tracking/session/stop", s.handleStopSession)
	r.Post("/v1/tracking/session/extend", s.handleExtendSession)
	r.Get("/v1/tracking/session", s.handleGetSession)
	r.Get("/v1/tracking/status", s.handleStatus)
	r.Get("/v1/tracking/best-category", s.handleBestCategory)
	r.Get("/v1/tracking/events", s.handleEventsWS)
	r.Post("/v1/lifecycle/{state}", s.handleLifecycle)
	r.Post("/v1/retry/drain", s.handleDrainRetries)
	r.Get("/v1/perf/ticks", s.handlePerfTicks)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"persistence_mode": s.persistenceMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	st := s.sessions.Status()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "ready",
		"persistence_mode":   s.persistenceMode(),
		"is_tracking":        st.IsTracking,
		"has_active_session": st.HasActiveSession,
		"pending_retries":    s.pendingRetries(),
		"event_subscribers":  s.sessions.SubscriberCount(),
	})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	req := session.StartRequest{Config: s.cfg.Tracking()}
	if err := decodeJSON(r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sess, err := s.sessions.Start(r.Context(), req.UserID, req.Config)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, session.NewSessionResponse(sess))
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Stop(r.Context())
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session.NewSessionResponse(sess))
}

func (s *Server) handleExtendSession(w http.ResponseWriter, r *http.Request) {
	var req session.ExtendRequest
	if err := decodeJSON(r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "invalid_request", "minutes is required")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sess, err := s.sessions.Extend(r.Context(), req.Minutes)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session.NewSessionResponse(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.sessions.CurrentSession()
	if sess == nil {
		respondError(w, http.StatusNotFound, "session_not_found", session.ErrNoActiveSession.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.sessions.Status())
}

type bestCategoryResponse struct {
	Found      bool    `json:"found"`
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Method     string  `json:"method,omitempty"`
}

func (s *Server) handleBestCategory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawLat, rawLng := strings.TrimSpace(q.Get("lat")), strings.TrimSpace(q.Get("lng"))

	var (
		found bool
		resp  bestCategoryResponse
	)
	if rawLat != "" || rawLng != "" {
		lat, errLat := strconv.ParseFloat(rawLat, 64)
		lng, errLng := strconv.ParseFloat(rawLng, 64)
		if errLat != nil || errLng != nil {
			respondError(w, http.StatusBadRequest, "invalid_position", "lat and lng must both be numbers")
			return
		}
		res, ok := s.sessions.BestCategoryAt(tracking.Position{Latitude: lat, Longitude: lng})
		found = ok
		resp = bestCategoryResponse{Category: res.Category, Confidence: res.Confidence, Method: res.Method}
	} else {
		res, ok, err := s.sessions.BestCategoryForCurrentPosition(r.Context())
		if err != nil {
			s.respondSessionError(w, err)
			return
		}
		found = ok
		resp = bestCategoryResponse{Category: res.Category, Confidence: res.Confidence, Method: res.Method}
	}
	if !found {
		resp = bestCategoryResponse{}
	}
	resp.Found = found
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	state, err := lifecycle.ParseState(chi.URLParam(r, "state"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_lifecycle_state", err.Error())
		return
	}
	if s.lifecycle == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "lifecycle source not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.lifecycle.Publish(ctx, state); err != nil {
		respondError(w, http.StatusServiceUnavailable, "lifecycle_busy", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"state": state})
}

func (s *Server) handleDrainRetries(w http.ResponseWriter, r *http.Request) {
	if s.client == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "prediction client not configured")
		return
	}
	remaining := s.client.DrainNow(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{"remaining": remaining})
}

func (s *Server) handlePerfTicks(w http.ResponseWriter, _ *http.Request) {
	interval := s.cfg.TrackingUpdateInterval
	if sess := s.sessions.CurrentSession(); sess != nil {
		interval = sess.Config.UpdateInterval
	}
	respondJSON(w, http.StatusOK, s.metrics.TickReport(interval))
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, unsubscribe := s.sessions.Subscribe()
	defer unsubscribe()
	s.metrics.SessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader only watches for the client going away.
	go func() {
		defer cancel()
		conn.SetReadLimit(4096)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.metrics.SessionEvent("ws_disconnected")
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(evt); err != nil {
				s.metrics.SessionEvent("ws_write_error")
				return
			}
		}
	}
}

func (s *Server) respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrUserRequired), errors.Is(err, tracking.ErrInvalidConfig):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, session.ErrNoActiveSession):
		respondError(w, http.StatusConflict, "no_active_session", err.Error())
	case errors.Is(err, location.ErrPermissionDenied):
		respondError(w, http.StatusForbidden, "location_permission_denied", err.Error())
	case errors.Is(err, location.ErrPositionUnavailable), errors.Is(err, location.ErrTimeout):
		respondError(w, http.StatusServiceUnavailable, "position_unavailable", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func (s *Server) persistenceMode() string {
	mode := strings.TrimSpace(s.storeMode)
	if mode == "" {
		return "disabled"
	}
	return mode
}

func (s *Server) pendingRetries() int {
	if s.client == nil {
		return 0
	}
	return s.client.PendingRetries()
}
