package webmonitor

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/safedrive/drowsiness-monitor/internal/logger"
	"github.com/safedrive/drowsiness-monitor/internal/overlay"
	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// TransitionSource lists journaled sessions and state transitions.
type TransitionSource interface {
	SessionID() string
	Transitions(ctx context.Context, session string, limit int) ([]types.Transition, error)
	Sessions(ctx context.Context) ([]types.Session, error)
}

// Server serves the web monitor endpoints and receives frames from the
// frame loop through ObserveFrame.
type Server struct {
	cfg         Config
	monitor     *Monitor
	frames      *FrameBroadcaster
	readings    *EventBroadcaster
	status      *StatusBroadcaster
	transitions TransitionSource
	placeholder []byte
	startTime   time.Time
}

// NewServer returns a configured monitor server. transitions may be nil
// when no journal is kept.
func NewServer(cfg Config, monitor *Monitor, transitions TransitionSource) *Server {
	cfg = cfg.withDefaults()

	placeholder, err := overlay.Placeholder(cfg.PlaceholderWidth, cfg.PlaceholderHeight, "Waiting for camera...")
	if err != nil {
		logger.Warn("WebMonitor", "Placeholder frame: %v", err)
	}

	status := NewStatusBroadcaster(monitor, cfg.StatusInterval)
	status.Start()

	return &Server{
		cfg:         cfg,
		monitor:     monitor,
		frames:      NewFrameBroadcaster(),
		readings:    NewEventBroadcaster("ReadingBroadcaster"),
		status:      status,
		transitions: transitions,
		placeholder: placeholder,
		startTime:   time.Now(),
	}
}

// Close stops background broadcasting.
func (s *Server) Close() {
	s.status.Stop()
}

// ObserveFrame records the report and fans the annotated frame out to
// stream clients. Encoding is skipped while nobody is watching.
func (s *Server) ObserveFrame(frame types.Frame, report types.FrameReport) {
	s.monitor.Observe(report)

	if s.frames.ClientCount() > 0 {
		data, err := frame.JPEG()
		if err != nil {
			logger.Debug("WebMonitor", "Frame %d encode: %v", report.FrameNum, err)
		} else {
			s.frames.Publish(data)
		}
	}

	if s.readings.ClientCount() > 0 {
		event, err := serializeEvent(framePayload(report))
		if err != nil {
			logger.Error("WebMonitor", "Serialize frame %d: %v", report.FrameNum, err)
			return
		}
		s.readings.Broadcast(event)
	}
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/status/stream", s.handleStatusStream)
	mux.HandleFunc("/api/readings/stream", s.handleReadingsStream)
	mux.HandleFunc("/api/transitions", s.handleTransitions)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/health", s.handleHealth)

	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, frameCh := s.frames.Subscribe()
	defer s.frames.Unsubscribe(id)
	streamMJPEGFromChannel(r.Context(), w, frameCh, s.placeholder, s.cfg.StreamIdleTimeout)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.monitor.Snapshot())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.status.Subscribe()
	defer s.status.Unsubscribe(id)
	streamEventsFromChannel(r.Context(), w, eventCh, wantsProtobuf(r), s.cfg.KeepaliveInterval)
}

func (s *Server) handleReadingsStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.readings.Subscribe()
	defer s.readings.Unsubscribe(id)
	streamEventsFromChannel(r.Context(), w, eventCh, wantsProtobuf(r), s.cfg.KeepaliveInterval)
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	if s.transitions == nil {
		writeJSONWithStatus(w, map[string]any{"error": "journal is not enabled"}, http.StatusNotFound)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSONWithStatus(w, map[string]any{"error": "invalid limit"}, http.StatusBadRequest)
			return
		}
		limit = n
	}

	session := r.URL.Query().Get("session")
	if session == "" {
		session = s.transitions.SessionID()
	}

	list, err := s.transitions.Transitions(r.Context(), session, limit)
	if err != nil {
		logger.Warn("WebMonitor", "List transitions: %v", err)
		writeJSONWithStatus(w, map[string]any{"error": "journal unavailable"}, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []types.Transition{}
	}
	writeJSON(w, map[string]any{
		"session_id":  session,
		"transitions": list,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.transitions == nil {
		writeJSONWithStatus(w, map[string]any{"error": "journal is not enabled"}, http.StatusNotFound)
		return
	}

	list, err := s.transitions.Sessions(r.Context())
	if err != nil {
		logger.Warn("WebMonitor", "List sessions: %v", err)
		writeJSONWithStatus(w, map[string]any{"error": "journal unavailable"}, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []types.Session{}
	}
	writeJSON(w, map[string]any{
		"current":  s.transitions.SessionID(),
		"sessions": list,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"stream_clients": s.frames.ClientCount(),
	})
}

// wantsProtobuf applies Accept header negotiation.
func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Debug("WebMonitor", "JSON encode: %v", err)
	}
}
