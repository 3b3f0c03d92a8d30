package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fede-assistant/fede/internal/biz/domain"
	"github.com/fede-assistant/fede/internal/biz/usecase"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Server is the local status HTTP API
type Server struct {
	sessionUC *usecase.SessionUsecase
	actionUC  *usecase.ActionUsecase
	metrics   http.Handler
	logger    *slog.Logger

	addr   string
	server *http.Server
}

// NewServer creates a status server. metrics may be nil.
func NewServer(addr string, sessionUC *usecase.SessionUsecase, actionUC *usecase.ActionUsecase, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sessionUC: sessionUC,
		actionUC:  actionUC,
		metrics:   metrics,
		logger:    logger,
		addr:      addr,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route mux
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}/messages", s.handleSessionMessages)
	mux.HandleFunc("GET /api/actions", s.handleActions)

	return mux
}

// Start serves until Stop is called
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.logger.Info("status server listening", "addr", ln.Addr().String())

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server. Start returns nil once stopped, even if Stop ran first.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ============ Response types ============

type sessionJSON struct {
	ID        int64             `json:"id"`
	UserID    int64             `json:"user_id"`
	Active    bool              `json:"active"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Context   map[string]string `json:"context,omitempty"`
}

type messageJSON struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type actionJSON struct {
	ID         string            `json:"id"`
	SessionID  int64             `json:"session_id"`
	Kind       string            `json:"kind"`
	State      string            `json:"state"`
	Confidence float64           `json:"confidence"`
	Parameters map[string]any    `json:"parameters"`
	Context    map[string]string `json:"context,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	ResolvedBy string            `json:"resolved_by,omitempty"`
}

func toSessionJSON(session *domain.Session) sessionJSON {
	return sessionJSON{
		ID:        session.ID,
		UserID:    session.UserID,
		Active:    session.Active,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
		Context:   session.Context,
	}
}

func toActionJSON(a *domain.PendingAction) actionJSON {
	return actionJSON{
		ID:         a.ID,
		SessionID:  a.SessionID,
		Kind:       string(a.Kind),
		State:      string(a.State),
		Confidence: a.Confidence,
		Parameters: a.Parameters,
		Context:    a.Context,
		CreatedAt:  a.CreatedAt,
		ResolvedBy: a.ResolvedBy,
	}
}

// ============ Handlers ============

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessionUC.List(r.Context(), listLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	result := make([]sessionJSON, len(sessions))
	for i, session := range sessions {
		result[i] = toSessionJSON(session)
	}
	s.writeJSON(w, map[string]any{"sessions": result})
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	session, err := s.sessionUC.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if session == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	messages, err := s.sessionUC.History(r.Context(), id, listLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	result := make([]messageJSON, len(messages))
	for i, m := range messages {
		result[i] = messageJSON{ID: m.ID, Role: string(m.Role), Content: m.Content, CreatedAt: m.CreatedAt}
	}
	s.writeJSON(w, map[string]any{"session": toSessionJSON(session), "messages": result})
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		actions []*domain.PendingAction
		err     error
	)
	if raw := r.URL.Query().Get("session_id"); raw != "" {
		id, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			http.Error(w, "invalid session_id", http.StatusBadRequest)
			return
		}
		actions, err = s.actionUC.Pending(ctx, id)
	} else {
		actions, err = s.actionUC.Recent(ctx, listLimit(r))
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	result := make([]actionJSON, len(actions))
	for i, a := range actions {
		result[i] = toActionJSON(a)
	}
	s.writeJSON(w, map[string]any{"actions": result})
}

func listLimit(r *http.Request) int {
	limit := defaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return min(limit, maxListLimit)
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.logger.Error("status request failed", "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
