package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"chatrelay/internal/presence"
	"chatrelay/internal/session"
	"chatrelay/pkg/interfaces"
)

// Presence is the read side of the presence registry
type Presence interface {
	Stats() presence.Stats
	OnlineUsers() []string
	LiveConnectionsFor(username string) []interfaces.Connection
}

// Listeners is the read side of the broker bridge
type Listeners interface {
	ListenerCount() int
	ListenersFor(username string) []string
}

// Sessions reports connection handler counters
type Sessions interface {
	Stats() session.Stats
}

// Pinger is implemented by brokers that can check their upstream
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes operational endpoints; it never touches chat traffic
// ARCHITECTURAL DISCOVERY: HTTP API layer is a pure read-only view over the core
type Server struct {
	store     interfaces.Store
	broker    interfaces.Broker
	presence  Presence
	listeners Listeners
	sessions  Sessions
	log       *zap.Logger
	started   time.Time
	router    *http.ServeMux
}

func NewServer(store interfaces.Store, broker interfaces.Broker, presence Presence, listeners Listeners, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		store:     store,
		broker:    broker,
		presence:  presence,
		listeners: listeners,
		log:       log,
		started:   time.Now(),
		router:    http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

// SetSessions adds session counters to /api/stats
func (s *Server) SetSessions(sessions Sessions) {
	s.sessions = sessions
}

func (s *Server) setupRoutes() {
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
	s.router.Handle("/api/stats", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.stats))))
	s.router.Handle("/api/users", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.onlineUsers))))
	s.router.Handle("/api/users/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.userPresence))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Uptime    string            `json:"uptime"`
}

type StatsResponse struct {
	OnlineUsers      int `json:"online_users"`
	TotalConnections int `json:"total_connections"`
	Listeners        int `json:"listeners"`
	Goroutines       int `json:"goroutines"`

	OpenSessions          int64 `json:"open_sessions,omitempty"`
	AuthenticatedSessions int64 `json:"authenticated_sessions,omitempty"`
}

type OnlineUsersResponse struct {
	Users []string `json:"users"`
}

type UserPresenceResponse struct {
	Username    string `json:"username"`
	Online      bool   `json:"online"`
	Connections int    `json:"connections"`
	Listeners   int    `json:"listeners"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// healthCheck reports 503 when the store or a pingable broker is unreachable
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	checks := map[string]string{"database": "healthy", "broker": "healthy"}

	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		checks["database"] = fmt.Sprintf("error: %v", err)
	}
	if pinger, ok := s.broker.(Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			status = "unhealthy"
			checks["broker"] = fmt.Sprintf("error: %v", err)
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
		s.log.Warn("health check failed", zap.Any("checks", checks))
	}

	s.sendJSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	p := s.presence.Stats()
	resp := StatsResponse{
		OnlineUsers:      p.OnlineUsers,
		TotalConnections: p.TotalConnections,
		Listeners:        s.listeners.ListenerCount(),
		Goroutines:       runtime.NumGoroutine(),
	}
	if s.sessions != nil {
		st := s.sessions.Stats()
		resp.OpenSessions = st.Open
		resp.AuthenticatedSessions = st.Authenticated
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) onlineUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	users := s.presence.OnlineUsers()
	sort.Strings(users)
	if users == nil {
		users = []string{}
	}
	s.sendJSON(w, http.StatusOK, OnlineUsersResponse{Users: users})
}

// userPresence serves GET /api/users/{username}
func (s *Server) userPresence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	username := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/users/"), "/")
	if username == "" || strings.Contains(username, "/") {
		s.sendError(w, "Username required", http.StatusBadRequest)
		return
	}

	if _, err := s.store.FindUser(r.Context(), username); err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			s.sendError(w, "User not found", http.StatusNotFound)
			return
		}
		s.sendError(w, "Failed to look up user", http.StatusInternalServerError)
		return
	}

	conns := len(s.presence.LiveConnectionsFor(username))
	s.sendJSON(w, http.StatusOK, UserPresenceResponse{
		Username:    username,
		Online:      conns > 0,
		Connections: conns,
		Listeners:   len(s.listeners.ListenersFor(username)),
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, body any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
