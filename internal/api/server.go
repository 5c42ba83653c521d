// Package api exposes the read-only HTTP surface: health probing and
// introspection of the live routing state.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tutorhub/internal/router"
)

// HealthChecker is the slice of the store the API needs.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server handles HTTP API requests. It holds no business logic; routing
// state comes from the message router and durability status from the store.
type Server struct {
	messageRouter *router.Router
	store         HealthChecker
	mux           *http.ServeMux
	startedAt     time.Time
}

// NewServer creates an API server and sets up its routes.
func NewServer(messageRouter *router.Router, store HealthChecker) *Server {
	s := &Server{
		messageRouter: messageRouter,
		store:         store,
		mux:           http.NewServeMux(),
		startedAt:     time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleHealth))))
	s.mux.Handle("/api/online", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleOnline))))
	s.mux.Handle("/api/backlog", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleBacklog))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Database  string    `json:"database"`
	Online    int       `json:"online"`
}

type onlineResponse struct {
	Participants []router.ParticipantState `json:"participants"`
	Count        int                       `json:"count"`
}

type backlogResponse struct {
	Summary string `json:"summary"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET /health reports store connectivity and the online participant count.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		Database:  dbStatus,
		Online:    s.messageRouter.OnlineCount(),
	})
}

// GET /api/online lists connected participants with their help state.
func (s *Server) handleOnline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	states := s.messageRouter.Snapshot()
	_ = json.NewEncoder(w).Encode(onlineResponse{
		Participants: states,
		Count:        len(states),
	})
}

// GET /api/backlog returns the unhelped-student summary, empty when no
// student is waiting.
func (s *Server) handleBacklog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_ = json.NewEncoder(w).Encode(backlogResponse{
		Summary: s.messageRouter.HelpSummary(),
	})
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
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
