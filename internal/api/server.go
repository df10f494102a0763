package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rdxz2/t3dapi/internal/metrics"
	"github.com/rdxz2/t3dapi/internal/room"
	"github.com/rdxz2/t3dapi/pkg/types"
)

// HealthChecker is a dependency the health endpoint probes
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Registry interface to avoid tight coupling to websocket.Registry implementation
type Registry interface {
	GetStats() map[string]int
}

// Directory is the read side of the room directory the API reports on
type Directory interface {
	Occupancy(codes []string) []types.Occupancy
	Stats() room.Stats
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no room logic, only HTTP handling and JSON serialization
type Server struct {
	checks    map[string]HealthChecker
	registry  Registry
	directory Directory
	router    chi.Router
	logger    *zap.Logger
}

// Options carries the optional parts of the server
type Options struct {
	// AllowedOrigins configures CORS; empty or "*" allows any origin
	AllowedOrigins []string
	// WebSocket is mounted at /ws when set
	WebSocket http.Handler
	// Checks are probed by /health, keyed by component name
	Checks map[string]HealthChecker
}

// FUNCTIONAL DISCOVERY: Constructor initializes all dependencies and sets up routing
// Dependency injection pattern maintains architectural boundaries
func NewServer(directory Directory, registry Registry, options Options, logger *zap.Logger) *Server {
	s := &Server{
		checks:    options.Checks,
		registry:  registry,
		directory: directory,
		router:    chi.NewRouter(),
		logger:    logger.Named("api"),
	}

	s.setupRoutes(options)
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions with shared middleware.
// No request timeout middleware: /ws requests are hijacked and live for hours.
func (s *Server) setupRoutes(options Options) {
	origins := options.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         86400,
	}))
	s.router.Use(middleware.RequestID, middleware.RealIP, s.requestLogger, middleware.Recoverer, metrics.Middleware)

	s.router.Get("/health", s.healthCheck)
	s.router.Get("/api/rooms/occupancy", s.occupancy)
	s.router.Handle("/metrics", promhttp.Handler())
	if options.WebSocket != nil {
		s.router.Handle("/ws", options.WebSocket)
	}
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("duration", time.Since(start)))
	})
}

type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Components  map[string]string `json:"components"`
	Connections map[string]int    `json:"connections"`
	Rooms       room.Stats        `json:"rooms"`
}

type OccupancyResponse struct {
	Rooms []types.Occupancy `json:"rooms"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	components := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			components[name] = "error: " + err.Error()
			continue
		}
		components[name] = "healthy"
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Components:  components,
		Connections: s.registry.GetStats(),
		Rooms:       s.directory.Stats(),
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, response)
}

// GET /api/rooms/occupancy?codes=A,B (or repeated code=) reports member counts
// of the requested rooms that are active, in request order
func (s *Server) occupancy(w http.ResponseWriter, r *http.Request) {
	codes := occupancyCodes(r)
	if len(codes) == 0 {
		s.sendError(w, "at least one project code is required", http.StatusBadRequest)
		return
	}

	s.writeJSON(w, http.StatusOK, OccupancyResponse{Rooms: s.directory.Occupancy(codes)})
}

// occupancyCodes collects the requested codes, dropping duplicates and codes
// that can never name a room
func occupancyCodes(r *http.Request) []string {
	query := r.URL.Query()
	var raw []string
	for _, v := range query["codes"] {
		raw = append(raw, strings.Split(v, ",")...)
	}
	raw = append(raw, query["code"]...)

	seen := make(map[string]struct{}, len(raw))
	codes := make([]string, 0, len(raw))
	for _, code := range raw {
		code = strings.TrimSpace(code)
		if !types.IsValidProjectCode(code) {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}

// ComponentNames lists the health checks in a stable order
func (s *Server) ComponentNames() []string {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}
