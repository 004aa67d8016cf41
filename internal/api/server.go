// Package api exposes the relay over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/botrelay/internal/core/domain"
	"github.com/vietddude/botrelay/internal/infra/storage/media"
	"github.com/vietddude/botrelay/internal/relay/health"
)

// QueryRunner relays one command.
type QueryRunner interface {
	Query(ctx context.Context, command string) (*domain.AggregatedResult, error)
}

// HealthReporter reports actor health.
type HealthReporter interface {
	CheckHealth(ctx context.Context) health.Report
}

// Server provides the HTTP endpoints of the relay.
type Server struct {
	runner  QueryRunner
	monitor HealthReporter
	server  *http.Server
	log     *slog.Logger
}

// NewServer creates a new server. mediaDir may be empty to disable /files/.
func NewServer(runner QueryRunner, monitor HealthReporter, mediaDir string, port int, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		runner:  runner,
		monitor: monitor,
		log:     log,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(mediaDir),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the handler.
func (s *Server) Routes(mediaDir string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/query", s.handleQuery)
	mux.HandleFunc("POST /v1/query", s.handleQuery)
	mux.HandleFunc("GET /v1/cmd/{name}", s.handleCommand)
	mux.HandleFunc("GET /v1/names", s.handleNames)
	mux.HandleFunc("GET /v1/names/venezuela", s.handleVenezuelanNames)

	if mediaDir != "" {
		files := http.StripPrefix(media.RoutePrefix, http.FileServer(http.Dir(mediaDir)))
		mux.Handle("GET "+media.RoutePrefix, attachment(files))
	}

	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "bot relay gateway is running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	code := http.StatusOK
	if report.SystemStatus == health.StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

type queryRequest struct {
	Command string `json:"command"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var command string
	if r.Method == http.MethodPost {
		var req queryRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
			writeError(w, &CommandError{"invalid JSON body"})
			return
		}
		command = req.Command
	} else {
		command = r.URL.Query().Get("command")
	}
	s.relay(w, r, command)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	command, err := BuildCommand(r.PathValue("name"), r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	s.relay(w, r, command)
}

func (s *Server) handleNames(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	command, err := NameSearchCommand(q.Get("nombres"), q.Get("apepaterno"), q.Get("apematerno"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.relay(w, r, command)
}

func (s *Server) handleVenezuelanNames(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, &CommandError{"parameter 'query' is required"})
		return
	}
	s.relay(w, r, "/nmv "+query)
}

func (s *Server) relay(w http.ResponseWriter, r *http.Request, command string) {
	res, err := s.runner.Query(r.Context(), command)
	if err != nil {
		if domain.KindOf(err) == "" {
			s.log.Error("Query failed", "command", command, "error", err)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type errorBody struct {
	Status  string           `json:"status"`
	Kind    domain.ErrorKind `json:"kind,omitempty"`
	Message string           `json:"message"`
	Actor   domain.ActorID   `json:"bot_used,omitempty"`
}

// StatusCode maps an error to its HTTP status.
func StatusCode(err error) int {
	var ce *CommandError
	if errors.As(err, &ce) {
		return http.StatusBadRequest
	}
	switch domain.KindOf(err) {
	case domain.KindFormatError:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAllActorsBlocked:
		return http.StatusServiceUnavailable
	case domain.KindNoResponse:
		return http.StatusGatewayTimeout
	case domain.KindRateLimitedExhausted:
		return http.StatusTooManyRequests
	case domain.KindTransportUnavailable:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Status: "error", Message: err.Error()}

	var qe *domain.Error
	if errors.As(err, &qe) {
		body.Kind = qe.Kind
		body.Actor = qe.Actor
		if qe.Message != "" {
			body.Message = qe.Message
		}
	}
	code := StatusCode(err)
	if code == http.StatusInternalServerError {
		body.Message = "internal error"
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func attachment(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", "attachment")
		next.ServeHTTP(w, r)
	})
}
