package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"inventory_sync/internal/config"
	"inventory_sync/internal/domain"
)

// Pipeline is the ingestion surface the webhook dispatches into.
type Pipeline interface {
	Sync(ctx context.Context, vehicles []domain.IncomingVehicle, meta *domain.SyncMeta) (*domain.SyncStats, error)
	RecordHeartbeat(ctx context.Context) error
	RelayStatus(ctx context.Context, status, message string)
}

type Server struct {
	pipeline Pipeline
	token    string
	logger   *slog.Logger
	httpSrv  *http.Server
}

func New(pipeline Pipeline, cfg config.ServerConfig, logger *slog.Logger) *Server {
	s := &Server{
		pipeline: pipeline,
		token:    cfg.SyncToken,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/webhooks", func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Post("/inventory-sync", s.handleInventorySync)
	})

	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// syncRequest is the union of the three inbound message shapes. Vehicles is
// kept raw so classification can distinguish "absent" from "not an array".
type syncRequest struct {
	Type     string           `json:"type"`
	Status   string           `json:"status"`
	Message  string           `json:"message"`
	Vehicles json.RawMessage  `json:"vehicles"`
	Meta     *domain.SyncMeta `json:"meta"`
}

type syncResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Stats   *statsBody `json:"stats,omitempty"`
}

type statsBody struct {
	Processed int `json:"processed"`
	Sold      int `json:"sold"`
	Skipped   int `json:"skipped"`
}

// handleInventorySync classifies the authenticated payload and dispatches to
// the heartbeat recorder, the status relay or the snapshot reconciler.
func (s *Server) handleInventorySync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	switch req.Type {
	case "HEARTBEAT":
		s.handleHeartbeat(w, r)
	case "STATUS_UPDATE":
		s.handleStatusUpdate(w, r, req)
	default:
		s.handleSnapshot(w, r, req)
	}
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.RecordHeartbeat(r.Context()); err != nil {
		s.logger.Error("failed to record heartbeat", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{Success: true, Message: "Heartbeat recorded."})
}

func (s *Server) handleStatusUpdate(w http.ResponseWriter, r *http.Request, req syncRequest) {
	s.pipeline.RelayStatus(r.Context(), req.Status, req.Message)
	writeJSON(w, http.StatusOK, syncResponse{Success: true, Message: "Status recorded."})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, req syncRequest) {
	vehicles, ok := decodeVehicles(req.Vehicles)
	if !ok {
		writeError(w, http.StatusBadRequest, `Invalid data format. "vehicles" array required.`)
		return
	}

	stats, err := s.pipeline.Sync(r.Context(), vehicles, req.Meta)
	if err != nil {
		s.logger.Error("inventory sync failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{
		Success: true,
		Message: fmt.Sprintf("Processed %d vehicles.", stats.Processed),
		Stats: &statsBody{
			Processed: stats.Processed,
			Sold:      stats.Sold,
			Skipped:   stats.Skipped,
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeVehicles accepts only a JSON array; anything else (absent, null,
// object, string) rejects the call before any handler side effect.
func decodeVehicles(raw json.RawMessage) ([]domain.IncomingVehicle, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}

	var vehicles []domain.IncomingVehicle
	if err := json.Unmarshal(trimmed, &vehicles); err != nil {
		return nil, false
	}
	if vehicles == nil {
		vehicles = []domain.IncomingVehicle{}
	}
	return vehicles, true
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
