package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mixtape/internal/api"
	"mixtape/internal/batch"
	"mixtape/internal/config"
	"mixtape/internal/logging"
	"mixtape/internal/workflow"
)

const (
	maxRequestBody = 1 << 20

	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	batches *api.BatchService

	upgrader websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	done     chan struct{}
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:    bind,
		logger:  logger,
		daemon:  d,
		batches: api.NewBatchService(d.workflow, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		done: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", srv.handleStatus)
	mux.HandleFunc("GET /api/batches", srv.handleListBatches)
	mux.HandleFunc("POST /api/batches", srv.handleCreateBatch)
	mux.HandleFunc("GET /api/batches/{id}", srv.handleGetBatch)
	mux.HandleFunc("DELETE /api/batches/{id}", srv.handleDeleteBatch)
	mux.HandleFunc("POST /api/batches/{id}/start", srv.handleStartBatch)
	mux.HandleFunc("POST /api/batches/{id}/cancel", srv.handleCancelBatch)
	mux.HandleFunc("GET /api/batches/{id}/progress", srv.handleProgress)
	mux.HandleFunc("GET /api/batches/{id}/ws", srv.handleWatch)
	mux.HandleFunc("GET /api/statistics", srv.handleStatistics)
	mux.HandleFunc("POST /api/validate", srv.handleValidate)
	mux.HandleFunc("POST /api/cleanup", srv.handleCleanup)
	mux.HandleFunc("POST /api/notifications/test", srv.handleTestNotification)

	srv.server = &http.Server{
		Handler:           srv.withRequestID(authMiddleware(cfg.Paths.APIToken, mux.ServeHTTP)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
		close(s.done)
	}
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if listener != nil {
		_ = listener.Close()
	}
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) withRequestID(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := logging.WithRequestID(r.Context(), id)
		logging.WithContext(ctx, s.log()).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		)
		next(w, r.WithContext(ctx))
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	deps := make([]api.DependencyStatus, len(status.Dependencies))
	for i, dep := range status.Dependencies {
		deps[i] = api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	payload := api.DaemonStatus{
		Running:       status.Running,
		PID:           status.PID,
		APIBind:       status.APIAddress,
		ActiveWorkers: status.ActiveWorkers,
		LockPath:      status.LockFilePath,
		Storage:       status.Storage,
		Statistics:    status.Statistics,
		Dependencies:  deps,
	}
	if !status.StartedAt.IsZero() {
		payload.StartedAt = status.StartedAt.UTC().Format(time.RFC3339)
	}
	s.writeEnvelope(w, api.Envelope{Success: true, Data: payload})
}

func (s *apiServer) handleListBatches(w http.ResponseWriter, r *http.Request) {
	s.writeEnvelope(w, s.batches.List(r.Context(), r.URL.Query().Get("status")))
}

func (s *apiServer) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req api.CreateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	env := s.batches.Create(r.Context(), req)
	if env.Success && queryBool(r, "start") {
		if created, ok := env.Data.(*batch.Batch); ok {
			env = s.batches.Start(r.Context(), created.ID)
		}
	}
	if env.Success {
		s.writeEnvelopeStatus(w, http.StatusCreated, env)
		return
	}
	s.writeEnvelope(w, env)
}

func (s *apiServer) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	s.writeEnvelope(w, s.batches.Get(r.Context(), r.PathValue("id")))
}

func (s *apiServer) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	s.writeEnvelope(w, s.batches.Delete(r.Context(), r.PathValue("id")))
}

func (s *apiServer) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	s.writeEnvelope(w, s.batches.Start(r.Context(), r.PathValue("id")))
}

func (s *apiServer) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	s.writeEnvelope(w, s.batches.Cancel(r.Context(), r.PathValue("id")))
}

func (s *apiServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.writeEnvelope(w, s.batches.Progress(r.Context(), r.PathValue("id")))
}

func (s *apiServer) handleStatistics(w http.ResponseWriter, r *http.Request) {
	s.writeEnvelope(w, s.batches.Statistics(r.Context()))
}

type validateRequest struct {
	Text string `json:"text"`
}

func (s *apiServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.writeEnvelope(w, s.batches.ValidateURLs(req.Text))
}

func (s *apiServer) handleCleanup(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeEnvelope(w, api.Envelope{
				Error:   batch.KindValidation,
				Message: fmt.Sprintf("invalid days value %q", raw),
			})
			return
		}
		days = parsed
	}
	s.writeEnvelope(w, s.batches.Cleanup(r.Context(), days))
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.writeEnvelope(w, api.Envelope{Error: batch.KindInternal, Message: message + ": " + err.Error()})
		return
	}
	s.writeEnvelope(w, api.Envelope{Success: true, Message: message, Data: map[string]bool{"sent": sent}})
}

// handleWatch streams Progress snapshots over a websocket until the batch
// reaches a terminal status, is deleted, or the client goes away.
func (s *apiServer) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	updates, unsubscribe := s.daemon.workflow.Subscribe(id)
	defer unsubscribe()

	env := s.batches.Progress(r.Context(), id)
	if !env.Success {
		s.writeEnvelope(w, env)
		return
	}
	initial, _ := env.Data.(workflow.Progress)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.WithContext(r.Context(), s.log()).Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(progress workflow.Progress) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(progress) == nil
	}
	finish := func(reason string) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			time.Now().Add(wsWriteWait))
	}

	if !send(initial) {
		return
	}
	if initial.Status.IsTerminal() {
		finish(string(initial.Status))
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-s.done:
			finish("daemon stopping")
			return
		case progress, ok := <-updates:
			if !ok {
				finish("batch deleted")
				return
			}
			if !send(progress) {
				return
			}
			if progress.Status.IsTerminal() {
				finish(string(progress.Status))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *apiServer) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		message := "invalid JSON body: " + err.Error()
		if errors.Is(err, io.EOF) {
			message = "request body required"
		}
		s.writeEnvelope(w, api.Envelope{Error: batch.KindValidation, Message: message})
		return false
	}
	return true
}

func queryBool(r *http.Request, key string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(key)))
	return err == nil && value
}

func (s *apiServer) writeEnvelope(w http.ResponseWriter, env api.Envelope) {
	s.writeEnvelopeStatus(w, api.HTTPStatus(env.Error), env)
}

func (s *apiServer) writeEnvelopeStatus(w http.ResponseWriter, status int, env api.Envelope) {
	s.writeJSON(w, status, env)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
