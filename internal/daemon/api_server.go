package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"shortreel/internal/config"
	"shortreel/internal/logging"
	"shortreel/internal/queue"
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:   bind,
		token:  cfg.Paths.APIToken,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(srv.token, srv.handleStatus))
	mux.HandleFunc("/api/items", authMiddleware(srv.token, srv.handleItems))
	mux.HandleFunc("/api/items/", authMiddleware(srv.token, srv.handleItemAction))
	mux.HandleFunc("/api/weights", authMiddleware(srv.token, srv.handleWeights))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context, logger *slog.Logger) error {
	s.logger = logging.NewComponentLogger(logger, "api")
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listen address, useful when the bind port is 0.
func (s *apiServer) addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, NewStatusView(s.daemon.Status(r.Context())))
}

func (s *apiServer) handleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		status, err := queue.ParseStatus(value)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		statuses = append(statuses, status)
	}
	items, err := s.daemon.store.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, NewItemView(item))
	}
	s.writeJSON(w, http.StatusOK, ItemListResponse{Items: views})
}

// handleItemAction routes /api/items/{id} and /api/items/{id}/{action}.
func (s *apiServer) handleItemAction(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/items/")
	idPart, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid work item id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		item, err := s.daemon.store.GetByID(r.Context(), id)
		if err != nil {
			s.writeItemError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, NewItemView(item))
	case action == "stop" && r.Method == http.MethodPost:
		reason := s.decodeReason(r)
		item, err := s.daemon.store.Stop(r.Context(), id, reason)
		if err != nil {
			s.writeItemError(w, err)
			return
		}
		s.logger.Info("work item stopped via api",
			logging.Int64(logging.FieldItemID, id),
			logging.String("reason", reason))
		s.writeJSON(w, http.StatusOK, NewItemView(item))
	case action == "retry" && r.Method == http.MethodPost:
		item, err := s.daemon.store.RetryNow(r.Context(), id)
		if err != nil {
			s.writeItemError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, NewItemView(item))
	case action == "clear-attempts" && r.Method == http.MethodPost:
		item, err := s.daemon.store.ClearAttempts(r.Context(), id)
		if err != nil {
			s.writeItemError(w, err)
			return
		}
		s.logger.Info("work item attempts cleared via api",
			logging.Int64(logging.FieldItemID, id))
		s.writeJSON(w, http.StatusOK, NewItemView(item))
	default:
		s.writeError(w, http.StatusNotFound, "unknown item action")
	}
}

func (s *apiServer) handleWeights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rows := s.daemon.workflow.Model().Report()
	if scope := strings.TrimSpace(r.URL.Query().Get("scope")); scope != "" {
		filtered := rows[:0]
		for _, row := range rows {
			if row.Scope == scope {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}
	s.writeJSON(w, http.StatusOK, WeightsResponse{Weights: rows})
}

func (s *apiServer) decodeReason(r *http.Request) string {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return "stopped via api"
	}
	if strings.TrimSpace(body.Reason) == "" {
		return "stopped via api"
	}
	return body.Reason
}

func (s *apiServer) writeItemError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, queue.ErrNotCancellable):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && s.logger != nil {
		s.logger.Warn("failed to encode api response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
