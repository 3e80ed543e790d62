// Package httpserver serves the confession board over HTTP.
//
// The write routes (POST /connect, /confess, /api/connect and
// /api/confessions) are unauthenticated and sign transactions with the
// configured wallet, so anyone who can reach the server can spend its gas.
// The server binds to localhost unless HTTP_HOST says otherwise.
package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blackmichael/confession-board/internal/config"
	"github.com/blackmichael/confession-board/internal/display"
	"github.com/blackmichael/confession-board/internal/domain"
)

// maxMessageBytes caps request bodies, not confessions themselves.
const maxMessageBytes = 64 << 10

// Server is the HTTP server that serves the confession board.
type Server struct {
	cfg        *config.Config
	board      *domain.Board
	logger     *slog.Logger
	httpServer *http.Server
	now        func() time.Time
}

// NewServer creates a new HTTP server for the given board.
func NewServer(cfg *config.Config, board *domain.Board, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		board:  board,
		logger: logger,
		now:    time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /connect", s.handleConnectForm)
	mux.HandleFunc("POST /confess", s.handleConfessForm)
	mux.HandleFunc("GET /api/board", s.handleBoard)
	mux.HandleFunc("POST /api/connect", s.handleConnect)
	mux.HandleFunc("POST /api/confessions", s.handleSubmit)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBoard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.toBoardResponse(s.board.Snapshot()))
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	err := s.board.ConnectWallet(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.toBoardResponse(s.board.Snapshot()))
	case errors.Is(err, domain.ErrNoWallet):
		writeError(w, http.StatusPreconditionFailed, "NoWallet", domain.NoWalletAlert)
	case errors.Is(err, domain.ErrUserRejected):
		writeError(w, http.StatusForbidden, "UserRejected", "wallet authorization was declined")
	default:
		s.logger.Error("failed to connect wallet", "error", err)
		writeError(w, http.StatusBadGateway, "InternalError", "failed to connect wallet")
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "body must be JSON with a message field")
		return
	}

	sub, err := s.board.Submit(r.Context(), req.Message)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"tx": sub.Hash().Hex()})
	case errors.Is(err, domain.ErrNotConnected):
		writeError(w, http.StatusPreconditionFailed, "NotConnected", "connect a wallet first")
	case errors.Is(err, domain.ErrSubmissionPending):
		writeError(w, http.StatusConflict, "Pending", "a confession is already pending")
	default:
		s.logger.Error("failed to submit confession", "error", err)
		writeError(w, http.StatusBadGateway, "SubmitFailed", err.Error())
	}
}

func (s *Server) handleConnectForm(w http.ResponseWriter, r *http.Request) {
	if err := s.board.ConnectWallet(r.Context()); err != nil {
		s.logger.Info("wallet connect from page failed", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleConfessForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "invalid form")
		return
	}

	if _, err := s.board.Submit(r.Context(), r.PostFormValue("message")); err != nil {
		s.logger.Info("confession from page failed", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type confessionResponse struct {
	Sender      string    `json:"sender"`
	ShortSender string    `json:"short_sender"`
	Message     string    `json:"message"`
	OccurredAt  time.Time `json:"occurred_at"`
	Calendar    string    `json:"calendar"`
	Relative    string    `json:"relative"`
}

type boardResponse struct {
	Account     string               `json:"account,omitempty"`
	Connected   bool                 `json:"connected"`
	Pending     bool                 `json:"pending"`
	PendingTx   string               `json:"pending_tx,omitempty"`
	Alert       string               `json:"alert,omitempty"`
	Error       string               `json:"error,omitempty"`
	Confessions []confessionResponse `json:"confessions"`
}

func (s *Server) toBoardResponse(snap domain.Snapshot) boardResponse {
	now := s.now()
	resp := boardResponse{
		Connected:   snap.Connected,
		Pending:     snap.Pending,
		Alert:       snap.Alert,
		Error:       snap.LastError,
		Confessions: make([]confessionResponse, len(snap.Feed)),
	}
	if snap.Connected {
		resp.Account = snap.Account.Hex()
	}
	if snap.Pending && snap.PendingTx != (common.Hash{}) {
		resp.PendingTx = snap.PendingTx.Hex()
	}
	for i, c := range snap.Feed {
		sender := c.Sender.Hex()
		resp.Confessions[i] = confessionResponse{
			Sender:      sender,
			ShortSender: display.ShortAddress(sender),
			Message:     c.Message,
			OccurredAt:  c.OccurredAt,
			Calendar:    display.Calendar(c.OccurredAt, now),
			Relative:    display.Relative(c.OccurredAt, now),
		}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
