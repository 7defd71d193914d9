// Package server hosts the relay behind HTTP and API Gateway.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"linerelay/internal/line"
	"linerelay/internal/metrics"
	"linerelay/internal/relay"
)

// Dispatcher handles one raw webhook delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, body []byte) (*relay.Result, error)
}

// Config configures the webhook host.
type Config struct {
	Host           string
	Port           int
	Path           string // webhook URL path (default: /webhook)
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	ChannelSecret  string // enables X-Line-Signature verification
	MetricsPath    string // empty disables the metrics endpoint
	Metrics        *metrics.Collector
	Logger         *slog.Logger
}

// Server accepts LINE webhook deliveries and runs them through a Dispatcher.
type Server struct {
	cfg        Config
	dispatcher Dispatcher
	logger     *slog.Logger
	server     *http.Server
}

func New(cfg Config, d Dispatcher) *Server {
	if cfg.Path == "" {
		cfg.Path = "/webhook"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20 // 1MB
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, dispatcher: d, logger: cfg.Logger}
}

// Response is the JSON body of every webhook answer.
type Response struct {
	Status    string `json:"status"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Error     string `json:"error,omitempty"`
}

// Handler returns the HTTP routes of the host.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleWebhook)
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.Write([]byte(`{"status":"ok"}`))
	})
	if s.cfg.MetricsPath != "" && s.cfg.Metrics != nil {
		mux.Handle("GET "+s.cfg.MetricsPath, s.cfg.Metrics.Handler())
	}
	return mux
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("webhook server starting", "addr", addr, "path", s.cfg.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

func (s *Server) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.cfg.Metrics.Request(strconv.Itoa(http.StatusRequestEntityTooLarge))
			http.Error(rw, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		s.cfg.Metrics.Request(strconv.Itoa(http.StatusBadRequest))
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}

	// Dispatch errors are already logged; the body carries only the stage.
	status, resp, _ := s.Invoke(r.Context(), body, r.Header.Get(line.SignatureHeader))
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(resp)
}

// Invoke verifies and dispatches one delivery and returns the status code
// and body to answer with. Both hosts go through here. The error is the
// dispatch failure behind a 500, if any.
func (s *Server) Invoke(ctx context.Context, body []byte, signature string) (int, Response, error) {
	requestID := uuid.NewString()
	logger := s.logger.With("request_id", requestID)

	status, resp, err := s.invoke(ctx, logger, body, signature)
	s.cfg.Metrics.Request(strconv.Itoa(status))
	return status, resp, err
}

func (s *Server) invoke(ctx context.Context, logger *slog.Logger, body []byte, signature string) (int, Response, error) {
	if s.cfg.ChannelSecret != "" {
		if signature == "" {
			logger.Warn("webhook rejected: missing signature")
			return http.StatusUnauthorized, Response{Status: "error", Error: "missing signature"}, nil
		}
		if !line.VerifySignature(body, s.cfg.ChannelSecret, signature) {
			logger.Warn("webhook rejected: invalid signature")
			return http.StatusForbidden, Response{Status: "error", Error: "invalid signature"}, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	logger.Info("webhook received", "content_len", len(body))
	start := time.Now()

	res, err := s.dispatcher.Dispatch(ctx, body)
	if err != nil {
		logger.Error("webhook failed", "err", err, "duration", time.Since(start))
		resp := Response{Status: "error", Error: clientError(err)}
		if res != nil {
			resp.Processed = len(res.Processed)
			resp.Skipped = res.Skipped
		}
		return http.StatusInternalServerError, resp, err
	}

	logger.Info("webhook handled",
		"processed", len(res.Processed),
		"skipped", res.Skipped,
		"duration", time.Since(start),
	)
	return http.StatusOK, Response{Status: "ok", Processed: len(res.Processed), Skipped: res.Skipped}, nil
}

// clientError is the error text sent back to the caller. Upstream response
// bodies stay in the log.
func clientError(err error) string {
	var stageErr *relay.StageError
	switch {
	case errors.As(err, &stageErr):
		return stageErr.Stage + " failed"
	case errors.Is(err, relay.ErrMalformedPayload):
		return "malformed payload"
	}
	return "internal error"
}
