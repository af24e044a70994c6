package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stakevault/core"
	coreerrors "stakevault/core/errors"
	"stakevault/indexer"
	"stakevault/observability"
)

const (
	maxRequestBytes = 1 << 20 // 1 MiB
	readTimeout     = 10 * time.Second
	writeTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// ServerConfig wires the HTTP API around a backend.
type ServerConfig struct {
	Auth        AuthConfig
	RateLimit   float64
	Burst       int
	Idempotency *IdempotencyStore
	Index       ReceiptIndex
	Exporter    Exporter
	Logger      *slog.Logger
}

// Server exposes instructions, queries and the receipt stream over HTTP.
type Server struct {
	backend  Backend
	cfg      ServerConfig
	logger   *slog.Logger
	auth     *authenticator
	limiter  *rateLimiter
	idem     *IdempotencyStore
	idemMu   sync.Mutex
	index    ReceiptIndex
	exporter Exporter
	now      func() time.Time

	router http.Handler
	srv    *http.Server
}

func NewServer(backend Backend, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		backend:  backend,
		cfg:      cfg,
		logger:   logger,
		auth:     newAuthenticator(cfg.Auth, logger),
		limiter:  newRateLimiter(cfg.RateLimit, cfg.Burst),
		idem:     cfg.Idempotency,
		index:    cfg.Index,
		exporter: cfg.Exporter,
		now:      time.Now,
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.auth.middleware)
		api.Use(s.limiter.middleware)
		api.With(observe("tx")).Post("/tx/{instruction}", s.handleInstruction)
		api.With(observe("query")).Get("/query/{name}", s.handleQuery)
		api.With(observe("query")).Get("/queries", s.handleListQueries)
		api.With(observe("query")).Get("/instructions", s.handleListInstructions)
		api.With(observe("receipts")).Get("/receipts", s.handleReceipts)
		api.With(observe("admin")).Post("/admin/export", s.handleExport)
		api.Get("/events/ws", s.handleEventStream)
	})
	return otelhttp.NewHandler(r, "vaultd")
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}
	s.logger.Info("rpc server listening", slog.String("addr", addr))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleInstruction(w http.ResponseWriter, r *http.Request) {
	sender, ok := SenderFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authorization", "instructions require an authenticated sender")
		return
	}
	kind := chi.URLParam(r, "instruction")
	if !core.IsSupportedInstruction(kind) {
		writeError(w, http.StatusNotFound, "unknown_instruction", "validation", "unknown instruction "+kind)
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "validation", "failed to read body")
		return
	}
	if len(payload) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "invalid_payload", "validation", "request body too large")
		return
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = nil
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key != "" && s.idem != nil {
		s.idemMu.Lock()
		defer s.idemMu.Unlock()
		scoped := sender.String() + "|" + kind + "|" + key
		if record, found, err := s.idem.Get(scoped, s.now()); err != nil {
			s.logger.WarnContext(r.Context(), "idempotency lookup failed", slog.Any("error", err))
		} else if found {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replay", "true")
			w.WriteHeader(record.StatusCode)
			_, _ = w.Write(record.Body)
			return
		}
		status, body := s.apply(r.Context(), core.Instruction{Type: kind, Sender: sender, Payload: payload})
		if status < http.StatusInternalServerError {
			if err := s.idem.Put(scoped, status, body, s.now()); err != nil {
				s.logger.WarnContext(r.Context(), "idempotency store failed", slog.Any("error", err))
			}
		}
		writeRaw(w, status, body)
		return
	}

	status, body := s.apply(r.Context(), core.Instruction{Type: kind, Sender: sender, Payload: payload})
	writeRaw(w, status, body)
}

func (s *Server) apply(ctx context.Context, instr core.Instruction) (int, []byte) {
	receipt, err := s.backend.Apply(ctx, instr)
	if receipt == nil {
		if err == nil {
			err = errors.New("no receipt")
		}
		return http.StatusServiceUnavailable, encodeError("unavailable", "", err.Error())
	}
	status := http.StatusOK
	if err != nil {
		status = statusForError(err)
		if s.index != nil {
			if recErr := s.index.Record(ctx, receipt); recErr != nil {
				s.logger.WarnContext(ctx, "index rejected receipt", slog.Any("error", recErr))
			}
		}
	}
	body, encErr := json.Marshal(receipt)
	if encErr != nil {
		return http.StatusInternalServerError, encodeError("internal", "", encErr.Error())
	}
	return status, body
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	params := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	result, err := s.backend.Query(r.Context(), name, params)
	if err != nil {
		status := statusForError(err)
		if errors.Is(err, core.ErrQueryNotSupported) {
			status = http.StatusNotFound
		}
		writeError(w, status, coreerrors.CodeOf(err), core.ClassName(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, QueryResult{Query: name, Result: result})
}

func (s *Server) handleListQueries(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, core.SupportedQueries())
}

func (s *Server) handleListInstructions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, core.SupportedInstructions())
}

func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(w, http.StatusNotImplemented, "indexer_disabled", "", "receipt index is not configured")
		return
	}
	q := r.URL.Query()
	filter := indexer.ReceiptFilter{
		Sender:      strings.TrimSpace(q.Get("sender")),
		Instruction: strings.TrimSpace(q.Get("instruction")),
		FailedOnly:  q.Get("failed") == "true",
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid_query_param", "validation", "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	records, err := s.index.Receipts(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "", err.Error())
		return
	}
	out := make([]ReceiptSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, summarizeReceipt(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleExport writes a ledger snapshot. Only the vault owner may trigger it.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export_disabled", "", "ledger export is not configured")
		return
	}
	sender, ok := SenderFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authorization", "export requires an authenticated sender")
		return
	}
	owner, err := s.backend.Owner()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "", err.Error())
		return
	}
	if !owner.Equal(sender) {
		writeError(w, http.StatusForbidden, "unauthorized", "authorization", "only the owner may export")
		return
	}
	manifest, err := s.exporter.RunOnce(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export_failed", "", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ExportResult{Dir: manifest.Dir, StateRoot: manifest.StateRoot, Files: manifest.Files})
}

func statusForError(err error) int {
	switch coreerrors.ClassOf(err) {
	case coreerrors.ErrValidation:
		return http.StatusBadRequest
	case coreerrors.ErrAuthorization:
		return http.StatusForbidden
	case coreerrors.ErrState:
		return http.StatusConflict
	case coreerrors.ErrArithmetic:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func observe(module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			method := chi.URLParam(r, "instruction")
			if method == "" {
				method = chi.URLParam(r, "name")
			}
			if method == "" {
				method = r.Method
			}
			observability.RPC().Observe(module, method, recorder.status, time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code, class, message string) {
	writeRaw(w, status, encodeError(code, class, message))
}

func encodeError(code, class, message string) []byte {
	if code == "" {
		code = "internal"
	}
	body, _ := json.Marshal(ErrorBody{Error: ErrorDetail{Code: code, Class: class, Message: message}})
	return body
}
