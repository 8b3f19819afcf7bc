package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/structhub/docintake/constants"
	"github.com/structhub/docintake/internal/common"
	"github.com/structhub/docintake/internal/core/async"
	"github.com/structhub/docintake/internal/entity"
	"github.com/structhub/docintake/internal/extract"
	"github.com/structhub/docintake/internal/repository"
)

// Enqueuer hands accepted jobs to the background workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job) error
}

type Config struct {
	TempDir        string
	MaxUploadBytes int64
	RateLimitEvery time.Duration
	RateLimitBurst int
}

// Server is the HTTP front door: it authenticates the caller, spools the
// upload to a temp file, persists the job row in processing state, and hands
// the job to the queue. The HTTP response returns before processing runs.
type Server struct {
	cfg       Config
	logger    *slog.Logger
	accounts  repository.AccountRepository
	endpoints repository.EndpointRepository
	jobs      repository.JobRepository
	ledger    repository.LedgerRepository
	queue     Enqueuer

	limiters sync.Map // ip -> *rate.Limiter
}

func New(
	cfg Config,
	logger *slog.Logger,
	accounts repository.AccountRepository,
	endpoints repository.EndpointRepository,
	jobs repository.JobRepository,
	ledger repository.LedgerRepository,
	queue Enqueuer,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TempDir == "" {
		cfg.TempDir = "./tmp"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	if cfg.RateLimitEvery <= 0 {
		cfg.RateLimitEvery = 600 * time.Millisecond // ~100/min
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	return &Server{
		cfg:       cfg,
		logger:    logger,
		accounts:  accounts,
		endpoints: endpoints,
		jobs:      jobs,
		ledger:    ledger,
		queue:     queue,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/endpoints/{id}", s.handleSubmit)
	mux.HandleFunc("GET /v1/jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("GET /v1/account/balance", s.handleBalance)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return s.rateLimit(mux)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	endpointID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint id")
		return
	}
	endpoint, err := s.endpoints.Get(r.Context(), endpointID)
	if errors.Is(err, common.ErrNotFound) {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}
	if err != nil {
		s.logger.Error("endpoint lookup failed", "endpoint_id", endpointID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if endpoint.AccountID != accountID {
		writeError(w, http.StatusForbidden, "you do not have access to this endpoint")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer func() {
		_ = file.Close()
	}()

	ext := constants.NormalizeExt(filepath.Ext(header.Filename))
	if _, allowed := constants.AllowedExtensions[ext]; !allowed {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported file extension")
		return
	}

	tempPath, err := s.spool(file, header.Filename)
	if err != nil {
		s.logger.Error("upload spool failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	// Content sniff; the extension alone is not trusted.
	if _, _, err := extract.DetectFormat(tempPath); err != nil {
		s.removeSpooled(tempPath)
		writeError(w, http.StatusUnsupportedMediaType, "unsupported file content")
		return
	}

	job := &entity.Job{
		ID:         uuid.New(),
		AccountID:  accountID,
		EndpointID: endpointID,
		Status:     constants.JobStatusProcessing,
	}
	if err := s.jobs.Create(r.Context(), job); err != nil {
		s.removeSpooled(tempPath)
		s.logger.Error("job create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not register job")
		return
	}

	if err := s.queue.Enqueue(r.Context(), async.Job{ID: job.ID, FilePath: tempPath}); err != nil {
		s.logger.Error("job enqueue failed", "job_id", job.ID, "error", err)
	}

	s.logger.Info("job accepted", "job_id", job.ID, "endpoint_id", endpointID, "file", header.Filename)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "file received, processing has started",
		"job_id":  job.ID.String(),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, common.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if job.AccountID != accountID {
		writeError(w, http.StatusForbidden, "you do not have access to this job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":      job.ID.String(),
		"status":      string(job.Status),
		"tokens_used": job.TokensUsed,
		"created_at":  job.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	balance, err := s.ledger.Balance(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"credits": balance})
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	key = strings.TrimSpace(key)
	if key == "" {
		writeError(w, http.StatusUnauthorized, "missing api key")
		return uuid.Nil, false
	}
	accountID, err := s.accounts.GetByAPIKey(r.Context(), key)
	if errors.Is(err, common.ErrUnauthorized) {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return uuid.Nil, false
	}
	if err != nil {
		s.logger.Error("auth lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return uuid.Nil, false
	}
	return accountID, true
}

// spool writes the upload to the temp dir under a uuid-prefixed name.
func (s *Server) spool(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(s.cfg.TempDir, 0o755); err != nil {
		return "", err
	}
	name := uuid.New().String() + "_" + filepath.Base(strings.TrimSpace(filename))
	path := filepath.Join(s.cfg.TempDir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func (s *Server) removeSpooled(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("spooled file remove failed", "file", path, "error", err)
	}
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiterFor(ip).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limiterFor(ip string) *rate.Limiter {
	if v, ok := s.limiters.Load(ip); ok {
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(rate.Every(s.cfg.RateLimitEvery), s.cfg.RateLimitBurst)
	s.limiters.Store(ip, limiter)
	return limiter
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if idx := strings.Index(ip, ","); idx > 0 {
			return strings.TrimSpace(ip[:idx])
		}
		return strings.TrimSpace(ip)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
