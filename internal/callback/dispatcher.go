package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/structhub/docintake/internal/entity"
)

type Config struct {
	Attempts  int           // total attempts, default 3
	Timeout   time.Duration // per-attempt request timeout, default 30s
	BaseDelay time.Duration // linear backoff base, default 2s (delay = base * attempt)
}

// Dispatcher delivers the final job payload to the caller's webhook with
// bounded retry. Delivery failure is logged and swallowed; it never alters
// the job's terminal state or its billing decision.
type Dispatcher struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewDispatcher(cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	} else if cfg.BaseDelay == 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	return &Dispatcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Deliver POSTs the payload to url. Any non-2xx response or transport error
// counts as a failed attempt. After the final attempt the error is returned
// for logging only; callers must not fail the job on it.
func (d *Dispatcher) Deliver(ctx context.Context, url string, payload entity.CallbackPayload, jobID uuid.UUID) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.Attempts; attempt++ {
		lastErr = d.send(ctx, url, body)
		if lastErr == nil {
			d.logger.Info("callback.deliver.ok", "job_id", jobID, "url", url, "attempt", attempt)
			return nil
		}
		d.logger.Warn("callback.deliver.failed",
			"job_id", jobID, "url", url,
			"attempt", attempt, "attempts", d.cfg.Attempts,
			"error", lastErr,
		)
		if attempt < d.cfg.Attempts {
			// linear backoff: base, 2*base, ...
			delay := time.Duration(attempt) * d.cfg.BaseDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				d.logger.Warn("callback.deliver.aborted", "job_id", jobID, "error", ctx.Err())
				return ctx.Err()
			}
		}
	}
	d.logger.Error("callback.deliver.exhausted",
		"job_id", jobID, "url", url, "attempts", d.cfg.Attempts, "error", lastErr)
	return lastErr
}

func (d *Dispatcher) send(ctx context.Context, url string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback status %d", resp.StatusCode)
	}
	return nil
}
