package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/structhub/docintake/constants"
	"github.com/structhub/docintake/internal/common"
	"github.com/structhub/docintake/internal/entity"
	"github.com/structhub/docintake/internal/repository"
)

// Deliverer is the webhook boundary the processor reports outcomes through.
type Deliverer interface {
	Deliver(ctx context.Context, url string, payload entity.CallbackPayload, jobID uuid.UUID) error
}

// Processor drives one job end-to-end: load configuration, run the strategy
// selector, debit the ledger, write the terminal state + audit log, deliver
// the callback, and remove the temp file. Every failure inside the pipeline
// is caught here and converted into a terminal failed state; nothing crashes
// a worker.
type Processor struct {
	logger     *slog.Logger
	jobs       repository.JobRepository
	ledger     repository.LedgerRepository
	audit      repository.AuditRepository
	selector   StrategyRunner
	dispatcher Deliverer
	minCharge  int64
}

func NewProcessor(
	logger *slog.Logger,
	jobs repository.JobRepository,
	ledger repository.LedgerRepository,
	audit repository.AuditRepository,
	selector StrategyRunner,
	dispatcher Deliverer,
	minCharge int64,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if minCharge < 0 {
		minCharge = 0
	}
	return &Processor{
		logger:     logger,
		jobs:       jobs,
		ledger:     ledger,
		audit:      audit,
		selector:   selector,
		dispatcher: dispatcher,
		minCharge:  minCharge,
	}
}

// outcome carries whatever context the pipeline obtained before finishing or
// failing; the cleanup phase uses it even after an early failure.
type outcome struct {
	status      constants.JobStatus
	data        map[string]any
	usage       entity.Usage
	billed      int64
	errMsg      string
	callbackURL string
}

// ProcessJob runs the state machine for one job. The temp file is released
// on every exit path, including panics raised before extraction starts.
func (p *Processor) ProcessJob(ctx context.Context, jobID uuid.UUID, filePath string) {
	defer p.removeTempFile(jobID, filePath)

	res := p.run(ctx, jobID, filePath)
	p.finish(ctx, jobID, res)
}

func (p *Processor) run(ctx context.Context, jobID uuid.UUID, filePath string) (res outcome) {
	res.status = constants.JobStatusFailed
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job.process.panic", "job_id", jobID, "panic", r)
			res.status = constants.JobStatusFailed
			res.errMsg = fmt.Sprintf("unexpected error: %v", r)
			res.data = nil
			res.billed = 0
		}
	}()

	p.logger.Info("job.process.start", "job_id", jobID, "file", filePath)
	ctx = common.WithJobID(ctx, jobID.String())

	// 1. Load job + endpoint configuration.
	job, err := p.jobs.GetJob(ctx, jobID)
	if err != nil {
		res.errMsg = failureMessage(err)
		return res
	}
	ctx = common.WithAccountID(ctx, job.AccountID.String())
	res.callbackURL = job.Endpoint.CallbackURL
	if len(job.Endpoint.Schema) == 0 {
		res.errMsg = failureMessage(common.ConfigError("output schema is required"))
		return res
	}
	if job.Endpoint.CallbackURL == "" {
		res.errMsg = failureMessage(common.ConfigError("callback URL is required"))
		return res
	}

	// 2. Run the strategy selector.
	data, usage, err := p.selector.Run(ctx, filePath, job.Endpoint.Schema, job.Endpoint.AnalysisMode)
	res.usage = usage
	if err != nil {
		res.errMsg = failureMessage(err)
		return res
	}

	// 3. Debit the ledger for the measured cost. Billing happens only on a
	// deliverable result; an unbillable result is withheld from the caller.
	cost := usage.TotalTokens
	if cost < p.minCharge {
		cost = p.minCharge
	}
	ok, err := p.ledger.Debit(ctx, job.AccountID, cost)
	if err != nil {
		res.errMsg = failureMessage(err)
		return res
	}
	if !ok {
		p.logger.Warn("job.billing.insufficient", "job_id", jobID, "account_id", job.AccountID, "cost", cost)
		res.errMsg = failureMessage(common.ErrInsufficientCredits)
		return res
	}

	res.status = constants.JobStatusCompleted
	res.data = data
	res.billed = cost
	return res
}

// finish is the cleanup phase: exactly one terminal status write, the audit
// row, and the callback, all reached regardless of which step failed.
func (p *Processor) finish(ctx context.Context, jobID uuid.UUID, res outcome) {
	if err := p.jobs.SetJobStatus(ctx, jobID, res.status, res.billed); err != nil {
		if res.billed > 0 {
			// The debit landed but the terminal write did not: the audit row
			// below still records the billed cost for reconciliation.
			p.logger.Error("job.finish.billed_but_unrecorded",
				"job_id", jobID, "billed", res.billed, "error", err)
		} else {
			p.logger.Error("job.finish.status_write_failed", "job_id", jobID, "error", err)
		}
	}

	var errText *string
	if res.errMsg != "" {
		errText = &res.errMsg
	}
	payload := entity.CallbackPayload{
		Status: res.status,
		Data:   res.data,
		Error:  errText,
		Usage:  res.usage,
	}

	entry := &entity.AuditEntry{
		JobID:      jobID,
		PayloadOut: payload,
		Error:      res.errMsg,
		CreditUse:  res.billed,
	}
	if err := p.audit.Append(ctx, entry); err != nil {
		p.logger.Error("job.finish.audit_failed", "job_id", jobID, "error", err)
	}

	if res.callbackURL != "" {
		if err := p.dispatcher.Deliver(ctx, res.callbackURL, payload, jobID); err != nil {
			p.logger.Error("job.callback.undelivered", "job_id", jobID, "error", err)
		}
	} else {
		p.logger.Warn("job.callback.skipped", "job_id", jobID, "reason", "no callback url")
	}

	p.logger.Info("job.process.done",
		"job_id", jobID, "status", res.status, "billed", res.billed,
		"total_tokens", res.usage.TotalTokens,
	)
}

func (p *Processor) removeTempFile(jobID uuid.UUID, filePath string) {
	if filePath == "" {
		return
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("job.tempfile.remove_failed", "job_id", jobID, "file", filePath, "error", err)
	}
}

// failureMessage converts a pipeline error into the human-readable message
// recorded on the job, the audit row, and the callback payload.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, common.ErrInsufficientCredits):
		return "insufficient credits"
	case errors.Is(err, common.ErrConfig):
		return "configuration error: " + err.Error()
	case errors.Is(err, common.ErrFileProcessing):
		return "file processing error: " + err.Error()
	case errors.Is(err, common.ErrAIService):
		return "ai service error: " + err.Error()
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrDatabase):
		return "database error: " + err.Error()
	default:
		return "unexpected error: " + err.Error()
	}
}
