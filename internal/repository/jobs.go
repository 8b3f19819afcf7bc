package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/structhub/docintake/constants"
	"github.com/structhub/docintake/internal/common"
	"github.com/structhub/docintake/internal/entity"
)

type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	// GetJob loads a job together with its endpoint configuration.
	GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	SetJobStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus, tokensUsed int64) error
}

type jobRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewJobRepository(db *sql.DB, log *slog.Logger) JobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobRepo{db: db, log: log}
}

func (r *jobRepo) Create(ctx context.Context, job *entity.Job) error {
	if job.Status == "" {
		job.Status = constants.JobStatusProcessing
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (id, account_id, endpoint_id, status, tokens_used, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID.String(), job.AccountID.String(), job.EndpointID.String(),
		string(job.Status), job.TokensUsed, job.CreatedAt,
	)
	if err != nil {
		r.log.Error("job create failed", "job_id", job.ID, "err", err)
		return common.DatabaseError("create job", err)
	}
	r.log.Info("job created", "job_id", job.ID, "endpoint_id", job.EndpointID)
	return nil
}

func (r *jobRepo) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT j.id, j.account_id, j.endpoint_id, j.status, j.tokens_used, j.created_at,
		        e.schema_json, e.analysis_mode, e.callback_url
		 FROM jobs j
		 JOIN endpoints e ON e.id = j.endpoint_id
		 WHERE j.id = $1`,
		id.String(),
	)

	var (
		jobID, accountID, endpointID, status string
		tokensUsed                           int64
		createdAt                            time.Time
		schemaJSON, mode, callbackURL        string
	)
	err := row.Scan(&jobID, &accountID, &endpointID, &status, &tokensUsed, &createdAt,
		&schemaJSON, &mode, &callbackURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		r.log.Error("job get failed", "job_id", id, "err", err)
		return nil, common.DatabaseError("get job", err)
	}

	job := &entity.Job{
		Status:     constants.JobStatus(status),
		TokensUsed: tokensUsed,
		CreatedAt:  createdAt,
		Endpoint: &entity.EndpointConfig{
			AnalysisMode: constants.ParseAnalysisMode(mode),
			CallbackURL:  callbackURL,
		},
	}
	if job.ID, err = uuid.Parse(jobID); err != nil {
		return nil, common.DatabaseError("parse job id", err)
	}
	if job.AccountID, err = uuid.Parse(accountID); err != nil {
		return nil, common.DatabaseError("parse account id", err)
	}
	if job.EndpointID, err = uuid.Parse(endpointID); err != nil {
		return nil, common.DatabaseError("parse endpoint id", err)
	}
	job.Endpoint.ID = job.EndpointID
	job.Endpoint.AccountID = job.AccountID

	if schemaJSON != "" {
		if err := json.Unmarshal([]byte(schemaJSON), &job.Endpoint.Schema); err != nil {
			r.log.Warn("endpoint schema is not valid json", "endpoint_id", endpointID, "err", err)
		}
	}
	return job, nil
}

func (r *jobRepo) SetJobStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus, tokensUsed int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, tokens_used = $2 WHERE id = $3`,
		string(status), tokensUsed, id.String(),
	)
	if err != nil {
		r.log.Error("job status update failed", "job_id", id, "status", status, "err", err)
		return common.DatabaseError("set job status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	r.log.Info("job status updated", "job_id", id, "status", status, "tokens_used", tokensUsed)
	return nil
}
