package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/structhub/docintake/internal/common"
	"github.com/structhub/docintake/internal/entity"
)

type AuditRepository interface {
	// Append writes the single audit row for a job. Append-only; never updated.
	Append(ctx context.Context, e *entity.AuditEntry) error
	// ListByAccount returns audit rows for an account within an optional
	// date window (inclusive), newest first. Used by the usage export.
	ListByAccount(ctx context.Context, accountID uuid.UUID, from, to *time.Time) ([]entity.AuditEntry, error)
}

type auditRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewAuditRepository(db *sql.DB, log *slog.Logger) AuditRepository {
	if log == nil {
		log = slog.Default()
	}
	return &auditRepo{db: db, log: log}
}

func (r *auditRepo) Append(ctx context.Context, e *entity.AuditEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(e.PayloadOut)
	if err != nil {
		return common.WrapError(err, "marshal audit payload")
	}
	var errText any
	if e.Error != "" {
		errText = e.Error
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO job_logs (id, job_id, payload_out, error, credit_use, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID.String(), e.JobID.String(), string(payload), errText, e.CreditUse, e.CreatedAt,
	)
	if err != nil {
		r.log.Error("audit append failed", "job_id", e.JobID, "err", err)
		return common.DatabaseError("append audit log", err)
	}
	r.log.Info("audit appended", "job_id", e.JobID, "credit_use", e.CreditUse)
	return nil
}

func (r *auditRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, from, to *time.Time) ([]entity.AuditEntry, error) {
	q := `SELECT l.id, l.job_id, l.payload_out, l.error, l.credit_use, l.created_at
	      FROM job_logs l
	      JOIN jobs j ON j.id = l.job_id
	      WHERE j.account_id = $1`
	args := []any{accountID.String()}
	if from != nil {
		args = append(args, *from)
		q += ` AND l.created_at >= $2`
	}
	if to != nil {
		args = append(args, *to)
		if from != nil {
			q += ` AND l.created_at <= $3`
		} else {
			q += ` AND l.created_at <= $2`
		}
	}
	q += ` ORDER BY l.created_at DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, common.DatabaseError("list audit log", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.log.Warn("audit rows close error", "error", err)
		}
	}()

	var out []entity.AuditEntry
	for rows.Next() {
		var (
			e               entity.AuditEntry
			idStr, jobIDStr string
			payload         string
			errText         sql.NullString
		)
		if err := rows.Scan(&idStr, &jobIDStr, &payload, &errText, &e.CreditUse, &e.CreatedAt); err != nil {
			return nil, common.DatabaseError("scan audit row", err)
		}
		if e.ID, err = uuid.Parse(idStr); err != nil {
			return nil, common.DatabaseError("parse audit id", err)
		}
		if e.JobID, err = uuid.Parse(jobIDStr); err != nil {
			return nil, common.DatabaseError("parse audit job id", err)
		}
		if errText.Valid {
			e.Error = errText.String
		}
		if err := json.Unmarshal([]byte(payload), &e.PayloadOut); err != nil {
			r.log.Warn("audit payload not decodable", "id", idStr, "err", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
