package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/structhub/docintake/constants"
	"github.com/structhub/docintake/internal/common"
	"github.com/structhub/docintake/internal/entity"
)

type AccountRepository interface {
	// GetByAPIKey resolves a bearer key to an account id.
	GetByAPIKey(ctx context.Context, apiKey string) (uuid.UUID, error)
	Create(ctx context.Context, id uuid.UUID, apiKey string, credits int64) error
}

type EndpointRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.EndpointConfig, error)
	Create(ctx context.Context, cfg *entity.EndpointConfig) error
}

type accountRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewAccountRepository(db *sql.DB, log *slog.Logger) AccountRepository {
	if log == nil {
		log = slog.Default()
	}
	return &accountRepo{db: db, log: log}
}

func (r *accountRepo) GetByAPIKey(ctx context.Context, apiKey string) (uuid.UUID, error) {
	var idStr string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM accounts WHERE api_key = $1`, apiKey,
	).Scan(&idStr)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, common.ErrUnauthorized
	}
	if err != nil {
		r.log.Error("account lookup failed", "err", err)
		return uuid.Nil, common.DatabaseError("lookup account", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, common.DatabaseError("parse account id", err)
	}
	return id, nil
}

func (r *accountRepo) Create(ctx context.Context, id uuid.UUID, apiKey string, credits int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, api_key, credits) VALUES ($1, $2, $3)`,
		id.String(), apiKey, credits,
	)
	if err != nil {
		return common.DatabaseError("create account", err)
	}
	r.log.Info("account created", "account_id", id, "credits", credits)
	return nil
}

type endpointRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewEndpointRepository(db *sql.DB, log *slog.Logger) EndpointRepository {
	if log == nil {
		log = slog.Default()
	}
	return &endpointRepo{db: db, log: log}
}

func (r *endpointRepo) Get(ctx context.Context, id uuid.UUID) (*entity.EndpointConfig, error) {
	var (
		idStr, accountStr, schemaJSON, mode, callbackURL string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, schema_json, analysis_mode, callback_url FROM endpoints WHERE id = $1`,
		id.String(),
	).Scan(&idStr, &accountStr, &schemaJSON, &mode, &callbackURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("endpoint %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, common.DatabaseError("get endpoint", err)
	}

	cfg := &entity.EndpointConfig{
		AnalysisMode: constants.ParseAnalysisMode(mode),
		CallbackURL:  callbackURL,
	}
	if cfg.ID, err = uuid.Parse(idStr); err != nil {
		return nil, common.DatabaseError("parse endpoint id", err)
	}
	if cfg.AccountID, err = uuid.Parse(accountStr); err != nil {
		return nil, common.DatabaseError("parse endpoint account id", err)
	}
	if schemaJSON != "" {
		if err := json.Unmarshal([]byte(schemaJSON), &cfg.Schema); err != nil {
			r.log.Warn("endpoint schema is not valid json", "endpoint_id", idStr, "err", err)
		}
	}
	return cfg, nil
}

func (r *endpointRepo) Create(ctx context.Context, cfg *entity.EndpointConfig) error {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	schemaJSON, err := json.Marshal(cfg.Schema)
	if err != nil {
		return common.WrapError(err, "marshal endpoint schema")
	}
	mode := cfg.AnalysisMode
	if mode == "" {
		mode = constants.ModeVisionFirst
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO endpoints (id, account_id, schema_json, analysis_mode, callback_url)
		 VALUES ($1, $2, $3, $4, $5)`,
		cfg.ID.String(), cfg.AccountID.String(), string(schemaJSON), string(mode), cfg.CallbackURL,
	)
	if err != nil {
		return common.DatabaseError("create endpoint", err)
	}
	r.log.Info("endpoint created", "endpoint_id", cfg.ID, "mode", mode)
	return nil
}
