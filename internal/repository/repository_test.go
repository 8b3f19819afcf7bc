package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/structhub/docintake/constants"
	"github.com/structhub/docintake/internal/common"
	"github.com/structhub/docintake/internal/entity"
)

// The repositories keep their SQL portable so the suite can run against an
// in-process SQLite file instead of a live Postgres.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return db
}

type testAccount struct {
	id         uuid.UUID
	endpointID uuid.UUID
}

func seedAccount(t *testing.T, db *sql.DB, credits int64) testAccount {
	t.Helper()
	ctx := context.Background()
	acc := testAccount{id: uuid.New(), endpointID: uuid.New()}

	if err := NewAccountRepository(db, nil).Create(ctx, acc.id, "key-"+acc.id.String(), credits); err != nil {
		t.Fatalf("create account: %v", err)
	}
	err := NewEndpointRepository(db, nil).Create(ctx, &entity.EndpointConfig{
		ID:           acc.endpointID,
		AccountID:    acc.id,
		Schema:       map[string]any{"invoice_number": "string"},
		AnalysisMode: constants.ModeVisionFirst,
		CallbackURL:  "https://example.com/hook",
	})
	if err != nil {
		t.Fatalf("create endpoint: %v", err)
	}
	return acc
}

func seedJob(t *testing.T, db *sql.DB, acc testAccount) uuid.UUID {
	t.Helper()
	job := &entity.Job{
		ID:         uuid.New(),
		AccountID:  acc.id,
		EndpointID: acc.endpointID,
	}
	if err := NewJobRepository(db, nil).Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job.ID
}

func TestJobCreateAndGet(t *testing.T) {
	db := openTestDB(t)
	acc := seedAccount(t, db, 100)
	jobID := seedJob(t, db, acc)

	jobs := NewJobRepository(db, nil)
	job, err := jobs.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != constants.JobStatusProcessing {
		t.Errorf("new job status: got %v", job.Status)
	}
	if job.AccountID != acc.id || job.EndpointID != acc.endpointID {
		t.Errorf("job ids: got %+v", job)
	}
	if job.Endpoint == nil {
		t.Fatal("endpoint configuration missing")
	}
	if job.Endpoint.CallbackURL != "https://example.com/hook" {
		t.Errorf("callback url: got %q", job.Endpoint.CallbackURL)
	}
	if job.Endpoint.AnalysisMode != constants.ModeVisionFirst {
		t.Errorf("analysis mode: got %v", job.Endpoint.AnalysisMode)
	}
	if job.Endpoint.Schema["invoice_number"] != "string" {
		t.Errorf("schema round trip: got %v", job.Endpoint.Schema)
	}
}

func TestGetJobNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := NewJobRepository(db, nil).GetJob(context.Background(), uuid.New())
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestSetJobStatus(t *testing.T) {
	db := openTestDB(t)
	acc := seedAccount(t, db, 100)
	jobID := seedJob(t, db, acc)
	jobs := NewJobRepository(db, nil)
	ctx := context.Background()

	if err := jobs.SetJobStatus(ctx, jobID, constants.JobStatusCompleted, 250); err != nil {
		t.Fatalf("set status: %v", err)
	}
	job, err := jobs.GetJob(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != constants.JobStatusCompleted || job.TokensUsed != 250 {
		t.Errorf("after update: status=%v tokens=%d", job.Status, job.TokensUsed)
	}

	if err := jobs.SetJobStatus(ctx, uuid.New(), constants.JobStatusFailed, 0); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("unknown job: expected not-found, got %v", err)
	}
}

func TestDebitSufficient(t *testing.T) {
	db := openTestDB(t)
	acc := seedAccount(t, db, 100)
	ledger := NewLedgerRepository(db, nil)
	ctx := context.Background()

	ok, err := ledger.Debit(ctx, acc.id, 60)
	if err != nil || !ok {
		t.Fatalf("debit: ok=%v err=%v", ok, err)
	}
	bal, err := ledger.Balance(ctx, acc.id)
	if err != nil {
		t.Fatal(err)
	}
	if bal != 40 {
		t.Errorf("balance: got %d, want 40", bal)
	}
}

func TestDebitInsufficientLeavesBalance(t *testing.T) {
	db := openTestDB(t)
	acc := seedAccount(t, db, 50)
	ledger := NewLedgerRepository(db, nil)
	ctx := context.Background()

	ok, err := ledger.Debit(ctx, acc.id, 51)
	if err != nil {
		t.Fatalf("debit errored: %v", err)
	}
	if ok {
		t.Fatal("debit above balance must be refused")
	}
	bal, _ := ledger.Balance(ctx, acc.id)
	if bal != 50 {
		t.Errorf("refused debit must not touch the balance, got %d", bal)
	}
}

func TestDebitExactBalance(t *testing.T) {
	db := openTestDB(t)
	acc := seedAccount(t, db, 75)
	ledger := NewLedgerRepository(db, nil)

	ok, err := ledger.Debit(context.Background(), acc.id, 75)
	if err != nil || !ok {
		t.Fatalf("debit down to zero: ok=%v err=%v", ok, err)
	}
	bal, _ := ledger.Balance(context.Background(), acc.id)
	if bal != 0 {
		t.Errorf("balance: got %d, want 0", bal)
	}
}

func TestDebitConcurrent(t *testing.T) {
	db := openTestDB(t)
	acc := seedAccount(t, db, 100)
	ledger := NewLedgerRepository(db, nil)

	const workers = 10
	var wg sync.WaitGroup
	granted := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.Debit(context.Background(), acc.id, 30)
			if err != nil {
				t.Errorf("debit: %v", err)
				return
			}
			if ok {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)

	if n := len(granted); n != 3 {
		t.Errorf("expected exactly 3 grants from a balance of 100, got %d", n)
	}
	bal, _ := ledger.Balance(context.Background(), acc.id)
	if bal != 10 {
		t.Errorf("balance: got %d, want 10", bal)
	}
}

func TestCredit(t *testing.T) {
	db := openTestDB(t)
	acc := seedAccount(t, db, 10)
	ledger := NewLedgerRepository(db, nil)

	if err := ledger.Credit(context.Background(), acc.id, 90); err != nil {
		t.Fatalf("credit: %v", err)
	}
	bal, _ := ledger.Balance(context.Background(), acc.id)
	if bal != 100 {
		t.Errorf("balance: got %d, want 100", bal)
	}
}

func TestAuditAppendAndList(t *testing.T) {
	db := openTestDB(t)
	acc := seedAccount(t, db, 100)
	jobID := seedJob(t, db, acc)
	audit := NewAuditRepository(db, nil)
	ctx := context.Background()

	errMsg := "insufficient credits"
	entry := &entity.AuditEntry{
		JobID: jobID,
		PayloadOut: entity.CallbackPayload{
			Status: constants.JobStatusFailed,
			Error:  &errMsg,
			Usage:  entity.Usage{TotalTokens: 120},
		},
		Error:     errMsg,
		CreditUse: 0,
	}
	if err := audit.Append(ctx, entry); err != nil {
		t.Fatalf("append: %v", err)
	}
	if entry.ID == uuid.Nil || entry.CreatedAt.IsZero() {
		t.Error("append must assign id and timestamp")
	}

	got, err := audit.ListByAccount(ctx, acc.id, nil, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].JobID != jobID || got[0].Error != errMsg {
		t.Errorf("entry: got %+v", got[0])
	}
	if got[0].PayloadOut.Status != constants.JobStatusFailed {
		t.Errorf("payload status: got %v", got[0].PayloadOut.Status)
	}
	if got[0].PayloadOut.Usage.TotalTokens != 120 {
		t.Errorf("payload usage: got %d", got[0].PayloadOut.Usage.TotalTokens)
	}

	// A different account sees nothing.
	other := seedAccount(t, db, 1)
	empty, err := audit.ListByAccount(ctx, other.id, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no entries for other account, got %d", len(empty))
	}
}

func TestAuditListDateWindow(t *testing.T) {
	db := openTestDB(t)
	acc := seedAccount(t, db, 100)
	audit := NewAuditRepository(db, nil)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		jobID := seedJob(t, db, acc)
		e := &entity.AuditEntry{
			JobID:      jobID,
			PayloadOut: entity.CallbackPayload{Status: constants.JobStatusCompleted},
			CreditUse:  int64(i + 1),
			CreatedAt:  base.AddDate(0, 0, i),
		}
		if err := audit.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	from := base.AddDate(0, 0, 1)
	to := base.AddDate(0, 0, 1)
	got, err := audit.ListByAccount(ctx, acc.id, &from, &to)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].CreditUse != 2 {
		t.Errorf("window filter: got %+v", got)
	}

	all, err := audit.ListByAccount(ctx, acc.id, &base, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("open window: got %d entries", len(all))
	}
	// Newest first.
	if len(all) == 3 && !(all[0].CreatedAt.After(all[1].CreatedAt) && all[1].CreatedAt.After(all[2].CreatedAt)) {
		t.Error("entries are not ordered newest first")
	}
}

func TestAccountGetByAPIKey(t *testing.T) {
	db := openTestDB(t)
	accounts := NewAccountRepository(db, nil)
	ctx := context.Background()

	id := uuid.New()
	if err := accounts.Create(ctx, id, "secret-key", 500); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := accounts.GetByAPIKey(ctx, "secret-key")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != id {
		t.Errorf("account id: got %v, want %v", got, id)
	}

	if _, err := accounts.GetByAPIKey(ctx, "wrong-key"); !errors.Is(err, common.ErrUnauthorized) {
		t.Errorf("wrong key: expected unauthorized, got %v", err)
	}
}

func TestEndpointGet(t *testing.T) {
	db := openTestDB(t)
	acc := seedAccount(t, db, 100)
	endpoints := NewEndpointRepository(db, nil)

	cfg, err := endpoints.Get(context.Background(), acc.endpointID)
	if err != nil {
		t.Fatalf("get endpoint: %v", err)
	}
	if cfg.AccountID != acc.id || cfg.CallbackURL != "https://example.com/hook" {
		t.Errorf("endpoint: got %+v", cfg)
	}

	raw, err := json.Marshal(cfg.Schema)
	if err != nil || len(raw) == 0 {
		t.Errorf("schema not round-trippable: %v", err)
	}

	if _, err := endpoints.Get(context.Background(), uuid.New()); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("unknown endpoint: expected not-found, got %v", err)
	}
}
