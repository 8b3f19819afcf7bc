package callback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/structhub/docintake/internal/entity"
)

func fastConfig() Config {
	return Config{Attempts: 3, Timeout: 5 * time.Second, BaseDelay: time.Millisecond}
}

func TestDeliverFirstAttempt(t *testing.T) {
	var calls atomic.Int32
	var got entity.CallbackPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	d := NewDispatcher(fastConfig(), nil)
	payload := entity.CallbackPayload{
		Status: "completed",
		Data:   map[string]any{"total": 12.5},
		Usage:  entity.Usage{TotalTokens: 150},
	}
	if err := d.Deliver(context.Background(), ts.URL, payload, uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 request, got %d", calls.Load())
	}
	if got.Status != "completed" || got.Usage.TotalTokens != 150 {
		t.Errorf("payload round trip: got %+v", got)
	}
}

func TestDeliverRecoversAfterFailure(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	d := NewDispatcher(fastConfig(), nil)
	if err := d.Deliver(context.Background(), ts.URL, entity.CallbackPayload{Status: "completed"}, uuid.New()); err != nil {
		t.Fatalf("expected recovery on third attempt, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", calls.Load())
	}
}

func TestDeliverExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	d := NewDispatcher(fastConfig(), nil)
	err := d.Deliver(context.Background(), ts.URL, entity.CallbackPayload{Status: "failed"}, uuid.New())
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls.Load() != 3 {
		t.Errorf("expected exactly 3 requests, got %d", calls.Load())
	}
}

func TestDeliverUnreachableHost(t *testing.T) {
	// Closed port: every attempt fails at the transport level.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	d := NewDispatcher(fastConfig(), nil)
	if err := d.Deliver(context.Background(), url, entity.CallbackPayload{Status: "failed"}, uuid.New()); err == nil {
		t.Fatal("expected error for unreachable callback")
	}
}

func TestDeliverStopsOnContextCancel(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	cfg := Config{Attempts: 3, Timeout: time.Second, BaseDelay: time.Hour}
	d := NewDispatcher(cfg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := d.Deliver(ctx, ts.URL, entity.CallbackPayload{Status: "failed"}, uuid.New())
	if err == nil {
		t.Fatal("expected error when context ends during backoff")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 request before cancellation, got %d", calls.Load())
	}
}

func TestConfigDefaults(t *testing.T) {
	d := NewDispatcher(Config{}, nil)
	if d.cfg.Attempts != 3 {
		t.Errorf("attempts default: got %d", d.cfg.Attempts)
	}
	if d.cfg.Timeout != 30*time.Second {
		t.Errorf("timeout default: got %v", d.cfg.Timeout)
	}
	if d.cfg.BaseDelay != 2*time.Second {
		t.Errorf("base delay default: got %v", d.cfg.BaseDelay)
	}
}
