package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/structhub/docintake/internal/common"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewClient(ClientConfig{
		BaseURL: ts.URL,
		Model:   "test-model",
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	}, nil)
}

func chatResponse(t *testing.T, content string, totalTokens int64) string {
	t.Helper()
	quoted, err := json.Marshal(content)
	if err != nil {
		t.Fatalf("marshal content: %v", err)
	}
	return fmt.Sprintf(`{
		"choices":[{"message":{"content":%s}}],
		"usage":{"prompt_tokens":100,"completion_tokens":50,"total_tokens":%d,
			"prompt_tokens_details":{"cached_tokens":10},
			"completion_tokens_details":{"reasoning_tokens":5}}
	}`, quoted, totalTokens)
}

func TestExtractFromTextParsesUsage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatResponse(t, `{"name":"Ada"}`, 150)))
	})

	data, usage, err := c.ExtractFromText(context.Background(), "some document text", map[string]any{"name": "string"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data["name"] != "Ada" {
		t.Errorf("data: got %v", data)
	}
	if usage.TotalTokens != 150 || usage.InputTokens != 100 || usage.OutputTokens != 50 {
		t.Errorf("usage: got %+v", usage)
	}
	if usage.InputTokensDetails.CachedTokens != 10 || usage.OutputTokensDetails.ReasoningTokens != 5 {
		t.Errorf("usage details: got %+v", usage)
	}
}

func TestExtractFromTextFencedContent(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chatResponse(t, "```json\n{\"name\":\"Ada\"}\n```", 80)))
	})

	data, _, err := c.ExtractFromText(context.Background(), "text", map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data["name"] != "Ada" {
		t.Errorf("fenced content not decoded: %v", data)
	}
}

func TestExtractFromTextErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http 500",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "non-json content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(chatResponse(t, "sorry, I cannot help with that", 50)))
			},
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[],"usage":{"total_tokens":10}}`))
			},
		},
		{
			name: "missing usage",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"a\":1}"}}]}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, tt.handler)
			_, _, err := c.ExtractFromText(context.Background(), "text", map[string]any{})
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, common.ErrAIService) {
				t.Errorf("expected ai-service error, got %v", err)
			}
		})
	}
}

func TestExtractFromTextEmptyInput(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty input")
	})
	if _, _, err := c.ExtractFromText(context.Background(), "   ", map[string]any{}); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestExtractFromImagesRequiresPages(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without pages")
	})
	if _, _, err := c.ExtractFromImages(context.Background(), nil, "image/png", map[string]any{}); err == nil {
		t.Fatal("expected error for zero pages")
	}
}

func TestExtractFromImagesSendsDataURLs(t *testing.T) {
	var gotBody string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(chatResponse(t, `{"ok":true}`, 42)))
	})

	pages := [][]byte{[]byte("fake-png-1"), []byte("fake-png-2")}
	_, usage, err := c.ExtractFromImages(context.Background(), pages, "image/png", map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usage.TotalTokens != 42 {
		t.Errorf("usage: got %+v", usage)
	}
	if !strings.Contains(gotBody, "data:image/png;base64,") {
		t.Error("request body has no data URL")
	}
	if got := strings.Count(gotBody, "data:image/png;base64,"); got != 2 {
		t.Errorf("expected 2 image parts, got %d", got)
	}
}
