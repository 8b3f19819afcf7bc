package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/structhub/docintake/internal/common"
	"github.com/structhub/docintake/internal/entity"
)

type ClientConfig struct {
	BaseURL   string
	Model     string
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
}

// Client implements DocumentExtractor against an OpenAI-compatible
// chat/completions endpoint.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg ClientConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

const systemPromptTemplate = `You are an autonomous document analysis agent. Process the supplied document and extract the requested information as strict JSON.
REQUIRED OUTPUT SCHEMA (FOLLOW IT EXACTLY):
%s
ADDITIONAL RULES:
- Respond with ONLY the pure, valid JSON object. No introductions, comments, or code fences.`

// ExtractFromImages sends one message with every page attached as a data URL.
func (c *Client) ExtractFromImages(ctx context.Context, pages [][]byte, imageMIME string, schema map[string]any) (map[string]any, entity.Usage, error) {
	if len(pages) == 0 {
		return nil, entity.Usage{}, common.AIError("no page images to analyze", nil)
	}
	if imageMIME == "" {
		imageMIME = "image/png"
	}

	content := []map[string]any{
		{"type": "text", "text": "Extract all information from this document as exact JSON."},
	}
	for _, page := range pages {
		dataURL := fmt.Sprintf("data:%s;base64,%s", imageMIME, base64.StdEncoding.EncodeToString(page))
		content = append(content, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": dataURL, "detail": "high"},
		})
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"response_format": map[string]any{"type": "json_object"},
		"max_tokens":      c.cfg.MaxTokens,
		"messages": []map[string]any{
			{"role": "system", "content": fmt.Sprintf(systemPromptTemplate, mustJSON(schema))},
			{"role": "user", "content": content},
		},
	}
	return c.complete(ctx, body, schema, "vision", len(pages))
}

// ExtractFromText sends pre-extracted document text.
func (c *Client) ExtractFromText(ctx context.Context, text string, schema map[string]any) (map[string]any, entity.Usage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, entity.Usage{}, common.AIError("input text is empty", nil)
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"response_format": map[string]any{"type": "json_object"},
		"max_tokens":      c.cfg.MaxTokens,
		"messages": []map[string]any{
			{"role": "system", "content": fmt.Sprintf(systemPromptTemplate, mustJSON(schema))},
			{"role": "user", "content": "Analyze the following text and extract the information in the specified JSON format:\n---\n" + text},
		},
	}
	return c.complete(ctx, body, schema, "text", 0)
}

type completionUsage struct {
	PromptTokens        int64 `json:"prompt_tokens"`
	CompletionTokens    int64 `json:"completion_tokens"`
	TotalTokens         int64 `json:"total_tokens"`
	PromptTokensDetails struct {
		CachedTokens int64 `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
	CompletionTokensDetails struct {
		ReasoningTokens int64 `json:"reasoning_tokens"`
	} `json:"completion_tokens_details"`
}

func (c *Client) complete(ctx context.Context, body map[string]any, schema map[string]any, strategy string, pages int) (map[string]any, entity.Usage, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.log.Info("ai.extract.start",
		"req_id", rid,
		"job_id", common.JobIDFromContext(ctx),
		"model", c.cfg.Model,
		"strategy", strategy,
		"pages", pages,
	)

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.Error("ai.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, entity.Usage{}, common.AIError("model call failed", err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage completionUsage `json:"usage"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("ai.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, entity.Usage{}, common.AIError("decode model response", err)
	}
	if len(cc.Choices) == 0 {
		c.log.Error("ai.extract.no_choices", "req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, entity.Usage{}, common.AIError("no choices in model response", nil)
	}

	data, err := DecodeObject(cc.Choices[0].Message.Content)
	if err != nil {
		c.log.Error("ai.extract.bad_json",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, entity.Usage{}, err
	}

	usage := entity.Usage{
		InputTokens:  cc.Usage.PromptTokens,
		OutputTokens: cc.Usage.CompletionTokens,
		TotalTokens:  cc.Usage.TotalTokens,
	}
	usage.InputTokensDetails.CachedTokens = cc.Usage.PromptTokensDetails.CachedTokens
	usage.OutputTokensDetails.ReasoningTokens = cc.Usage.CompletionTokensDetails.ReasoningTokens

	// A structured record without a usage measurement cannot be billed and
	// counts as a failed attempt.
	if usage.IsZero() {
		c.log.Error("ai.extract.no_usage", "req_id", rid)
		return nil, entity.Usage{}, common.AIError("model response carried no usage measurement", nil)
	}

	if encoded, mErr := json.Marshal(data); mErr == nil {
		if vErr := validateIfPossible(schema, encoded, c.log); vErr != nil {
			c.log.Error("ai.extract.schema_validation_failed",
				"req_id", rid, "error", vErr,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return nil, entity.Usage{}, common.AIError("model output does not match schema", vErr)
		}
	}

	c.log.Info("ai.extract.ok",
		"req_id", rid,
		"job_id", common.JobIDFromContext(ctx),
		"account_id", common.AccountIDFromContext(ctx),
		"strategy", strategy,
		"fields", len(data),
		"total_tokens", usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return data, usage, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.Warn("model response body close error", "error", err)
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("model status %d: %s", resp.StatusCode, truncate(buf.String(), 2048))
	}
	return buf.Bytes(), nil
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
