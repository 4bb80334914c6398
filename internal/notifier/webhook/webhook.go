// Package webhook posts batch summaries to an HTTP endpoint as JSON
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/replay/internal/notifier"
	"github.com/newthinker/replay/internal/report"
)

// Payload is the JSON body posted for each batch
type Payload struct {
	Type      string           `json:"type"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Runs      []report.Summary `json:"runs"`
	Failures  []report.Failure `json:"failures"`
	SentAt    time.Time        `json:"sent_at"`
}

// Webhook implements the Notifier interface for HTTP webhooks
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// New creates a new Webhook notifier
func New(url string, headers map[string]string) *Webhook {
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Init(cfg notifier.Config) error {
	if url, ok := cfg.Params["url"].(string); ok {
		w.url = url
	}
	switch h := cfg.Params["headers"].(type) {
	case map[string]string:
		w.headers = h
	case map[string]any:
		w.headers = make(map[string]string, len(h))
		for k, v := range h {
			w.headers[k] = fmt.Sprint(v)
		}
	}

	if w.url == "" {
		return fmt.Errorf("webhook: url is required")
	}

	if w.client == nil {
		w.client = &http.Client{Timeout: 30 * time.Second}
	}

	return nil
}

func (w *Webhook) Notify(ctx context.Context, batch report.Batch) error {
	return w.post(ctx, Payload{
		Type:      "backtest_batch",
		Succeeded: len(batch.Runs),
		Failed:    len(batch.Failures),
		Runs:      batch.Runs,
		Failures:  batch.Failures,
		SentAt:    time.Now().UTC(),
	})
}

func (w *Webhook) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: server returned %d", resp.StatusCode)
	}

	return nil
}
