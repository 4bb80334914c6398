package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/newthinker/replay/internal/notifier"
	"github.com/newthinker/replay/internal/report"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram implements the Notifier interface for Telegram Bot API
type Telegram struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

// New creates a new Telegram notifier
func New(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (t *Telegram) Name() string {
	return "telegram"
}

// Init applies cfg. Params["api_base"] overrides the Bot API host.
func (t *Telegram) Init(cfg notifier.Config) error {
	if token, ok := cfg.Params["bot_token"].(string); ok {
		t.botToken = token
	}
	if chatID, ok := cfg.Params["chat_id"].(string); ok {
		t.chatID = chatID
	}
	if base, ok := cfg.Params["api_base"].(string); ok && base != "" {
		t.apiBase = strings.TrimSuffix(base, "/")
	}

	if t.botToken == "" {
		return fmt.Errorf("telegram: bot_token is required")
	}
	if t.chatID == "" {
		return fmt.Errorf("telegram: chat_id is required")
	}
	if t.apiBase == "" {
		t.apiBase = defaultAPIBase
	}
	if t.client == nil {
		t.client = &http.Client{Timeout: 30 * time.Second}
	}

	return nil
}

func (t *Telegram) Notify(ctx context.Context, batch report.Batch) error {
	if len(batch.Runs) == 0 && len(batch.Failures) == 0 {
		return nil
	}
	return t.sendMessage(ctx, formatBatch(batch))
}

func formatBatch(batch report.Batch) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 *Backtest batch* - %d ok, %d failed\n", len(batch.Runs), len(batch.Failures))

	for _, run := range batch.Runs {
		m := run.Metrics
		emoji := "📈"
		if m.TotalReturnPct < 0 {
			emoji = "📉"
		}
		pf := fmt.Sprintf("%.2f", m.ProfitFactor)
		if math.IsInf(m.ProfitFactor, 1) {
			pf = "inf"
		}
		fmt.Fprintf(&sb, "\n%s *%s* (%s)\n", emoji, run.Symbol, run.Strategy)
		fmt.Fprintf(&sb, "Return: %.2f%% vs B&H %.2f%%\n", m.TotalReturnPct, m.BuyHoldReturnPct)
		fmt.Fprintf(&sb, "Max DD: %.2f%% | Sharpe: %.2f\n", m.MaxDrawdownPct, m.Sharpe)
		fmt.Fprintf(&sb, "Trades: %d | Win: %.1f%% | PF: %s\n", m.NumTrades, m.WinRatePct, pf)
	}

	for _, f := range batch.Failures {
		fmt.Fprintf(&sb, "\n⚠️ *%s* (%s): %s\n", f.Symbol, f.Strategy, f.Code)
	}

	return strings.TrimRight(sb.String(), "\n")
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)

	payload := map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result map[string]any
		json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("telegram: API error (status %d): %v", resp.StatusCode, result)
	}

	return nil
}
