package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends alerts via Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   *slog.Logger
}

// NewTelegramNotifier creates a Telegram notifier.
// botToken: Bot API token from @BotFather
// chatID: Target chat/group/channel ID
func NewTelegramNotifier(botToken, chatID string, logger *slog.Logger) *TelegramNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  telegramAPI,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With("component", "telegram"),
	}
}

// WithBaseURL points the notifier at another Bot API host.
func (t *TelegramNotifier) WithBaseURL(u string) *TelegramNotifier {
	t.baseURL = strings.TrimRight(u, "/")
	return t
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       formatTelegram(alert),
		"parse_mode": "MarkdownV2",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Description string `json:"description"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, apiErr.Description)
	}

	t.logger.Info("sent alert", "title", alert.Title)
	return nil
}

func formatTelegram(alert Alert) string {
	emoji := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		emoji = "⚠️"
	case AlertCritical:
		emoji = "🚨"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*\n\n%s", emoji, escapeMarkdown(alert.Title), escapeMarkdown(alert.Message))
	if len(alert.Fields) > 0 {
		b.WriteString("\n")
		for _, f := range alert.Fields {
			fmt.Fprintf(&b, "\n*%s:* %s", escapeMarkdown(f.Name), escapeMarkdown(f.Value))
		}
	}
	if !alert.Time.IsZero() {
		fmt.Fprintf(&b, "\n\n⏰ %s", escapeMarkdown(alert.Time.UTC().Format("02/01/2006 15:04:05")))
	}
	return b.String()
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	specials := []byte{'_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\'}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		for _, sp := range specials {
			if s[i] == sp {
				buf.WriteByte('\\')
				break
			}
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
