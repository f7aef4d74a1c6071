// Package notify delivers signal notifications to external channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"ict-signals/internal/logging"
	"ict-signals/internal/models"
	"ict-signals/pkg/utils"
)

// Notifier sends notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendSignal(ctx context.Context, sig models.TradeSignal) error
	SendError(ctx context.Context, err error, context string) error
}

// NotificationChannel is one delivery channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification is a channel-neutral message.
type Notification struct {
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NotificationType classifies a notification.
type NotificationType string

const (
	NotificationSignal NotificationType = "signal"
	NotificationError  NotificationType = "error"
	NotificationInfo   NotificationType = "info"
)

// NotificationLevel filters what MultiNotifier forwards.
type NotificationLevel string

const (
	LevelAll         NotificationLevel = "all"
	LevelSignalsOnly NotificationLevel = "signals_only"
	LevelErrorsOnly  NotificationLevel = "errors_only"
)

// Config configures the channels.
type Config struct {
	Level    string         `mapstructure:"level"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// WebhookConfig configures the JSON webhook channel.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig configures the Telegram bot channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// MultiNotifier fans notifications out to every enabled channel.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
	mu       sync.RWMutex
}

// NewMultiNotifier creates a notifier from cfg.
func NewMultiNotifier(cfg Config) *MultiNotifier {
	mn := &MultiNotifier{level: NotificationLevel(cfg.Level)}
	if mn.level == "" {
		mn.level = LevelAll
	}

	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook))
	}
	if cfg.Telegram.Enabled {
		mn.channels = append(mn.channels, NewTelegramNotifier(cfg.Telegram))
	}

	return mn
}

// AddChannel adds a channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Channels returns the number of configured channels.
func (mn *MultiNotifier) Channels() int {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	return len(mn.channels)
}

func (mn *MultiNotifier) shouldSend(t NotificationType) bool {
	switch mn.level {
	case LevelSignalsOnly:
		return t == NotificationSignal
	case LevelErrorsOnly:
		return t == NotificationError
	default:
		return true
	}
}

// Send delivers n to every enabled channel and joins their failures.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if ch.IsEnabled() {
			if err := ch.Send(ctx, n); err != nil {
				errs = append(errs, ch.Name()+": "+logging.RedactSecrets(err.Error()))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SendSignal formats and sends a signal.
func (mn *MultiNotifier) SendSignal(ctx context.Context, sig models.TradeSignal) error {
	return mn.Send(ctx, SignalNotification(sig))
}

// SendError sends an error notification.
func (mn *MultiNotifier) SendError(ctx context.Context, err error, errContext string) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   "Error: " + errContext,
		Message: err.Error(),
	})
}

// SignalNotification renders a signal as a notification.
func SignalNotification(sig models.TradeSignal) Notification {
	title := fmt.Sprintf("%s %s (%s, %.0f%%)", sig.Direction, sig.Symbol, sig.Quality, sig.Confidence)

	var msg strings.Builder
	fmt.Fprintf(&msg, "Price: %s\n", utils.FormatPrice(sig.CurrentPrice))
	if sig.Direction != models.DirectionHold {
		fmt.Fprintf(&msg, "Entry: %s - %s\n", utils.FormatPrice(sig.EntryZone.Low), utils.FormatPrice(sig.EntryZone.High))
		fmt.Fprintf(&msg, "Stop: %s\n", utils.FormatPrice(sig.StopLoss))
		fmt.Fprintf(&msg, "Targets: %s / %s\n", utils.FormatPrice(sig.TakeProfit1), utils.FormatPrice(sig.TakeProfit2))
		fmt.Fprintf(&msg, "R:R %s\n", utils.FormatRiskReward(sig.RiskReward))
	}
	for _, r := range sig.Reasons {
		fmt.Fprintf(&msg, "- %s\n", r)
	}

	return Notification{
		Type:    NotificationSignal,
		Title:   title,
		Message: strings.TrimRight(msg.String(), "\n"),
		Data: map[string]interface{}{
			"id":           sig.ID,
			"symbol":       sig.Symbol,
			"direction":    string(sig.Direction),
			"confidence":   sig.Confidence,
			"quality":      string(sig.Quality),
			"confluence":   sig.ConfluenceCount,
			"data_quality": string(sig.DataQuality),
		},
		Timestamp: sig.GeneratedAt,
	}
}

// WebhookNotifier posts notifications as JSON.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookNotifier creates a webhook channel.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the channel name.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsEnabled reports whether the channel is configured.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

// Send posts n.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ictsignal/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// TelegramNotifier sends notifications through a Telegram bot.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	enabled  bool
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram channel.
func NewTelegramNotifier(cfg TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		baseURL:  "https://api.telegram.org",
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the channel name.
func (t *TelegramNotifier) Name() string {
	return "telegram"
}

// IsEnabled reports whether the channel is configured.
func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

// Send posts n as an HTML message.
func (t *TelegramNotifier) Send(ctx context.Context, n Notification) error {
	if !t.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("<b>%s</b>\n\n%s", escapeHTML(n.Title), escapeHTML(n.Message)),
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating telegram request: %s", logging.RedactSecrets(err.Error()))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The request URL carries the bot token.
		return fmt.Errorf("sending telegram message: %s", logging.RedactSecrets(err.Error()))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

func escapeHTML(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

// NoOpNotifier discards everything.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Send implements Notifier.
func (NoOpNotifier) Send(context.Context, Notification) error { return nil }

// SendSignal implements Notifier.
func (NoOpNotifier) SendSignal(context.Context, models.TradeSignal) error { return nil }

// SendError implements Notifier.
func (NoOpNotifier) SendError(context.Context, error, string) error { return nil }
