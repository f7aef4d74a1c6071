package stream

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ict-signals/internal/models"
	"ict-signals/internal/notify"
)

// AlertRule decides which distributed signals are worth a notification.
type AlertRule struct {
	MinQuality models.SignalQuality `mapstructure:"min_quality"`
	// OnChangeOnly suppresses repeats of the symbol's last notified direction.
	OnChangeOnly bool `mapstructure:"on_change_only"`
}

// DefaultAlertRule notifies on VERY_GOOD or better when the direction changes.
func DefaultAlertRule() AlertRule {
	return AlertRule{MinQuality: models.QualityVeryGood, OnChangeOnly: true}
}

// AlertMonitor is a hub Consumer that forwards actionable signals to a notifier.
type AlertMonitor struct {
	rule     AlertRule
	notifier notify.Notifier
	logger   zerolog.Logger
	timeout  time.Duration

	mu      sync.Mutex
	last    map[string]models.Direction
	sent    map[string]bool
	symbols []string

	onTrigger func(models.TradeSignal)
}

// NewAlertMonitor creates a monitor for symbols; none means all.
func NewAlertMonitor(rule AlertRule, notifier notify.Notifier, logger zerolog.Logger, symbols ...string) *AlertMonitor {
	if rule.MinQuality == "" {
		rule.MinQuality = DefaultAlertRule().MinQuality
	}
	return &AlertMonitor{
		rule:     rule,
		notifier: notifier,
		logger:   logger,
		timeout:  15 * time.Second,
		last:     make(map[string]models.Direction),
		sent:     make(map[string]bool),
		symbols:  symbols,
	}
}

// SetOnTrigger registers a callback run after each notification.
func (m *AlertMonitor) SetOnTrigger(fn func(models.TradeSignal)) {
	m.onTrigger = fn
}

// Symbols implements Consumer.
func (m *AlertMonitor) Symbols() []string {
	return m.symbols
}

// OnSignal implements Consumer.
func (m *AlertMonitor) OnSignal(sig models.TradeSignal) {
	if !m.ShouldAlert(sig) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.notifier.SendSignal(ctx, sig); err != nil {
		m.logger.Warn().Err(err).Str("signal_id", sig.ID).Msg("signal notification failed")
		return
	}
	if m.onTrigger != nil {
		m.onTrigger(sig)
	}
}

// ShouldAlert applies the rule and records sig as notified when it passes.
func (m *AlertMonitor) ShouldAlert(sig models.TradeSignal) bool {
	if !sig.IsActionable() || sig.Quality.Rank() < m.rule.MinQuality.Rank() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sent[sig.ID] {
		return false
	}
	if m.rule.OnChangeOnly && m.last[sig.Symbol] == sig.Direction {
		return false
	}
	m.sent[sig.ID] = true
	m.last[sig.Symbol] = sig.Direction
	return true
}

// Reset forgets what was notified for symbol.
func (m *AlertMonitor) Reset(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.last, symbol)
}
