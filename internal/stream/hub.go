// Package stream fans refreshed signals out to live subscribers.
package stream

import (
	"context"
	"sync"
	"time"

	"ict-signals/internal/models"
)

// AllSymbols subscribes to every symbol.
const AllSymbols = "*"

// HubConfig holds configuration for the Hub.
type HubConfig struct {
	// BufferSize is the size of the internal publish buffer.
	BufferSize int `mapstructure:"buffer_size"`
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int `mapstructure:"subscriber_buffer_size"`
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:           256,
		SubscriberBufferSize: 16,
	}
}

// Hub distributes signals from the refresher to subscribers and consumers.
// Slow subscribers lose signals rather than block the publisher.
type Hub struct {
	config      HubConfig
	mu          sync.RWMutex
	subscribers map[string][]*Subscriber
	signals     chan models.TradeSignal
	done        chan struct{}
	started     bool
	consumers   []Consumer
	consumersMu sync.RWMutex

	metricsMu sync.RWMutex
	received  uint64
	delivered uint64
	dropped   uint64
}

// Subscriber is one live channel.
type Subscriber struct {
	ID           string
	Symbol       string
	Channel      chan models.TradeSignal
	DroppedCount int
	CreatedAt    time.Time
}

// NewHub creates a hub with the default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a hub.
func NewHubWithConfig(config HubConfig) *Hub {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultHubConfig().BufferSize
	}
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = DefaultHubConfig().SubscriberBufferSize
	}
	return &Hub{
		config:      config,
		subscribers: make(map[string][]*Subscriber),
		signals:     make(chan models.TradeSignal, config.BufferSize),
		done:        make(chan struct{}),
	}
}

// Start runs the distribution loop until ctx ends or Stop is called.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go h.loop(ctx)
}

func (h *Hub) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case sig := <-h.signals:
			h.metricsMu.Lock()
			h.received++
			h.metricsMu.Unlock()

			h.broadcast(sig)
			h.notifyConsumers(sig)
		}
	}
}

// Stop ends the loop and closes every subscriber channel.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return
	}
	close(h.done)
	h.started = false

	for symbol, subs := range h.subscribers {
		for _, sub := range subs {
			close(sub.Channel)
		}
		delete(h.subscribers, symbol)
	}
}

// Subscribe returns a channel receiving signals for symbol, or for every
// symbol when symbol is AllSymbols.
func (h *Hub) Subscribe(symbol string) <-chan models.TradeSignal {
	return h.SubscribeWithID(symbol, "")
}

// SubscribeWithID subscribes with a caller-chosen ID.
func (h *Hub) SubscribeWithID(symbol, id string) <-chan models.TradeSignal {
	ch := make(chan models.TradeSignal, h.config.SubscriberBufferSize)
	sub := &Subscriber{
		ID:        id,
		Symbol:    symbol,
		Channel:   ch,
		CreatedAt: time.Now(),
	}

	h.mu.Lock()
	h.subscribers[symbol] = append(h.subscribers[symbol], sub)
	h.mu.Unlock()

	return ch
}

// Unsubscribe removes and closes ch.
func (h *Hub) Unsubscribe(symbol string, ch <-chan models.TradeSignal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[symbol]
	for i, sub := range subs {
		if sub.Channel == ch {
			close(sub.Channel)
			h.subscribers[symbol] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subscribers[symbol]) == 0 {
		delete(h.subscribers, symbol)
	}
}

// Publish queues sig for distribution. It never blocks; a full buffer drops sig.
func (h *Hub) Publish(sig models.TradeSignal) bool {
	select {
	case h.signals <- sig:
		return true
	default:
		h.metricsMu.Lock()
		h.dropped++
		h.metricsMu.Unlock()
		return false
	}
}

// broadcast holds the read lock while sending so Stop cannot close a
// channel mid-send. Sends never block.
func (h *Hub) broadcast(sig models.TradeSignal) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := append([]*Subscriber{}, h.subscribers[sig.Symbol]...)
	if sig.Symbol != AllSymbols {
		targets = append(targets, h.subscribers[AllSymbols]...)
	}

	var delivered, dropped uint64
	for _, sub := range targets {
		select {
		case sub.Channel <- sig:
			delivered++
		default:
			sub.DroppedCount++
			dropped++
		}
	}

	h.metricsMu.Lock()
	h.delivered += delivered
	h.dropped += dropped
	h.metricsMu.Unlock()
}

// SubscriberCount returns the subscribers of symbol.
func (h *Hub) SubscriberCount(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[symbol])
}

// TotalSubscribers returns the subscriber count across all symbols.
func (h *Hub) TotalSubscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, subs := range h.subscribers {
		count += len(subs)
	}
	return count
}

// HubMetrics contains hub counters.
type HubMetrics struct {
	Received    uint64 `json:"received"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// Metrics returns a snapshot of the counters.
func (h *Hub) Metrics() HubMetrics {
	h.metricsMu.RLock()
	defer h.metricsMu.RUnlock()

	return HubMetrics{
		Received:    h.received,
		Delivered:   h.delivered,
		Dropped:     h.dropped,
		Subscribers: h.TotalSubscribers(),
	}
}

// IsStarted reports whether the loop is running.
func (h *Hub) IsStarted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started
}

// Consumer processes every distributed signal it is interested in.
type Consumer interface {
	OnSignal(sig models.TradeSignal)
	// Symbols filters the signals; empty means all.
	Symbols() []string
}

// RegisterConsumer adds a consumer. Each delivery runs in its own goroutine.
func (h *Hub) RegisterConsumer(consumer Consumer) {
	h.consumersMu.Lock()
	h.consumers = append(h.consumers, consumer)
	h.consumersMu.Unlock()
}

// UnregisterConsumer removes a consumer.
func (h *Hub) UnregisterConsumer(consumer Consumer) {
	h.consumersMu.Lock()
	defer h.consumersMu.Unlock()

	for i, c := range h.consumers {
		if c == consumer {
			h.consumers = append(h.consumers[:i], h.consumers[i+1:]...)
			break
		}
	}
}

func (h *Hub) notifyConsumers(sig models.TradeSignal) {
	h.consumersMu.RLock()
	consumers := make([]Consumer, len(h.consumers))
	copy(consumers, h.consumers)
	h.consumersMu.RUnlock()

	for _, consumer := range consumers {
		symbols := consumer.Symbols()
		if len(symbols) == 0 || containsSymbol(symbols, sig.Symbol) {
			go consumer.OnSignal(sig)
		}
	}
}

func containsSymbol(symbols []string, symbol string) bool {
	for _, s := range symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc struct {
	symbols  []string
	onSignal func(models.TradeSignal)
}

// NewConsumerFunc creates a ConsumerFunc.
func NewConsumerFunc(symbols []string, onSignal func(models.TradeSignal)) *ConsumerFunc {
	return &ConsumerFunc{symbols: symbols, onSignal: onSignal}
}

// OnSignal implements Consumer.
func (c *ConsumerFunc) OnSignal(sig models.TradeSignal) {
	if c.onSignal != nil {
		c.onSignal(sig)
	}
}

// Symbols implements Consumer.
func (c *ConsumerFunc) Symbols() []string {
	return c.symbols
}
