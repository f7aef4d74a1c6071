package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ict-signals/internal/models"
	"ict-signals/internal/notify"
)

func testSignal(id, symbol string, dir models.Direction, q models.SignalQuality) models.TradeSignal {
	return models.TradeSignal{
		ID:          id,
		Symbol:      symbol,
		Direction:   dir,
		Quality:     q,
		Confidence:  80,
		DataQuality: models.DataReal,
	}
}

// Every fast subscriber sees every published signal.
func TestProperty_SubscribersReceiveAllSignals(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20

	properties := gopter.NewProperties(parameters)
	symbols := []string{"NIFTY", "BANKNIFTY", "RELIANCE"}

	properties.Property("fast subscribers receive every signal", prop.ForAll(
		func(subscriberCount, signalCount, symbolIdx int) bool {
			symbol := symbols[symbolIdx]
			hub := NewHubWithConfig(HubConfig{BufferSize: 100, SubscriberBufferSize: 100})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			hub.Start(ctx)
			defer hub.Stop()

			channels := make([]<-chan models.TradeSignal, subscriberCount)
			for i := range channels {
				channels[i] = hub.Subscribe(symbol)
			}

			for i := 0; i < signalCount; i++ {
				if !hub.Publish(testSignal(fmt.Sprintf("s%d", i), symbol, models.DirectionBuy, models.QualityGood)) {
					return false
				}
			}

			for _, ch := range channels {
				for i := 0; i < signalCount; i++ {
					select {
					case sig := <-ch:
						if sig.ID != fmt.Sprintf("s%d", i) {
							return false
						}
					case <-time.After(2 * time.Second):
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 20),
		gen.IntRange(0, len(symbols)-1),
	))

	properties.TestingRun(t)
}

// A subscriber that never reads cannot hold up the others.
func TestProperty_SlowSubscribersDoNotBlockOthers(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 10

	properties := gopter.NewProperties(parameters)

	properties.Property("fast subscriber drains while slow one drops", prop.ForAll(
		func(signalCount int) bool {
			hub := NewHubWithConfig(HubConfig{BufferSize: 100, SubscriberBufferSize: 2})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			hub.Start(ctx)
			defer hub.Stop()

			_ = hub.Subscribe("NIFTY") // never read
			fast := hub.Subscribe("NIFTY")

			for i := 0; i < signalCount; i++ {
				hub.Publish(testSignal(fmt.Sprintf("s%d", i), "NIFTY", models.DirectionSell, models.QualityFair))
				select {
				case <-fast:
				case <-time.After(2 * time.Second):
					return false
				}
			}

			// counters are updated after the last send completes
			deadline := time.Now().Add(time.Second)
			for time.Now().Before(deadline) {
				m := hub.Metrics()
				if m.Received == uint64(signalCount) && m.Dropped == uint64(signalCount-2) {
					return true
				}
				time.Sleep(time.Millisecond)
			}
			return false
		},
		gen.IntRange(3, 30),
	))

	properties.TestingRun(t)
}

func TestHubSymbolFiltering(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	defer hub.Stop()

	nifty := hub.Subscribe("NIFTY")
	bank := hub.Subscribe("BANKNIFTY")
	all := hub.Subscribe(AllSymbols)
	assert.Equal(t, 3, hub.TotalSubscribers())

	hub.Publish(testSignal("a", "NIFTY", models.DirectionBuy, models.QualityGood))
	hub.Publish(testSignal("b", "BANKNIFTY", models.DirectionSell, models.QualityGood))

	recv := func(ch <-chan models.TradeSignal) string {
		select {
		case sig := <-ch:
			return sig.ID
		case <-time.After(time.Second):
			return ""
		}
	}

	assert.Equal(t, "a", recv(nifty))
	assert.Equal(t, "b", recv(bank))
	assert.Equal(t, "a", recv(all))
	assert.Equal(t, "b", recv(all))

	select {
	case sig := <-nifty:
		t.Fatalf("unexpected %s on NIFTY channel", sig.ID)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHubUnsubscribeAndStop(t *testing.T) {
	hub := NewHub()
	hub.Start(context.Background())

	ch := hub.Subscribe("NIFTY")
	other := hub.Subscribe("NIFTY")
	hub.Unsubscribe("NIFTY", ch)
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 1, hub.SubscriberCount("NIFTY"))

	hub.Stop()
	_, ok = <-other
	assert.False(t, ok)
	assert.False(t, hub.IsStarted())
	assert.Equal(t, 0, hub.TotalSubscribers())
}

func TestHubConsumers(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	defer hub.Stop()

	var mu sync.Mutex
	var seen []string
	var wg sync.WaitGroup
	wg.Add(1)
	consumer := NewConsumerFunc([]string{"BANKNIFTY"}, func(sig models.TradeSignal) {
		mu.Lock()
		seen = append(seen, sig.ID)
		mu.Unlock()
		wg.Done()
	})
	hub.RegisterConsumer(consumer)

	hub.Publish(testSignal("a", "NIFTY", models.DirectionBuy, models.QualityGood))
	hub.Publish(testSignal("b", "BANKNIFTY", models.DirectionBuy, models.QualityGood))
	wg.Wait()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"b"}, seen)
	mu.Unlock()

	hub.UnregisterConsumer(consumer)
}

type recordingNotifier struct {
	notify.NoOpNotifier
	mu   sync.Mutex
	sent []string
	err  error
}

func (r *recordingNotifier) SendSignal(_ context.Context, sig models.TradeSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sig.ID)
	return nil
}

func TestAlertMonitorRules(t *testing.T) {
	n := &recordingNotifier{}
	m := NewAlertMonitor(AlertRule{MinQuality: models.QualityGood, OnChangeOnly: true}, n, zerolog.Nop())

	var triggered int
	m.SetOnTrigger(func(models.TradeSignal) { triggered++ })

	hold := testSignal("h", "NIFTY", models.DirectionHold, models.QualityExcellent)
	weak := testSignal("w", "NIFTY", models.DirectionBuy, models.QualityFair)
	fallback := testSignal("f", "NIFTY", models.DirectionBuy, models.QualityExcellent)
	fallback.DataQuality = models.DataFallback
	buy := testSignal("b1", "NIFTY", models.DirectionBuy, models.QualityGood)
	buyAgain := testSignal("b2", "NIFTY", models.DirectionBuy, models.QualityVeryGood)
	sell := testSignal("s1", "NIFTY", models.DirectionSell, models.QualityExcellent)

	for _, sig := range []models.TradeSignal{hold, weak, fallback, buy, buy, buyAgain, sell} {
		m.OnSignal(sig)
	}

	assert.Equal(t, []string{"b1", "s1"}, n.sent)
	assert.Equal(t, 2, triggered)

	m.Reset("NIFTY")
	assert.True(t, m.ShouldAlert(testSignal("s2", "NIFTY", models.DirectionSell, models.QualityGood)))
}

func TestAlertMonitorFailedSendDoesNotTrigger(t *testing.T) {
	n := &recordingNotifier{err: errors.New("boom")}
	m := NewAlertMonitor(AlertRule{}, n, zerolog.Nop(), "NIFTY")
	require.Equal(t, []string{"NIFTY"}, m.Symbols())

	called := false
	m.SetOnTrigger(func(models.TradeSignal) { called = true })
	m.OnSignal(testSignal("x", "NIFTY", models.DirectionBuy, models.QualityExcellent))
	assert.False(t, called)
}
