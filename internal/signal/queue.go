package signal

import (
	"sync"

	"ict-signals/internal/models"
)

// Queue is a bounded FIFO of high-quality signals. When full, the oldest
// entry is dropped.
type Queue struct {
	mu    sync.Mutex
	items []models.TradeSignal
	size  int
	seen  map[string]bool
}

// NewQueue creates a queue holding at most size signals.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 100
	}
	return &Queue{size: size, seen: make(map[string]bool)}
}

// Offer enqueues sig if it is a real EXCELLENT signal not already queued.
func (q *Queue) Offer(sig models.TradeSignal) bool {
	if sig.DataQuality != models.DataReal || sig.Quality != models.QualityExcellent {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.seen[sig.ID] {
		return false
	}
	if len(q.items) == q.size {
		delete(q.seen, q.items[0].ID)
		q.items = q.items[1:]
	}
	q.items = append(q.items, sig)
	q.seen[sig.ID] = true
	return true
}

// Peek returns up to n queued signals, oldest first, without removing them.
func (q *Queue) Peek(n int) []models.TradeSignal {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || n > len(q.items) {
		n = len(q.items)
	}
	out := make([]models.TradeSignal, n)
	copy(out, q.items[:n])
	return out
}

// Drain removes and returns every queued signal.
func (q *Queue) Drain() []models.TradeSignal {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil
	q.seen = make(map[string]bool)
	return out
}

// Len returns the number of queued signals.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
