package notify

import (
	"sync"
	"time"

	"github.com/ayushjava07/DripX/internal/models"
)

// Display durations used by the faucet for each kind of message
const (
	ValidationDuration = 2000 * time.Millisecond
	RequestingDuration = 1000 * time.Millisecond
	ConfirmingDuration = 2000 * time.Millisecond
	SuccessDuration    = 3000 * time.Millisecond
	FailureDuration    = 4000 * time.Millisecond
	BalanceDuration    = 2000 * time.Millisecond
	WalletDuration     = 3000 * time.Millisecond
)

// Notifier receives user facing messages from the faucet core
type Notifier interface {
	Notify(severity models.Severity, message string, duration time.Duration)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(severity models.Severity, message string, duration time.Duration)

// Notify calls f
func (f NotifierFunc) Notify(severity models.Severity, message string, duration time.Duration) {
	f(severity, message, duration)
}

// Discard drops every notification
var Discard Notifier = NotifierFunc(func(models.Severity, string, time.Duration) {})

// Feed is a bounded in-memory notification feed.
//
// Pending notifications are handed out once by Drain. The most recent ones are
// kept for Recent regardless of draining. Subscribers get every notification
// published after they subscribe; slow subscribers lose messages instead of
// blocking the publisher.
type Feed struct {
	mu          sync.Mutex
	size        int
	pending     []models.Notification
	history     []models.Notification
	subscribers map[int]chan models.Notification
	nextID      int
	now         func() time.Time
}

// NewFeed creates a feed holding at most size pending and size recent notifications
func NewFeed(size int) *Feed {
	return NewFeedWithClock(size, time.Now)
}

// NewFeedWithClock is NewFeed with an explicit time source
func NewFeedWithClock(size int, now func() time.Time) *Feed {
	if size <= 0 {
		size = 64
	}
	return &Feed{
		size:        size,
		subscribers: make(map[int]chan models.Notification),
		now:         now,
	}
}

// Notify publishes a notification
func (f *Feed) Notify(severity models.Severity, message string, duration time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := models.Notification{
		Severity: severity,
		Message:  message,
		Duration: duration,
		At:       f.now(),
	}

	f.pending = appendBounded(f.pending, n, f.size)
	f.history = appendBounded(f.history, n, f.size)

	for _, ch := range f.subscribers {
		select {
		case ch <- n:
		default:
		}
	}
}

// Drain returns and forgets the pending notifications, oldest first
func (f *Feed) Drain() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := f.pending
	f.pending = nil
	if out == nil {
		return []models.Notification{}
	}
	return out
}

// Recent returns up to n of the latest notifications, oldest first
func (f *Feed) Recent(n int) []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n <= 0 || n > len(f.history) {
		n = len(f.history)
	}
	out := make([]models.Notification, n)
	copy(out, f.history[len(f.history)-n:])
	return out
}

// Last returns the latest notification, if any
func (f *Feed) Last() (models.Notification, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.history) == 0 {
		return models.Notification{}, false
	}
	return f.history[len(f.history)-1], true
}

// Subscribe returns a channel receiving future notifications and a function
// that unsubscribes and closes it
func (f *Feed) Subscribe(buffer int) (<-chan models.Notification, func()) {
	if buffer <= 0 {
		buffer = 1
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan models.Notification, buffer)
	f.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			// Close may have got here first
			if _, ok := f.subscribers[id]; ok {
				delete(f.subscribers, id)
				close(ch)
			}
		})
	}
}

// Close unsubscribes everyone
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, ch := range f.subscribers {
		delete(f.subscribers, id)
		close(ch)
	}
}

func appendBounded(list []models.Notification, n models.Notification, size int) []models.Notification {
	list = append(list, n)
	if len(list) > size {
		list = append(list[:0:0], list[len(list)-size:]...)
	}
	return list
}
