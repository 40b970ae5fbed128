package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nanofleet/agentd/internal/logger"
)

// Notification is an ephemeral value. It lives only on the bus's
// distribution path and is never persisted.
type Notification struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

// Subscriber receives every notification published while it is attached.
// Outbound is buffered; a subscriber that stops draining loses messages
// rather than blocking the publisher.
type Subscriber struct {
	ID       uuid.UUID
	Outbound chan Notification
}

// subscriberBuffer bounds how far a slow subscriber may fall behind before
// publishes to it are dropped.
const subscriberBuffer = 10

// Bus is an in-process fan-out channel for asynchronous notifications. A
// publish with zero attached subscribers drops the notification: nothing is
// buffered or replayed to late subscribers. Instances are injected into the
// components that need them; there is no package-level bus.
type Bus struct {
	mu          sync.RWMutex
	log         *logger.Logger
	subscribers map[*Subscriber]bool
	mirror      Mirror
}

// Mirror receives a copy of every published notification, independent of
// subscriber count. Used to bridge notifications onto external channels.
type Mirror interface {
	Forward(n Notification)
}

func NewBus(log *logger.Logger) *Bus {
	return &Bus{
		log:         log.With("component", "NotificationBus"),
		subscribers: make(map[*Subscriber]bool),
	}
}

// SetMirror attaches an external mirror. Call during wiring, before any
// publish.
func (b *Bus) SetMirror(m Mirror) {
	b.mirror = m
}

func (b *Bus) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID:       uuid.New(),
		Outbound: make(chan Notification, subscriberBuffer),
	}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	b.log.Debug("Notification subscriber attached", "subscriberID", sub.ID)
	return sub
}

func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	_, attached := b.subscribers[sub]
	delete(b.subscribers, sub)
	b.mu.Unlock()

	if attached {
		close(sub.Outbound)
		b.log.Debug("Notification subscriber detached", "subscriberID", sub.ID)
	}
}

// Publish fans the notification out to every attached subscriber.
func (b *Bus) Publish(text, source string) {
	n := Notification{
		Text:      text,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Source:    source,
	}

	if b.mirror != nil {
		b.mirror.Forward(n)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.subscribers) == 0 {
		b.log.Info("No subscriber connected, notification dropped", "text", truncate(text, 80))
		return
	}
	for sub := range b.subscribers {
		select {
		case sub.Outbound <- n:
		default:
			b.log.Warn("Dropping notification; subscriber buffer full", "subscriberID", sub.ID)
		}
	}
}

// Notify publishes with the default heartbeat source tag.
func (b *Bus) Notify(text string) {
	b.Publish(text, "heartbeat")
}

func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
