// Package sse pushes tracker events to browsers as Server-Sent Events.
package sse

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// outboxSize bounds how far a stream may fall behind before it is cut.
	outboxSize = 32
	// DefaultHeartbeat keeps idle streams alive through proxies.
	DefaultHeartbeat = 25 * time.Second
)

// Subscriber is one open event stream.
type Subscriber struct {
	outbox  chan []byte
	gone    chan struct{}
	ID      uint64
	Subject string // user or guest the stream belongs to
}

// Done is closed once the subscriber has been dropped.
func (s *Subscriber) Done() <-chan struct{} { return s.gone }

// Broadcaster fans events out to subscribers. Delivery never blocks the
// publisher: a subscriber whose outbox is full is dropped.
type Broadcaster struct {
	subs      map[uint64]*Subscriber
	seq       uint64
	Heartbeat time.Duration
	mu        sync.RWMutex
}

// NewBroadcaster returns a broadcaster with the default heartbeat.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs:      make(map[uint64]*Subscriber),
		Heartbeat: DefaultHeartbeat,
	}
}

// Subscribe opens a stream for subject.
func (b *Broadcaster) Subscribe(subject string) *Subscriber {
	b.mu.Lock()
	b.seq++
	sub := &Subscriber{
		ID:      b.seq,
		Subject: subject,
		outbox:  make(chan []byte, outboxSize),
		gone:    make(chan struct{}),
	}
	b.subs[sub.ID] = sub
	n := len(b.subs)
	b.mu.Unlock()

	log.Debug().Uint64("stream", sub.ID).Str("subject", subject).Int("streams", n).Msg("Event stream opened")
	return sub
}

// Unsubscribe drops sub. Repeated calls are no-ops.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	if _, ok := b.subs[sub.ID]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, sub.ID)
	close(sub.gone)
	n := len(b.subs)
	b.mu.Unlock()

	log.Debug().Uint64("stream", sub.ID).Int("streams", n).Msg("Event stream closed")
}

// Broadcast queues data for every subscriber.
func (b *Broadcaster) Broadcast(data any) {
	b.publish(data, "")
}

// Send queues data for the subscribers of subject only.
func (b *Broadcaster) Send(subject string, data any) {
	if subject == "" {
		return
	}
	b.publish(data, subject)
}

func (b *Broadcaster) publish(data any, subject string) {
	frame, err := encode(data)
	if err != nil {
		log.Error().Err(err).Msg("Encode event")
		return
	}

	var slow []*Subscriber
	b.mu.RLock()
	for _, sub := range b.subs {
		if subject != "" && sub.Subject != subject {
			continue
		}
		select {
		case sub.outbox <- frame:
		default:
			slow = append(slow, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range slow {
		log.Warn().Uint64("stream", sub.ID).Str("subject", sub.Subject).Msg("Event stream fell behind, dropping it")
		b.Unsubscribe(sub)
	}
}

// ClientCount returns the number of open streams.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Handler serves an event stream for the subject that subject(r) names.
// Requests without a subject get 401.
func (b *Broadcaster) Handler(subject func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who := subject(r)
		if who == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")

		sub := b.Subscribe(who)
		defer b.Unsubscribe(sub)

		write := func(frame []byte) bool {
			if _, err := w.Write(frame); err != nil {
				return false
			}
			flusher.Flush()
			return true
		}

		hello, _ := encode(map[string]any{"type": "connected", "stream": sub.ID})
		if !write(hello) {
			return
		}

		beat := b.Heartbeat
		if beat <= 0 {
			beat = DefaultHeartbeat
		}
		ticker := time.NewTicker(beat)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-sub.gone:
				return
			case frame := <-sub.outbox:
				if !write(frame) {
					return
				}
			case <-ticker.C:
				if !write([]byte(": ping\n\n")) {
					return
				}
			}
		}
	}
}

func encode(data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(payload) + 8)
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}
