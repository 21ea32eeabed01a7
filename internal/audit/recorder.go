package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/qdmz/webchaxun/internal/models"
)

// EventType is the stream message type the worker persists.
const EventType = "audit"

type Recorder interface {
	Record(ctx context.Context, event models.AuditEvent)
}

// LogRecorder only writes the event to the log.
type LogRecorder struct {
	log zerolog.Logger
}

func NewLogRecorder(log zerolog.Logger) *LogRecorder {
	return &LogRecorder{log: log}
}

func (r *LogRecorder) Record(_ context.Context, event models.AuditEvent) {
	logEvent(r.log, event)
}

// StreamRecorder logs the event and queues it for publication to a Redis
// stream, where the worker persists it. Record never waits on Redis: a
// background goroutine drains the queue, and events that find it full are
// dropped with a warning.
type StreamRecorder struct {
	client  redis.UniversalClient
	stream  string
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan models.AuditEvent
	done   chan struct{}
}

func NewStreamRecorder(client redis.UniversalClient, stream string, buffer int, log zerolog.Logger) *StreamRecorder {
	r := newStreamRecorder(client, stream, buffer, log)
	r.start()
	return r
}

func newStreamRecorder(client redis.UniversalClient, stream string, buffer int, log zerolog.Logger) *StreamRecorder {
	if buffer <= 0 {
		buffer = 1
	}
	return &StreamRecorder{
		client:  client,
		stream:  stream,
		timeout: 2 * time.Second,
		now:     time.Now,
		log:     log,
		queue:   make(chan models.AuditEvent, buffer),
		done:    make(chan struct{}),
	}
}

func (r *StreamRecorder) WithClock(now func() time.Time) *StreamRecorder {
	r.now = now
	return r
}

func (r *StreamRecorder) start() {
	go func() {
		defer close(r.done)
		for event := range r.queue {
			r.publish(event)
		}
	}()
}

func (r *StreamRecorder) Record(_ context.Context, event models.AuditEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now()
	}
	logEvent(r.log, event)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.log.Warn().Str("action", event.Action).Msg("audit recorder closed, event not published")
		return
	}
	select {
	case r.queue <- event:
	default:
		r.log.Warn().Str("action", event.Action).Msg("audit queue full, event dropped")
	}
}

// Close stops accepting events and publishes what is already queued. It
// returns early when ctx ends first.
func (r *StreamRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *StreamRecorder) publish(event models.AuditEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.log.Error().Err(err).Str("action", event.Action).Msg("encode audit event failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"type":    EventType,
			"payload": string(payload),
		},
	}).Err()
	if err != nil {
		r.log.Error().Err(err).Str("action", event.Action).Msg("publish audit event failed")
	}
}

func logEvent(log zerolog.Logger, event models.AuditEvent) {
	var e *zerolog.Event
	switch event.Level {
	case "warning", "warn":
		e = log.Warn()
	case "error":
		e = log.Error()
	default:
		e = log.Info()
	}
	e.Str("kind", string(event.Kind)).
		Str("action", event.Action).
		Str("user_id", event.UserID).
		Str("username", event.Username).
		Str("ip", event.IPAddress).
		Str("details", event.Details).
		Msg("audit")
}
