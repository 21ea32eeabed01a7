package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/qdmz/webchaxun/internal/models"
)

type AuditWriter interface {
	Insert(ctx context.Context, event models.AuditEvent) error
}

// SessionSweeper removes sessions and CSRF tokens past their expiry.
type SessionSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Processor struct {
	audit    AuditWriter
	sessions SessionSweeper
	now      func() time.Time
	logger   zerolog.Logger
}

func NewProcessor(audit AuditWriter, sessions SessionSweeper, logger zerolog.Logger) *Processor {
	return &Processor{
		audit:    audit,
		sessions: sessions,
		now:      time.Now,
		logger:   logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	kind, _ := msg.Values["type"].(string)

	switch kind {
	case "audit":
		return p.handleAudit(ctx, msg)
	case "cleanup":
		return p.handleCleanup(ctx)
	default:
		p.logger.Warn().Str("type", kind).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func (p *Processor) handleAudit(ctx context.Context, msg redis.XMessage) error {
	raw, _ := msg.Values["payload"].(string)
	var event models.AuditEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		// A malformed payload will never decode; acknowledge and drop it.
		p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("decode audit payload failed")
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now()
	}
	if err := p.audit.Insert(ctx, event); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (p *Processor) handleCleanup(ctx context.Context) error {
	if p.sessions == nil {
		return nil
	}
	n, err := p.sessions.DeleteExpired(ctx, p.now())
	if err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	p.logger.Info().Int64("deleted", n).Msg("expired sessions purged")
	return nil
}
