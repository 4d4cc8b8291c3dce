package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	eventsdomain "github.com/smallbiznis/clinova/internal/events/domain"
	"github.com/smallbiznis/clinova/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Publisher struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewPublisher(p Params) eventsdomain.Publisher {
	return &Publisher{
		db:    p.DB,
		log:   p.Log.Named("events.publisher"),
		genID: p.GenID,
	}
}

func (p *Publisher) Publish(ctx context.Context, event eventsdomain.DomainEvent) error {
	if strings.TrimSpace(event.EventType) == "" {
		return nil
	}
	if event.ID == 0 {
		event.ID = p.genID.Generate()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	err := p.db.WithContext(ctx).Exec(
		`INSERT INTO domain_events (
			id, tenant_id, clinic_id, event_type, payload, dedupe_key, published, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.TenantID,
		event.ClinicID,
		event.EventType,
		event.Payload,
		event.DedupeKey,
		false,
		event.CreatedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			p.log.Debug("domain event deduplicated",
				zap.String("event_type", event.EventType),
				zap.Stringp("dedupe_key", event.DedupeKey),
			)
			return nil
		}
		return err
	}
	return nil
}
