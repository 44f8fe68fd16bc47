package projector

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// usageEventModel is the append-only journal of consumed events. It keeps the
// raw payload so counters can be rebuilt or audited after the fact.
type usageEventModel struct {
	ID      int64     `gorm:"primaryKey;autoIncrement"`
	UserID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Subject string    `gorm:"not null"`
	Payload datatypes.JSONMap
	At      time.Time `gorm:"not null;autoCreateTime"`
}

func (usageEventModel) TableName() string { return "usage_events" }

// UsageEvent is a journaled event as returned to callers.
type UsageEvent struct {
	Subject string
	Payload map[string]any
	At      time.Time
}

func (p *Projector) journal(ctx context.Context, userID uuid.UUID, subject string, payload map[string]any) error {
	row := usageEventModel{
		UserID:  userID,
		Subject: subject,
		Payload: datatypes.JSONMap(payload),
		At:      time.Now().UTC(),
	}
	return p.orm.WithContext(ctx).Create(&row).Error
}

// Journal returns the most recent journaled events for a user, newest first.
func (p *Projector) Journal(ctx context.Context, userID uuid.UUID, limit int) ([]UsageEvent, error) {
	if limit < 1 {
		limit = 50
	}

	var rows []usageEventModel
	err := p.orm.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	events := make([]UsageEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, UsageEvent{
			Subject: row.Subject,
			Payload: map[string]any(row.Payload),
			At:      row.At,
		})
	}
	return events, nil
}
