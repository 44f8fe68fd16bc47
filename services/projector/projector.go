// Package projector maintains per-user usage statistics from the events the
// API publishes. It is the only writer of the user_stats table.
package projector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tenxcards/pkg/bus"
)

const (
	sessionOpenedSubject    = "cards.sessions.opened"
	sessionCompletedSubject = "cards.sessions.completed"
	cardsSavedSubject       = "cards.flashcards.saved"
)

type userStatsModel struct {
	UserID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionsOpened    int64     `gorm:"not null;default:0"`
	SessionsCompleted int64     `gorm:"not null;default:0"`
	CardsSaved        int64     `gorm:"not null;default:0"`
	CardsRejected     int64     `gorm:"not null;default:0"`
	UpdatedAt         time.Time `gorm:"not null;autoUpdateTime"`
}

func (userStatsModel) TableName() string { return "user_stats" }

// Projector consumes session and card events and folds them into user_stats.
type Projector struct {
	orm *gorm.DB
	bus *bus.Bus
	log zerolog.Logger

	subsMu sync.Mutex
	subs   []io.Closer
}

// New creates a projector bound to the provided dependencies.
func New(orm *gorm.DB, b *bus.Bus, log zerolog.Logger) (*Projector, error) {
	if orm == nil {
		return nil, errors.New("orm is required")
	}
	if b == nil {
		return nil, errors.New("bus is required")
	}
	return &Projector{
		orm: orm,
		bus: b,
		log: log.With().Str("component", "projector").Logger(),
	}, nil
}

// Start registers durable subscriptions and begins processing events.
func (p *Projector) Start(ctx context.Context) error {
	specs := []struct {
		subject string
		durable string
		handler func(context.Context, []byte) error
	}{
		{sessionOpenedSubject, "projector-sessions-opened", p.handleSessionOpened},
		{sessionCompletedSubject, "projector-sessions-completed", p.handleSessionCompleted},
		{cardsSavedSubject, "projector-cards-saved", p.handleCardsSaved},
	}

	for _, spec := range specs {
		closer, err := p.bus.Subscribe(ctx, spec.subject, spec.durable, spec.handler)
		if err != nil {
			p.Close()
			return err
		}
		p.subsMu.Lock()
		p.subs = append(p.subs, closer)
		p.subsMu.Unlock()
	}

	return nil
}

// Close tears down active subscriptions.
func (p *Projector) Close() error {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()

	var firstErr error
	for _, sub := range p.subs {
		if sub == nil {
			continue
		}
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.subs = nil
	return firstErr
}

type sessionOpenedEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
}

type sessionCompletedEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	Rejected  int64     `json:"rejected"`
}

type cardsSavedEvent struct {
	UserID  uuid.UUID   `json:"user_id"`
	CardIDs []uuid.UUID `json:"card_ids"`
}

func (p *Projector) handleSessionOpened(ctx context.Context, data []byte) error {
	var evt sessionOpenedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}
	if evt.UserID == uuid.Nil {
		return errors.New("user_id missing from session opened event")
	}
	if err := p.apply(ctx, evt.UserID, statsDelta{SessionsOpened: 1}); err != nil {
		return err
	}
	return p.journal(ctx, evt.UserID, sessionOpenedSubject, payloadMap(data))
}

func (p *Projector) handleSessionCompleted(ctx context.Context, data []byte) error {
	var evt sessionCompletedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}
	if evt.UserID == uuid.Nil {
		return errors.New("user_id missing from session completed event")
	}
	if err := p.apply(ctx, evt.UserID, statsDelta{SessionsCompleted: 1, CardsRejected: evt.Rejected}); err != nil {
		return err
	}
	return p.journal(ctx, evt.UserID, sessionCompletedSubject, payloadMap(data))
}

func (p *Projector) handleCardsSaved(ctx context.Context, data []byte) error {
	var evt cardsSavedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}
	if evt.UserID == uuid.Nil {
		return errors.New("user_id missing from cards saved event")
	}
	if len(evt.CardIDs) == 0 {
		return nil
	}
	if err := p.apply(ctx, evt.UserID, statsDelta{CardsSaved: int64(len(evt.CardIDs))}); err != nil {
		return err
	}
	return p.journal(ctx, evt.UserID, cardsSavedSubject, payloadMap(data))
}

// payloadMap re-decodes an event for the journal. A payload that already
// passed typed decoding cannot fail here.
func payloadMap(data []byte) map[string]any {
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	return m
}

type statsDelta struct {
	SessionsOpened    int64
	SessionsCompleted int64
	CardsSaved        int64
	CardsRejected     int64
}

func (p *Projector) apply(ctx context.Context, userID uuid.UUID, d statsDelta) error {
	row := userStatsModel{
		UserID:            userID,
		SessionsOpened:    d.SessionsOpened,
		SessionsCompleted: d.SessionsCompleted,
		CardsSaved:        d.CardsSaved,
		CardsRejected:     d.CardsRejected,
		UpdatedAt:         time.Now().UTC(),
	}
	return p.orm.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"sessions_opened":    gorm.Expr("user_stats.sessions_opened + ?", d.SessionsOpened),
			"sessions_completed": gorm.Expr("user_stats.sessions_completed + ?", d.SessionsCompleted),
			"cards_saved":        gorm.Expr("user_stats.cards_saved + ?", d.CardsSaved),
			"cards_rejected":     gorm.Expr("user_stats.cards_rejected + ?", d.CardsRejected),
			"updated_at":         time.Now().UTC(),
		}),
	}).Create(&row).Error
}

// Stats returns the current counters for a user, zeroed when none exist.
func (p *Projector) Stats(ctx context.Context, userID uuid.UUID) (opened, completed, saved, rejected int64, err error) {
	var row userStatsModel
	err = p.orm.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, 0, 0, 0, nil
	}
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return row.SessionsOpened, row.SessionsCompleted, row.CardsSaved, row.CardsRejected, nil
}
