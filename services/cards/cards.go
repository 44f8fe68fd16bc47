// Package cards is the flashcard store shared by the HTTP API and the batch
// reconciler. All access is scoped to an owning user and deletes are soft.
package cards

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Source values recorded on every flashcard.
const (
	SourceManual     = "manual"
	SourceAIOriginal = "ai_original"
	SourceAIEdited   = "ai_edited"
)

// ErrNotFound means no owned, non-deleted flashcard matched.
var (
	ErrNotFound    = errors.New("flashcard not found")
	ErrInvalidSort = errors.New("unsupported sort field")
)

// MaxSideLength bounds both text sides of a card.
const MaxSideLength = 500

// Flashcard is the persisted card row.
type Flashcard struct {
	ID                  uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID              uuid.UUID  `gorm:"type:uuid;not null;index:idx_flashcard_user_deleted"`
	FrontText           string     `gorm:"type:varchar(500);not null"`
	BackText            string     `gorm:"type:varchar(500);not null"`
	Source              string     `gorm:"type:text;not null"`
	GenerationSessionID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           *time.Time `gorm:"index:idx_flashcard_user_deleted"`
}

// TableName keeps gorm on the migration's table.
func (Flashcard) TableName() string { return "flashcards" }

// ValidSource reports whether s is one of the known source values.
func ValidSource(s string) bool {
	switch s {
	case SourceManual, SourceAIOriginal, SourceAIEdited:
		return true
	}
	return false
}

// ValidateSides checks both card sides for emptiness and length.
func ValidateSides(front, back string) error {
	if strings.TrimSpace(front) == "" {
		return errors.New("front_text must not be empty")
	}
	if strings.TrimSpace(back) == "" {
		return errors.New("back_text must not be empty")
	}
	if n := len([]rune(front)); n > MaxSideLength {
		return fmt.Errorf("front_text exceeds %d characters (got %d)", MaxSideLength, n)
	}
	if n := len([]rune(back)); n > MaxSideLength {
		return fmt.Errorf("back_text exceeds %d characters (got %d)", MaxSideLength, n)
	}
	return nil
}

// ListParams filters and pages a flashcard listing.
type ListParams struct {
	Source string // empty means all sources
	Query  string // case-insensitive substring over both sides
	Sort   string // created_at|updated_at|front_text, "-" prefix for descending
	Limit  int
	Offset int
}

// Store wraps gorm access to the flashcards table.
type Store struct {
	orm *gorm.DB
}

// NewStore builds a Store over the provided gorm handle.
func NewStore(orm *gorm.DB) (*Store, error) {
	if orm == nil {
		return nil, errors.New("orm is required")
	}
	return &Store{orm: orm}, nil
}

// Create inserts a single card, assigning the id when unset.
func (s *Store) Create(ctx context.Context, card *Flashcard) error {
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	return s.orm.WithContext(ctx).Create(card).Error
}

// CreateBatch inserts all cards in one transaction; none persist on failure.
func (s *Store) CreateBatch(ctx context.Context, batch []*Flashcard) error {
	if len(batch) == 0 {
		return nil
	}
	for _, card := range batch {
		if card.ID == uuid.Nil {
			card.ID = uuid.New()
		}
	}
	return s.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(batch).Error
	})
}

// Get fetches one owned, non-deleted card.
func (s *Store) Get(ctx context.Context, id, userID uuid.UUID) (*Flashcard, error) {
	var card Flashcard
	err := s.orm.WithContext(ctx).
		Where("id = ? AND user_id = ? AND deleted_at IS NULL", id, userID).
		First(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// Update rewrites both sides of an owned card. The source tag is fixed at
// creation and never changes afterwards.
func (s *Store) Update(ctx context.Context, id, userID uuid.UUID, front, back string) (*Flashcard, error) {
	card, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	card.FrontText = front
	card.BackText = back
	card.UpdatedAt = time.Now().UTC()

	if err := s.orm.WithContext(ctx).Save(card).Error; err != nil {
		return nil, err
	}
	return card, nil
}

// Delete soft-deletes an owned card.
func (s *Store) Delete(ctx context.Context, id, userID uuid.UUID) error {
	res := s.orm.WithContext(ctx).
		Model(&Flashcard{}).
		Where("id = ? AND user_id = ? AND deleted_at IS NULL", id, userID).
		Update("deleted_at", time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of the user's cards plus the total match count.
func (s *Store) List(ctx context.Context, userID uuid.UUID, p ListParams) ([]Flashcard, int64, error) {
	q := s.orm.WithContext(ctx).
		Model(&Flashcard{}).
		Where("user_id = ? AND deleted_at IS NULL", userID)

	if p.Source != "" {
		q = q.Where("source = ?", p.Source)
	}
	if p.Query != "" {
		pattern := "%" + strings.ToLower(p.Query) + "%"
		q = q.Where("lower(front_text) LIKE ? OR lower(back_text) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order, err := orderClause(p.Sort)
	if err != nil {
		return nil, 0, err
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}

	cards := []Flashcard{}
	err = q.Order(order).Limit(limit).Offset(offset).Find(&cards).Error
	if err != nil {
		return nil, 0, err
	}
	return cards, total, nil
}

func orderClause(sort string) (string, error) {
	if sort == "" {
		return "created_at DESC", nil
	}
	dir := "ASC"
	col := sort
	if strings.HasPrefix(sort, "-") {
		dir = "DESC"
		col = sort[1:]
	}
	switch col {
	case "created_at", "updated_at", "front_text":
		return col + " " + dir, nil
	}
	return "", fmt.Errorf("%w %q", ErrInvalidSort, col)
}
