package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"tenxcards/pkg/bus"
	s3client "tenxcards/pkg/s3"
	"tenxcards/services/cards"
	"tenxcards/services/ledger"
)

// User is the public account shape.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the public generation-session shape, the audit record for one
// AI generation request.
type Session struct {
	ID                  uuid.UUID  `json:"id"`
	ClientRequestID     uuid.UUID  `json:"client_request_id"`
	Model               string     `json:"model_identifier"`
	GeneratedCount      int        `json:"generated_count"`
	SavedUnchangedCount int        `json:"saved_unchanged_count"`
	SavedEditedCount    int        `json:"saved_edited_count"`
	RejectedCount       int        `json:"rejected_count"`
	SourceTextLength    int        `json:"source_text_length"`
	StartedAt           time.Time  `json:"generation_started_at"`
	CompletedAt         *time.Time `json:"generation_completed_at,omitempty"`
}

func sessionToAPI(s ledger.Session) Session {
	return Session{
		ID:                  s.ID,
		ClientRequestID:     s.ClientRequestID,
		Model:               s.Model,
		GeneratedCount:      s.GeneratedCount,
		SavedUnchangedCount: s.SavedUnchangedCount,
		SavedEditedCount:    s.SavedEditedCount,
		RejectedCount:       s.RejectedCount,
		SourceTextLength:    s.SourceTextLength,
		StartedAt:           s.StartedAt,
		CompletedAt:         s.CompletedAt,
	}
}

// Flashcard is the public card shape.
type Flashcard struct {
	ID                  uuid.UUID  `json:"id"`
	FrontText           string     `json:"front_text"`
	BackText            string     `json:"back_text"`
	Source              string     `json:"source"`
	GenerationSessionID *uuid.UUID `json:"generation_session_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func cardToAPI(c cards.Flashcard) Flashcard {
	return Flashcard{
		ID:                  c.ID,
		FrontText:           c.FrontText,
		BackText:            c.BackText,
		Source:              c.Source,
		GenerationSessionID: c.GenerationSessionID,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

// Store holds external dependencies required by the API layer.
type Store struct {
	DB  *pgxpool.Pool
	ORM *gorm.DB
	S3  *s3client.Client
	Bus *bus.Bus
}
