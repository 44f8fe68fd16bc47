// Package ledger tracks one audit record per AI generation request. A
// session is opened when generation succeeds and closed exactly once by the
// batch reconciler; no other states exist.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tenxcards/pkg/db"
)

var (
	// ErrDuplicateRequest means a session with the same (user, client request id)
	// already exists. This is the idempotency guarantee, not a retry mechanism.
	ErrDuplicateRequest = errors.New("duplicate generation request")

	// ErrNotFound means no matching, owned, non-deleted session exists.
	ErrNotFound = errors.New("generation session not found")

	// ErrAlreadyCompleted means the session was finalized before; a second
	// close never double-counts.
	ErrAlreadyCompleted = errors.New("generation session already completed")
)

// Session is one audit ledger row.
type Session struct {
	ID                  uuid.UUID  `db:"id"`
	UserID              uuid.UUID  `db:"user_id"`
	ClientRequestID     uuid.UUID  `db:"client_request_id"`
	Model               string     `db:"model"`
	GeneratedCount      int        `db:"generated_count"`
	SavedUnchangedCount int        `db:"saved_unchanged_count"`
	SavedEditedCount    int        `db:"saved_edited_count"`
	RejectedCount       int        `db:"rejected_count"`
	SourceTextLength    int        `db:"source_text_length"`
	StartedAt           time.Time  `db:"started_at"`
	CompletedAt         *time.Time `db:"completed_at"`
}

// Completed reports whether the session has been finalized.
func (s Session) Completed() bool { return s.CompletedAt != nil }

// OpenParams carries the fields required to open a session.
type OpenParams struct {
	UserID           uuid.UUID
	ClientRequestID  uuid.UUID // uuid.Nil lets the ledger generate one
	Model            string
	GeneratedCount   int
	SourceTextLength int
}

// CloseParams finalizes a session with the reconciled counters.
type CloseParams struct {
	SessionID      uuid.UUID
	UserID         uuid.UUID
	SavedUnchanged int
	SavedEdited    int
	Rejected       int
}

// Ledger is the session audit store used by the API and the reconciler.
type Ledger interface {
	Open(ctx context.Context, p OpenParams) (Session, error)
	Close(ctx context.Context, p CloseParams) (Session, error)
	Get(ctx context.Context, sessionID, userID uuid.UUID) (Session, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Session, int, error)
}

// Store implements Ledger on Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore builds a Store over the provided pool.
func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &Store{pool: pool}, nil
}

const sessionColumns = `
    id, user_id, client_request_id, model, generated_count,
    saved_unchanged_count, saved_edited_count, rejected_count,
    source_text_length, started_at, completed_at
`

// Open inserts the session row. The unique (user_id, client_request_id)
// constraint is the only concurrency guard: of two concurrent opens with the
// same key, the second observes ErrDuplicateRequest.
func (s *Store) Open(ctx context.Context, p OpenParams) (Session, error) {
	if p.UserID == uuid.Nil {
		return Session{}, errors.New("user id is required")
	}
	if p.GeneratedCount < 0 {
		return Session{}, errors.New("generated count must not be negative")
	}
	if p.ClientRequestID == uuid.Nil {
		p.ClientRequestID = uuid.New()
	}

	query := `
        INSERT INTO generation_sessions
            (id, user_id, client_request_id, model, generated_count, source_text_length, started_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (user_id, client_request_id) DO NOTHING
        RETURNING` + sessionColumns + `;
    `

	var session Session
	err := db.Get(ctx, s.pool, &session, query,
		uuid.New(), p.UserID, p.ClientRequestID, p.Model, p.GeneratedCount, p.SourceTextLength, time.Now().UTC())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrDuplicateRequest
		}
		return Session{}, err
	}

	return session, nil
}

// Close sets the three counters and completed_at in one update. The
// completed_at IS NULL predicate makes finalization single-shot.
func (s *Store) Close(ctx context.Context, p CloseParams) (Session, error) {
	query := `
        UPDATE generation_sessions
        SET saved_unchanged_count = $3,
            saved_edited_count = $4,
            rejected_count = $5,
            completed_at = $6
        WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL AND completed_at IS NULL
        RETURNING` + sessionColumns + `;
    `

	var session Session
	err := db.Get(ctx, s.pool, &session, query,
		p.SessionID, p.UserID, p.SavedUnchanged, p.SavedEdited, p.Rejected, time.Now().UTC())
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Session{}, err
	}

	// Distinguish a missing session from one that was already finalized.
	existing, getErr := s.Get(ctx, p.SessionID, p.UserID)
	if getErr != nil {
		return Session{}, getErr
	}
	if existing.Completed() {
		return Session{}, ErrAlreadyCompleted
	}
	return Session{}, ErrNotFound
}

// Get fetches an owned, non-deleted session.
func (s *Store) Get(ctx context.Context, sessionID, userID uuid.UUID) (Session, error) {
	query := `
        SELECT` + sessionColumns + `
        FROM generation_sessions
        WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL;
    `

	var session Session
	if err := db.Get(ctx, s.pool, &session, query, sessionID, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}

	return session, nil
}

// List returns the user's sessions newest first plus the total count.
func (s *Store) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Session, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	countQuery := `
        SELECT count(*) FROM generation_sessions
        WHERE user_id = $1 AND deleted_at IS NULL;
    `
	if err := db.Get(ctx, s.pool, &total, countQuery, userID); err != nil {
		return nil, 0, err
	}

	query := `
        SELECT` + sessionColumns + `
        FROM generation_sessions
        WHERE user_id = $1 AND deleted_at IS NULL
        ORDER BY started_at DESC
        LIMIT $2 OFFSET $3;
    `

	sessions := []Session{}
	if err := db.Select(ctx, s.pool, &sessions, query, userID, limit, offset); err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}
