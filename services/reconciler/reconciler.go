// Package reconciler finalizes a review round: it checks the accepted and
// rejected totals against the session's generated count, persists the
// accepted cards in one transaction, and closes the session ledger entry.
package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tenxcards/services/cards"
	"tenxcards/services/ledger"
)

// ErrInvalidCounts is returned when accepted + rejected does not equal the
// session's generated count. Nothing is persisted in that case.
type ErrInvalidCounts struct {
	Expected int
	Received int
}

func (e *ErrInvalidCounts) Error() string {
	return fmt.Sprintf("accepted + rejected must equal %d, got %d", e.Expected, e.Received)
}

// ErrTransactionFailed wraps a storage failure after validation passed. When
// Partial is true the cards were written but the ledger close failed, so the
// session remains open.
type ErrTransactionFailed struct {
	Partial bool
	Err     error
}

func (e *ErrTransactionFailed) Error() string {
	if e.Partial {
		return fmt.Sprintf("cards saved but session close failed: %v", e.Err)
	}
	return fmt.Sprintf("card batch insert failed: %v", e.Err)
}

func (e *ErrTransactionFailed) Unwrap() error { return e.Err }

// ErrNoAcceptedCards is returned when a save carries zero accepted cards.
// Abandoning a round entirely is a discard, not a reconciliation.
var ErrNoAcceptedCards = errors.New("at least one accepted card is required")

// AcceptedCard is one card the user kept, with its final text.
type AcceptedCard struct {
	FrontText string
	BackText  string
	Edited    bool
}

// SaveParams is one reconciliation request.
type SaveParams struct {
	SessionID     uuid.UUID
	UserID        uuid.UUID
	Accepted      []AcceptedCard
	RejectedCount int
}

// Result reports a completed reconciliation.
type Result struct {
	SavedCardIDs []uuid.UUID
	Session      ledger.Session
}

// Reconciler validates and persists review outcomes.
type Reconciler struct {
	ledger ledger.Ledger
	cards  *cards.Store
	log    zerolog.Logger
}

// New builds a Reconciler.
func New(l ledger.Ledger, c *cards.Store, log zerolog.Logger) (*Reconciler, error) {
	if l == nil {
		return nil, errors.New("ledger is required")
	}
	if c == nil {
		return nil, errors.New("card store is required")
	}
	return &Reconciler{ledger: l, cards: c, log: log.With().Str("component", "reconciler").Logger()}, nil
}

// Save runs one reconciliation. The count check is strict: every generated
// proposal must be accounted for as either accepted or rejected before any
// row is written. Propagates ledger.ErrNotFound and ledger.ErrAlreadyCompleted.
func (r *Reconciler) Save(ctx context.Context, p SaveParams) (*Result, error) {
	if len(p.Accepted) == 0 {
		return nil, ErrNoAcceptedCards
	}
	if p.RejectedCount < 0 {
		return nil, errors.New("rejected count must not be negative")
	}
	for i, card := range p.Accepted {
		if err := cards.ValidateSides(card.FrontText, card.BackText); err != nil {
			return nil, fmt.Errorf("accepted card %d: %w", i, err)
		}
	}

	session, err := r.ledger.Get(ctx, p.SessionID, p.UserID)
	if err != nil {
		return nil, err
	}
	if session.Completed() {
		return nil, ledger.ErrAlreadyCompleted
	}

	received := len(p.Accepted) + p.RejectedCount
	if received != session.GeneratedCount {
		return nil, &ErrInvalidCounts{Expected: session.GeneratedCount, Received: received}
	}

	unchanged, edited := 0, 0
	batch := make([]*cards.Flashcard, 0, len(p.Accepted))
	for _, card := range p.Accepted {
		source := cards.SourceAIOriginal
		if card.Edited {
			source = cards.SourceAIEdited
			edited++
		} else {
			unchanged++
		}
		sessionID := session.ID
		batch = append(batch, &cards.Flashcard{
			ID:                  uuid.New(),
			UserID:              p.UserID,
			FrontText:           card.FrontText,
			BackText:            card.BackText,
			Source:              source,
			GenerationSessionID: &sessionID,
		})
	}

	if err := r.cards.CreateBatch(ctx, batch); err != nil {
		return nil, &ErrTransactionFailed{Err: err}
	}

	closed, err := r.ledger.Close(ctx, ledger.CloseParams{
		SessionID:      session.ID,
		UserID:         p.UserID,
		SavedUnchanged: unchanged,
		SavedEdited:    edited,
		Rejected:       p.RejectedCount,
	})
	if err != nil {
		// The cards are already durable; the session stays open for a retry.
		r.log.Error().Err(err).
			Str("session_id", session.ID.String()).
			Int("saved", len(batch)).
			Msg("session close failed after card insert")
		return nil, &ErrTransactionFailed{Partial: true, Err: err}
	}

	ids := make([]uuid.UUID, len(batch))
	for i, card := range batch {
		ids[i] = card.ID
	}

	r.log.Info().
		Str("session_id", session.ID.String()).
		Int("saved_unchanged", unchanged).
		Int("saved_edited", edited).
		Int("rejected", p.RejectedCount).
		Msg("session reconciled")

	return &Result{SavedCardIDs: ids, Session: closed}, nil
}
