// Package review drives one flashcard review round on the client side: it
// holds the proposals returned by generation, tracks accept/edit/reject
// decisions, and produces the payload the batch endpoint expects. The engine
// is a strict state machine; calls outside the current state are rejected.
package review

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tenxcards/services/cards"
	"tenxcards/services/generator"
)

// State is the review phase.
type State string

const (
	StateIdle       State = "idle"
	StateGenerating State = "generating"
	StateReviewing  State = "reviewing"
	StateSaving     State = "saving"
	StateSaved      State = "saved"
)

var (
	// ErrNoAccepted means a save was requested with zero accepted cards.
	ErrNoAccepted = errors.New("no accepted cards to save")

	// ErrItemNotFound means the temporary id matched no live review item.
	ErrItemNotFound = errors.New("review item not found")
)

// ErrWrongState reports a call that is not legal in the current state.
type ErrWrongState struct {
	Op    string
	State State
}

func (e *ErrWrongState) Error() string {
	return fmt.Sprintf("%s is not allowed in state %q", e.Op, e.State)
}

// Item is one proposal under review. Rejection removes the item entirely, so
// every Item held by the engine is either pending or accepted.
type Item struct {
	TemporaryID   string
	FrontText     string
	BackText      string
	OriginalFront string
	OriginalBack  string
	Accepted      bool
}

// Edited reports whether either side differs from the generated text.
func (it Item) Edited() bool {
	return it.FrontText != it.OriginalFront || it.BackText != it.OriginalBack
}

// SaveCard is one accepted card in a save plan.
type SaveCard struct {
	FrontText string
	BackText  string
	Edited    bool
}

// SavePlan is the reconciled payload for the batch endpoint. Pending items
// count as rejected: every generated proposal is accounted for.
type SavePlan struct {
	SessionID     uuid.UUID
	Accepted      []SaveCard
	RejectedCount int
}

// Status is a read-only snapshot of the engine for rendering.
type Status struct {
	State          State
	Failed         bool
	FailureMessage string
	SessionID      uuid.UUID
	GeneratedCount int
	RejectedCount  int
	AcceptedCount  int
	Items          []Item
}

// Engine is the review state machine. Safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	state          State
	failed         bool
	failureMessage string

	sessionID      uuid.UUID
	generatedCount int
	rejectedCount  int
	items          []*Item

	store SnapshotStore
	now   func() time.Time
	log   zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSnapshotStore enables snapshot persistence.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds an idle Engine.
func NewEngine(log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		state: StateIdle,
		now:   time.Now,
		log:   log.With().Str("component", "review").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Status returns a copy of the current engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *Engine) statusLocked() Status {
	items := make([]Item, len(e.items))
	accepted := 0
	for i, it := range e.items {
		items[i] = *it
		if it.Accepted {
			accepted++
		}
	}
	return Status{
		State:          e.state,
		Failed:         e.failed,
		FailureMessage: e.failureMessage,
		SessionID:      e.sessionID,
		GeneratedCount: e.generatedCount,
		RejectedCount:  e.rejectedCount,
		AcceptedCount:  accepted,
		Items:          items,
	}
}

// Begin moves idle → generating. A previous failure is cleared; a round
// already under review must be discarded first.
func (e *Engine) Begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return &ErrWrongState{Op: "begin", State: e.state}
	}
	e.state = StateGenerating
	e.failed = false
	e.failureMessage = ""
	return nil
}

// GenerationSucceeded moves generating → reviewing with the fresh proposals.
// An empty proposal list still opens a review round so the session can be
// closed with everything rejected.
func (e *Engine) GenerationSucceeded(sessionID uuid.UUID, proposals []generator.Proposal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateGenerating {
		return &ErrWrongState{Op: "generation result", State: e.state}
	}

	e.sessionID = sessionID
	e.generatedCount = len(proposals)
	e.rejectedCount = 0
	e.items = make([]*Item, 0, len(proposals))
	for _, p := range proposals {
		e.items = append(e.items, &Item{
			TemporaryID:   p.TemporaryID,
			FrontText:     p.FrontText,
			BackText:      p.BackText,
			OriginalFront: p.FrontText,
			OriginalBack:  p.BackText,
		})
	}
	e.state = StateReviewing
	return nil
}

// GenerationFailed moves generating → idle with the failure recorded. Begin
// may be called again to retry.
func (e *Engine) GenerationFailed(message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateGenerating {
		return &ErrWrongState{Op: "generation result", State: e.state}
	}
	e.state = StateIdle
	e.failed = true
	e.failureMessage = message
	return nil
}

// Toggle flips a pending item to accepted or back. Toggling twice restores
// the original decision.
func (e *Engine) Toggle(temporaryID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateReviewing {
		return &ErrWrongState{Op: "toggle", State: e.state}
	}
	it := e.findLocked(temporaryID)
	if it == nil {
		return ErrItemNotFound
	}
	it.Accepted = !it.Accepted
	return nil
}

// Edit replaces an item's text and forces it accepted. Whether the item
// counts as edited is derived by comparing against the generated text, so
// editing back to the original restores the unedited classification.
func (e *Engine) Edit(temporaryID, front, back string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateReviewing {
		return &ErrWrongState{Op: "edit", State: e.state}
	}
	it := e.findLocked(temporaryID)
	if it == nil {
		return ErrItemNotFound
	}
	if err := cards.ValidateSides(front, back); err != nil {
		return err
	}
	it.FrontText = front
	it.BackText = back
	it.Accepted = true
	return nil
}

// Reject removes an item permanently. There is no un-reject.
func (e *Engine) Reject(temporaryID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateReviewing {
		return &ErrWrongState{Op: "reject", State: e.state}
	}
	for i, it := range e.items {
		if it.TemporaryID == temporaryID {
			e.items = append(e.items[:i], e.items[i+1:]...)
			e.rejectedCount++
			return nil
		}
	}
	return ErrItemNotFound
}

// AcceptAll marks every remaining item accepted.
func (e *Engine) AcceptAll() error {
	return e.setAll("accept all", true)
}

// DeselectAll returns every remaining item to pending.
func (e *Engine) DeselectAll() error {
	return e.setAll("deselect all", false)
}

func (e *Engine) setAll(op string, accepted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateReviewing {
		return &ErrWrongState{Op: op, State: e.state}
	}
	for _, it := range e.items {
		it.Accepted = accepted
	}
	return nil
}

// BuildSave moves reviewing → saving and returns the payload for the batch
// endpoint. Items still pending are counted as rejected so the totals always
// add up to the generated count.
func (e *Engine) BuildSave() (*SavePlan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateReviewing {
		return nil, &ErrWrongState{Op: "save", State: e.state}
	}

	plan := &SavePlan{SessionID: e.sessionID, RejectedCount: e.rejectedCount}
	for _, it := range e.items {
		if !it.Accepted {
			plan.RejectedCount++
			continue
		}
		plan.Accepted = append(plan.Accepted, SaveCard{
			FrontText: it.FrontText,
			BackText:  it.BackText,
			Edited:    it.Edited(),
		})
	}
	if len(plan.Accepted) == 0 {
		return nil, ErrNoAccepted
	}

	e.state = StateSaving
	e.failed = false
	e.failureMessage = ""
	return plan, nil
}

// SaveSucceeded moves saving → saved and drops the round.
func (e *Engine) SaveSucceeded() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateSaving {
		return &ErrWrongState{Op: "save result", State: e.state}
	}
	e.state = StateSaved
	e.items = nil
	e.generatedCount = 0
	e.rejectedCount = 0
	e.sessionID = uuid.Nil
	return nil
}

// SaveFailed moves saving → reviewing with the failure recorded; every
// decision made so far is kept for the retry.
func (e *Engine) SaveFailed(message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateSaving {
		return &ErrWrongState{Op: "save result", State: e.state}
	}
	e.state = StateReviewing
	e.failed = true
	e.failureMessage = message
	return nil
}

// Discard abandons the current round from any state and returns to idle.
func (e *Engine) Discard() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = StateIdle
	e.failed = false
	e.failureMessage = ""
	e.items = nil
	e.generatedCount = 0
	e.rejectedCount = 0
	e.sessionID = uuid.Nil
}

// Dirty reports whether navigating away would lose an open review round:
// reviewing with at least one proposal still on the table.
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state == StateReviewing && len(e.items) > 0
}

func (e *Engine) findLocked(temporaryID string) *Item {
	for _, it := range e.items {
		if it.TemporaryID == temporaryID {
			return it
		}
	}
	return nil
}
