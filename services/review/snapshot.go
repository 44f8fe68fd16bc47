package review

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SnapshotTTL bounds how long an interrupted review round stays recoverable.
const SnapshotTTL = time.Hour

// SnapshotItem is one persisted review item.
type SnapshotItem struct {
	TemporaryID   string `json:"temporary_id"`
	FrontText     string `json:"front_text"`
	BackText      string `json:"back_text"`
	OriginalFront string `json:"original_front"`
	OriginalBack  string `json:"original_back"`
	Accepted      bool   `json:"accepted"`
}

// Snapshot is a persisted review round.
type Snapshot struct {
	SessionID      uuid.UUID      `json:"session_id"`
	GeneratedCount int            `json:"generated_count"`
	RejectedCount  int            `json:"rejected_count"`
	Items          []SnapshotItem `json:"items"`
	SavedAt        time.Time      `json:"saved_at"`
}

// SnapshotStore persists at most one review snapshot.
type SnapshotStore interface {
	// Load returns the stored snapshot, or nil when none exists.
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Clear(ctx context.Context) error
}

// Snapshot persists the current review round. Only a round under review is
// worth keeping; in any other state this is a no-op.
func (e *Engine) Snapshot(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store == nil || e.state != StateReviewing {
		return nil
	}

	snap := &Snapshot{
		SessionID:      e.sessionID,
		GeneratedCount: e.generatedCount,
		RejectedCount:  e.rejectedCount,
		Items:          make([]SnapshotItem, len(e.items)),
		SavedAt:        e.now().UTC(),
	}
	for i, it := range e.items {
		snap.Items[i] = SnapshotItem{
			TemporaryID:   it.TemporaryID,
			FrontText:     it.FrontText,
			BackText:      it.BackText,
			OriginalFront: it.OriginalFront,
			OriginalBack:  it.OriginalBack,
			Accepted:      it.Accepted,
		}
	}
	return e.store.Save(ctx, snap)
}

// Restore offers an interrupted round back. It returns true and enters
// reviewing when a fresh snapshot exists; a snapshot older than SnapshotTTL
// is cleared and never offered. Restore only applies to an idle engine.
func (e *Engine) Restore(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store == nil || e.state != StateIdle {
		return false, nil
	}

	snap, err := e.store.Load(ctx)
	if err != nil {
		return false, err
	}
	if snap == nil {
		return false, nil
	}
	if e.now().Sub(snap.SavedAt) > SnapshotTTL {
		if err := e.store.Clear(ctx); err != nil {
			return false, err
		}
		return false, nil
	}

	e.sessionID = snap.SessionID
	e.generatedCount = snap.GeneratedCount
	e.rejectedCount = snap.RejectedCount
	e.items = make([]*Item, len(snap.Items))
	for i, it := range snap.Items {
		e.items[i] = &Item{
			TemporaryID:   it.TemporaryID,
			FrontText:     it.FrontText,
			BackText:      it.BackText,
			OriginalFront: it.OriginalFront,
			OriginalBack:  it.OriginalBack,
			Accepted:      it.Accepted,
		}
	}
	e.state = StateReviewing
	e.failed = false
	e.failureMessage = ""
	return true, nil
}

// ClearSnapshot drops any persisted round, typically after a successful save
// or an explicit discard.
func (e *Engine) ClearSnapshot(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store == nil {
		return nil
	}
	return e.store.Clear(ctx)
}

// MemoryStore is an in-process SnapshotStore.
type MemoryStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, nil
	}
	copied := *m.snap
	copied.Items = append([]SnapshotItem(nil), m.snap.Items...)
	return &copied, nil
}

func (m *MemoryStore) Save(ctx context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *snap
	copied.Items = append([]SnapshotItem(nil), snap.Items...)
	m.snap = &copied
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
	return nil
}
