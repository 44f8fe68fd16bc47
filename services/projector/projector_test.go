package projector

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tenxcards/pkg/testutil"
)

func newTestProjector(t *testing.T) *Projector {
	t.Helper()
	db := testutil.OpenDB(t, &userStatsModel{}, &usageEventModel{})
	// Handlers are exercised directly; no bus connection is needed.
	return &Projector{orm: db, log: zerolog.Nop()}
}

func payload(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestEventFold(t *testing.T) {
	p := newTestProjector(t)
	ctx := context.Background()
	userID := uuid.New()

	open := payload(t, sessionOpenedEvent{SessionID: uuid.New(), UserID: userID})
	if err := p.handleSessionOpened(ctx, open); err != nil {
		t.Fatalf("opened: %v", err)
	}
	if err := p.handleSessionOpened(ctx, payload(t, sessionOpenedEvent{SessionID: uuid.New(), UserID: userID})); err != nil {
		t.Fatalf("opened again: %v", err)
	}

	done := payload(t, sessionCompletedEvent{SessionID: uuid.New(), UserID: userID, Rejected: 3})
	if err := p.handleSessionCompleted(ctx, done); err != nil {
		t.Fatalf("completed: %v", err)
	}

	saved := payload(t, cardsSavedEvent{UserID: userID, CardIDs: []uuid.UUID{uuid.New(), uuid.New()}})
	if err := p.handleCardsSaved(ctx, saved); err != nil {
		t.Fatalf("saved: %v", err)
	}

	opened, completed, savedCount, rejected, err := p.Stats(ctx, userID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if opened != 2 || completed != 1 || savedCount != 2 || rejected != 3 {
		t.Fatalf("stats = %d/%d/%d/%d, want 2/1/2/3", opened, completed, savedCount, rejected)
	}

	events, err := p.Journal(ctx, userID, 10)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("journal has %d events, want 4", len(events))
	}
	if events[0].Subject != cardsSavedSubject {
		t.Fatalf("newest journal subject = %q, want %q", events[0].Subject, cardsSavedSubject)
	}
	if events[0].Payload["user_id"] != userID.String() {
		t.Fatalf("journal payload user_id = %v", events[0].Payload["user_id"])
	}
}

func TestEventValidation(t *testing.T) {
	p := newTestProjector(t)
	ctx := context.Background()

	if err := p.handleSessionOpened(ctx, []byte("not json")); err == nil {
		t.Fatal("malformed payload should error for redelivery")
	}
	if err := p.handleSessionOpened(ctx, payload(t, sessionOpenedEvent{SessionID: uuid.New()})); err == nil {
		t.Fatal("missing user_id should error")
	}

	// An empty card list is a no-op, not an error.
	if err := p.handleCardsSaved(ctx, payload(t, cardsSavedEvent{UserID: uuid.New()})); err != nil {
		t.Fatalf("empty card list: %v", err)
	}
}

func TestStatsForUnknownUser(t *testing.T) {
	p := newTestProjector(t)
	opened, completed, saved, rejected, err := p.Stats(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if opened+completed+saved+rejected != 0 {
		t.Fatal("unknown user should have zeroed stats")
	}
}
