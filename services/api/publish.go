package api

import "context"

// Event subjects emitted by the API. The projector keeps per-user stats from
// these.
const (
	subjectSessionOpened    = "cards.sessions.opened"
	subjectSessionCompleted = "cards.sessions.completed"
	subjectCardsSaved       = "cards.flashcards.saved"
)

func (a *API) publishJSON(ctx context.Context, subject string, payload map[string]any) {
	if a.store.Bus == nil || subject == "" {
		return
	}
	if err := a.store.Bus.Publish(ctx, subject, payload); err != nil {
		a.log.Warn().Err(err).Str("subject", subject).Msg("event publish failed")
	}
}
