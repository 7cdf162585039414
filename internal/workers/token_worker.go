package workers

import (
	"context"
	"log"
	"time"
)

// TokenJournal lists and clears locally recorded dead tokens. Satisfied by
// database.DB.
type TokenJournal interface {
	PendingInvalidTokens(limit int) ([]string, error)
	MarkTokenCleared(token string) error
}

// TokenStore removes a dead token from the shared user documents.
// Satisfied by store.Client.
type TokenStore interface {
	ClearInvalidToken(ctx context.Context, token string) (int, error)
}

// TokenCleanupWorker sweeps FCM tokens that push delivery reported as
// permanently dead out of the user documents.
type TokenCleanupWorker struct {
	journal TokenJournal
	store   TokenStore
}

func NewTokenCleanupWorker(journal TokenJournal, store TokenStore) *TokenCleanupWorker {
	return &TokenCleanupWorker{journal: journal, store: store}
}

func (w *TokenCleanupWorker) Name() string            { return "token-cleanup" }
func (w *TokenCleanupWorker) Interval() time.Duration { return 10 * time.Minute }

func (w *TokenCleanupWorker) Run(ctx context.Context) error {
	tokens, err := w.journal.PendingInvalidTokens(50)
	if err != nil {
		return err
	}

	for _, token := range tokens {
		cleared, err := w.store.ClearInvalidToken(ctx, token)
		if err != nil {
			log.Printf("⚠️  Failed to clear token: %v", err)
			continue
		}
		if cleared > 0 {
			log.Printf("🧹 Cleared dead token from %d user document(s)", cleared)
		}
		if err := w.journal.MarkTokenCleared(token); err != nil {
			log.Printf("⚠️  Failed to mark token cleared: %v", err)
		}
	}

	return nil
}
