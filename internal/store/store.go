// Package store is the persistence collaborator boundary. The core reads
// messages the ingestion service wrote and writes back drift verdicts; it
// owns no schema of its own.
package store

import (
	"context"
	"errors"

	"github.com/threadscope/pkg/models"
)

// ErrThreadNotFound is returned when a thread ID has no anchor message.
var ErrThreadNotFound = errors.New("thread not found")

// Store is the storage contract the drift scheduler and query API depend on.
type Store interface {
	// FetchPendingThreads returns up to limit thread IDs whose verdict is
	// still pending, oldest anchor first so old threads cannot starve.
	FetchPendingThreads(ctx context.Context, limit int) ([]string, error)

	// FetchThread returns the anchor and its replies ordered oldest first.
	FetchThread(ctx context.Context, id string) (*models.ReplyThread, error)

	// UpsertVerdict writes the verdict for a thread, replacing any prior row.
	UpsertVerdict(ctx context.Context, id string, v models.DriftVerdict) error

	// FetchVerdict reads the stored verdict for a thread.
	FetchVerdict(ctx context.Context, id string) (*models.DriftVerdict, error)

	// ListVerdicts returns verdicts in thread ID order. An empty status
	// returns every verdict; otherwise only those in that state.
	ListVerdicts(ctx context.Context, status models.VerdictStatus) ([]models.DriftVerdict, error)

	// FetchCorpus returns messages for the query path, oldest first.
	// channelID narrows the scope; empty means the whole corpus, and limit 0
	// means no bound.
	FetchCorpus(ctx context.Context, channelID string, limit int) ([]models.Message, error)
}
