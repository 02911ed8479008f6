package store

import (
	"context"
	"sort"
	"sync"

	"github.com/threadscope/pkg/models"
)

// MemoryStore is an in-process Store for tests and offline corpus runs.
type MemoryStore struct {
	mu       sync.Mutex
	messages map[string]models.Message   // message ID -> message
	threads  map[string][]string         // anchor ID -> ordered reply IDs
	verdicts map[string]models.DriftVerdict
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string]models.Message),
		threads:  make(map[string][]string),
		verdicts: make(map[string]models.DriftVerdict),
	}
}

// AddMessage registers a corpus message.
func (s *MemoryStore) AddMessage(m models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ID] = m
}

// AddThread registers an anchor with ordered replies and a pending verdict.
func (s *MemoryStore) AddThread(anchor models.Message, replies ...models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[anchor.ID] = anchor
	ids := make([]string, 0, len(replies))
	for _, r := range replies {
		s.messages[r.ID] = r
		ids = append(ids, r.ID)
	}
	s.threads[anchor.ID] = ids
	s.verdicts[anchor.ID] = models.DriftVerdict{
		ThreadID: anchor.ID,
		Status:   models.StatusPending,
	}
}

func (s *MemoryStore) FetchPendingThreads(ctx context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, v := range s.verdicts {
		if v.Status == models.StatusPending {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.messages[ids[i]], s.messages[ids[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return ids[i] < ids[j]
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *MemoryStore) FetchThread(ctx context.Context, id string) (*models.ReplyThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	anchor, ok := s.messages[id]
	if !ok {
		return nil, ErrThreadNotFound
	}
	thread := &models.ReplyThread{Anchor: anchor}
	for _, rid := range s.threads[id] {
		thread.Replies = append(thread.Replies, s.messages[rid])
	}
	return thread, nil
}

func (s *MemoryStore) UpsertVerdict(ctx context.Context, id string, v models.DriftVerdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.ThreadID = id
	s.verdicts[id] = v
	return nil
}

func (s *MemoryStore) FetchVerdict(ctx context.Context, id string) (*models.DriftVerdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.verdicts[id]
	if !ok {
		return nil, ErrThreadNotFound
	}
	return &v, nil
}

func (s *MemoryStore) ListVerdicts(ctx context.Context, status models.VerdictStatus) ([]models.DriftVerdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.DriftVerdict, 0, len(s.verdicts))
	for _, v := range s.verdicts {
		if status == "" || v.Status == status {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreadID < out[j].ThreadID })
	return out, nil
}

func (s *MemoryStore) FetchCorpus(ctx context.Context, channelID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Message
	for _, m := range s.messages {
		if channelID == "" || m.ChannelID == channelID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
