package prefs

import (
	"context"
	"sync"

	"github.com/srg/boks/internal/stream"
)

// MemoryStore keeps prefs in memory.
type MemoryStore struct {
	mu    sync.Mutex
	value *stream.Value[Prefs]
}

func NewMemoryStore(initial Prefs) *MemoryStore {
	return &MemoryStore{value: stream.NewValue(initial.Clone(), Equal)}
}

func (s *MemoryStore) Data(ctx context.Context) <-chan Prefs { return s.value.Subscribe(ctx) }

func (s *MemoryStore) Current() Prefs { return s.value.Get().Clone() }

func (s *MemoryStore) Update(ctx context.Context, fn func(Prefs) (Prefs, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.value.Get().Clone())
	if err != nil {
		return err
	}
	s.value.Set(next.Clone())
	return nil
}
