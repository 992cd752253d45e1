package services

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/zatekoja/medlogistics/backend/internal/domain/interval"
	"github.com/zatekoja/medlogistics/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

// keyedMutex hands out one mutex per key. An entry lives only while some
// caller holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock locks key and returns its unlock func
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		if m.refs--; m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size is the number of keys currently held or awaited
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// IndexSet keeps one interval index per resource in a bounded LRU cache. A
// missing or evicted index is rebuilt from the resource's open reservations,
// so eviction costs a reload, never correctness. Callers must hold the
// resource's lock while reading or mutating its index.
type IndexSet struct {
	reservations repositories.ReservationRepository
	cache        *lru.Cache[string, *interval.Index]
	locks        keyedMutex
}

// NewIndexSet creates an IndexSet holding at most size indexes
func NewIndexSet(reservations repositories.ReservationRepository, size int) (*IndexSet, error) {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, *interval.Index](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create index cache: %w", err)
	}
	return &IndexSet{reservations: reservations, cache: cache}, nil
}

// Lock serializes check-then-insert on one resource within this process
func (s *IndexSet) Lock(resourceID string) func() {
	return s.locks.Lock(resourceID)
}

// Get returns the resource's index, hydrating it on a miss
func (s *IndexSet) Get(ctx context.Context, resourceID string) (*interval.Index, error) {
	if ix, ok := s.cache.Get(resourceID); ok {
		return ix, nil
	}
	return s.Reload(ctx, resourceID)
}

// Reload rebuilds the resource's index from storage, replacing any cached copy.
// It is used after taking a cross-process lock, when other processes may have
// written since the cached copy was built.
func (s *IndexSet) Reload(ctx context.Context, resourceID string) (*interval.Index, error) {
	open, err := s.reservations.ListOpenByResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	ix := interval.New()
	for _, r := range open {
		if err := ix.Insert(interval.Entry{ID: r.ID, Window: r.Window, Status: string(r.Status)}); err != nil {
			return nil, apperrors.NewInternalError(fmt.Sprintf("failed to index reservation %s", r.ID), err)
		}
	}
	s.cache.Add(resourceID, ix)
	return ix, nil
}

// Evict drops the cached index of a resource
func (s *IndexSet) Evict(resourceID string) {
	s.cache.Remove(resourceID)
}

// Len returns the number of cached indexes
func (s *IndexSet) Len() int {
	return s.cache.Len()
}
