package statestore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// MemoryStore is an in-process Repository for single-binary runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string][]byte
	ready   atomic.Bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]map[string][]byte{}}
}

func (s *MemoryStore) Init(context.Context) error {
	s.ready.Store(true)
	return nil
}

func (s *MemoryStore) CanCall() bool { return s != nil && s.ready.Load() }

func (s *MemoryStore) get(id, field string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	raw, ok := rec[field]
	return raw, ok
}

func (s *MemoryStore) put(id, field string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		rec = map[string][]byte{}
		s.records[id] = rec
	}
	rec[field] = raw
}

func (s *MemoryStore) Load(_ context.Context, id string, out any) error {
	const op = "statestore.Load"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	raw, ok := s.get(id, RootField)
	if !ok {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return decode(op, raw, out)
}

func (s *MemoryStore) Store(_ context.Context, id string, root any) error {
	const op = "statestore.Store"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	raw, err := encode(op, root)
	if err != nil {
		return err
	}
	s.put(id, RootField, raw)
	return nil
}

func (s *MemoryStore) GetAttribute(_ context.Context, id, key string, out any) error {
	const op = "statestore.GetAttribute"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	if err := validateKey(op, key); err != nil {
		return err
	}
	raw, ok := s.get(id, key)
	if !ok {
		return fmt.Errorf("%s %s/%s: %w", op, id, key, ErrNotFound)
	}
	return decode(op, raw, out)
}

func (s *MemoryStore) SetAttribute(_ context.Context, id, key string, value any) error {
	const op = "statestore.SetAttribute"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	if err := validateKey(op, key); err != nil {
		return err
	}
	raw, err := encode(op, value)
	if err != nil {
		return err
	}
	s.put(id, key, raw)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn UpdateFunc) error {
	const op = "statestore.Update"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	return s.update(op, id, RootField, fn)
}

func (s *MemoryStore) UpdateAttribute(_ context.Context, id, key string, fn UpdateFunc) error {
	const op = "statestore.UpdateAttribute"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	if err := validateKey(op, key); err != nil {
		return err
	}
	return s.update(op, id, key, fn)
}

// update holds the write lock across fn, so updates of any slot are serialized.
func (s *MemoryStore) update(op, id, field string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(Slot{raw: s.records[id][field]})
	if err != nil || next == nil {
		return err
	}
	raw, err := encode(op, next)
	if err != nil {
		return err
	}
	rec, ok := s.records[id]
	if !ok {
		rec = map[string][]byte{}
		s.records[id] = rec
	}
	rec[field] = raw
	return nil
}

func (s *MemoryStore) GetAllAttributeKeys(_ context.Context, id string) ([]string, error) {
	const op = "statestore.GetAllAttributeKeys"
	if !s.CanCall() {
		return nil, ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.records[id]))
	for k := range s.records[id] {
		if k != RootField {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Remove(_ context.Context, id string) error {
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) ListIDs(context.Context) ([]string, error) {
	if !s.CanCall() {
		return nil, ErrRepositoryUnavailable
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Close() error {
	if s != nil {
		s.ready.Store(false)
	}
	return nil
}
