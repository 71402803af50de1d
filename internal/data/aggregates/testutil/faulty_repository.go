package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/yungbote/bulkflow/internal/data/statestore"
)

// FaultyRepository wraps a Repository and injects write failures for
// aggregate and handler tests without touching a real store.
type FaultyRepository struct {
	statestore.Repository

	mu sync.Mutex

	// FailSetAttribute fails every SetAttribute whose key contains
	// FailKeyContains (or every call when it is empty).
	FailSetAttribute error
	FailKeyContains  string
	FailStore        error
	Unavailable      bool

	StoreCalls        int
	SetAttributeCalls int
	WrittenKeys       []string
}

var _ statestore.Repository = (*FaultyRepository)(nil)

func NewFaultyRepository(inner statestore.Repository) *FaultyRepository {
	return &FaultyRepository{Repository: inner}
}

func (r *FaultyRepository) CanCall() bool {
	r.mu.Lock()
	down := r.Unavailable
	r.mu.Unlock()
	return !down && r.Repository.CanCall()
}

func (r *FaultyRepository) Store(ctx context.Context, id string, root any) error {
	r.mu.Lock()
	r.StoreCalls++
	fail := r.FailStore
	r.mu.Unlock()
	if fail != nil {
		return fail
	}
	return r.Repository.Store(ctx, id, root)
}

func (r *FaultyRepository) SetAttribute(ctx context.Context, id, key string, value any) error {
	r.mu.Lock()
	r.SetAttributeCalls++
	fail := r.FailSetAttribute
	match := r.FailKeyContains == "" || strings.Contains(key, r.FailKeyContains)
	if fail == nil || !match {
		r.WrittenKeys = append(r.WrittenKeys, key)
	}
	r.mu.Unlock()
	if fail != nil && match {
		return fail
	}
	return r.Repository.SetAttribute(ctx, id, key, value)
}

func (r *FaultyRepository) Update(ctx context.Context, id string, fn statestore.UpdateFunc) error {
	r.mu.Lock()
	r.StoreCalls++
	fail := r.FailStore
	r.mu.Unlock()
	if fail != nil {
		return fail
	}
	return r.Repository.Update(ctx, id, fn)
}

// UpdateAttribute counts and fails like SetAttribute.
func (r *FaultyRepository) UpdateAttribute(ctx context.Context, id, key string, fn statestore.UpdateFunc) error {
	r.mu.Lock()
	r.SetAttributeCalls++
	fail := r.FailSetAttribute
	match := r.FailKeyContains == "" || strings.Contains(key, r.FailKeyContains)
	if fail == nil || !match {
		r.WrittenKeys = append(r.WrittenKeys, key)
	}
	r.mu.Unlock()
	if fail != nil && match {
		return fail
	}
	return r.Repository.UpdateAttribute(ctx, id, key, fn)
}

// Heal clears every injected failure.
func (r *FaultyRepository) Heal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FailSetAttribute = nil
	r.FailKeyContains = ""
	r.FailStore = nil
	r.Unavailable = false
}

func (r *FaultyRepository) ResetCounts() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StoreCalls = 0
	r.SetAttributeCalls = 0
	r.WrittenKeys = nil
}
