package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Record layout. One record per bulk transaction; the root lives in RootField
// and every child or batch in its own attribute slot.
const (
	RecordKeyPrefix      = "outboundBulkTransaction_"
	RootField            = "bulkTransactionEntityState"
	IndividualItemPrefix = "individualItem_"
	BulkBatchPrefix      = "bulkBatch_"
)

var (
	ErrNotFound              = errors.New("statestore: not found")
	ErrRepositoryUnavailable = errors.New("Repository not ready")
	// ErrConflict is returned when an update kept losing to concurrent writers.
	ErrConflict = errors.New("statestore: concurrent update")
)

// Slot is the stored value of one root or attribute slot as seen by an
// UpdateFunc.
type Slot struct{ raw []byte }

func (s Slot) Exists() bool { return s.raw != nil }

// Decode decodes the slot into out, or returns ErrNotFound for an empty slot.
func (s Slot) Decode(out any) error {
	if s.raw == nil {
		return ErrNotFound
	}
	return decode("statestore.Slot", s.raw, out)
}

// UpdateFunc receives the current slot and returns the value to write. A nil
// value leaves the slot untouched. It may run more than once per update and
// must not call the repository.
type UpdateFunc func(current Slot) (any, error)

// Repository is the key/attribute store behind the bulk transaction aggregate.
// Values are JSON encoded by the repository; callers pass and receive plain
// structs.
type Repository interface {
	Init(ctx context.Context) error
	CanCall() bool

	// Load decodes the root of record id into out, or returns ErrNotFound.
	Load(ctx context.Context, id string, out any) error
	// Store upserts the root of record id. Attribute slots are left alone.
	Store(ctx context.Context, id string, root any) error

	GetAttribute(ctx context.Context, id, key string, out any) error
	// SetAttribute writes exactly one attribute slot.
	SetAttribute(ctx context.Context, id, key string, value any) error
	// Update and UpdateAttribute read one slot and write fn's result without
	// any other write to that slot landing in between.
	Update(ctx context.Context, id string, fn UpdateFunc) error
	UpdateAttribute(ctx context.Context, id, key string, fn UpdateFunc) error
	// GetAllAttributeKeys lists every attribute slot of record id except the root.
	GetAllAttributeKeys(ctx context.Context, id string) ([]string, error)

	Remove(ctx context.Context, id string) error
	// ListIDs enumerates the ids of every stored record.
	ListIDs(ctx context.Context) ([]string, error)

	Close() error
}

func IndividualItemKey(transferID string) string { return IndividualItemPrefix + transferID }
func BulkBatchKey(batchID string) string         { return BulkBatchPrefix + batchID }

// TransferIDFromKey returns the transfer id of an individualItem_ key.
func TransferIDFromKey(key string) (string, bool) {
	id, ok := strings.CutPrefix(key, IndividualItemPrefix)
	return id, ok && id != ""
}

// BatchIDFromKey returns the batch id of a bulkBatch_ key.
func BatchIDFromKey(key string) (string, bool) {
	id, ok := strings.CutPrefix(key, BulkBatchPrefix)
	return id, ok && id != ""
}

func validateID(op, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s: missing record id", op)
	}
	return nil
}

func validateKey(op, key string) error {
	if strings.TrimSpace(key) == "" || key == RootField {
		return fmt.Errorf("%s: invalid attribute key %q", op, key)
	}
	return nil
}

func encode(op string, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: encode: %w", op, err)
	}
	return raw, nil
}

func decode(op string, raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}
