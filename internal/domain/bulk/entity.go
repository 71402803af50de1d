package bulk

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Meta is the bookkeeping every persisted record carries.
type Meta struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
	Version   int    `json:"version"`
}

func newMeta(id string, now time.Time) Meta {
	ms := now.UnixMilli()
	return Meta{ID: id, CreatedAt: ms, UpdatedAt: ms, Version: 1}
}

// stateRecord is the state-holding capability every entity kind embeds.
type stateRecord[S any] struct {
	state S
}

// ExportState returns the plain record for storage.
func (r *stateRecord[S]) ExportState() S { return r.state }

// Touch marks the record as mutated; called right before it is persisted.
func (m *Meta) Touch(now time.Time) {
	m.UpdatedAt = now.UnixMilli()
	m.Version++
}

var transferNamespace = uuid.MustParse("1b4e28ba-2fa1-41d2-883f-0016d3cca427")

// TransferIDFor derives the id of the index-th transfer of a bulk transaction.
// Redelivered requests therefore map onto the same children.
func TransferIDFor(bulkID string, index int) string {
	return uuid.NewSHA1(transferNamespace, []byte(bulkID+"/"+strconv.Itoa(index))).String()
}
