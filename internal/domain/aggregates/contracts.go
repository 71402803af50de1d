package aggregates

// WriteGranularity defines the unit a single aggregate write replaces in the store.
type WriteGranularity string

const (
	// WriteGranularityAttribute means every child mutation is one atomic write of
	// that child's attribute slot; the root record is rewritten on its own.
	WriteGranularityAttribute WriteGranularity = "attribute"
	// WriteGranularityRecord means the whole record is rewritten on every mutation.
	WriteGranularityRecord WriteGranularity = "record"
)

// ConcurrencyPolicy defines how concurrent writers to the same slot are reconciled.
type ConcurrencyPolicy string

const (
	// ConcurrencyLastWriterWins accepts the last write of a slot. Duplicate and
	// reordered callbacks are made safe by forward-only transitions instead.
	ConcurrencyLastWriterWins ConcurrencyPolicy = "last_writer_wins"
	// ConcurrencyCompareAndSet rejects writes whose expected version is stale.
	ConcurrencyCompareAndSet ConcurrencyPolicy = "compare_and_set"
)

// ReadPolicy defines how aggregate contracts should expose reads.
type ReadPolicy string

const (
	// ReadPolicyNoCache re-reads every child from the store on each call so a
	// handler never acts on a view older than the last persisted write.
	ReadPolicyNoCache ReadPolicy = "no_cache"
)

// Contract describes aggregate-level policy expectations.
type Contract struct {
	Name        string
	Granularity WriteGranularity
	Concurrency ConcurrencyPolicy
	ReadPolicy  ReadPolicy
	Notes       string
}

// Aggregate is the common marker for all aggregate implementations.
// Implementations should return a stable contract description.
type Aggregate interface {
	Contract() Contract
}

// RequiresAttributeWrites returns true when child mutations must never rewrite the whole record.
func (c Contract) RequiresAttributeWrites() bool {
	return c.Granularity == WriteGranularityAttribute
}

// ToleratesLostUpdates returns true when concurrent writers of one slot are not serialized.
func (c Contract) ToleratesLostUpdates() bool {
	return c.Concurrency == ConcurrencyLastWriterWins
}

var BulkTransactionAggregateContract = Contract{
	Name:        "Bulk.TransactionAggregate",
	Granularity: WriteGranularityAttribute,
	Concurrency: ConcurrencyLastWriterWins,
	ReadPolicy:  ReadPolicyNoCache,
	Notes: "Owns the bulk transaction root and its individual transfer and batch slots. " +
		"Root state and child states only move forward; version is bumped on every persisted write.",
}
