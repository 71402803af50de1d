package aggregates

import (
	"strings"

	"github.com/yungbote/bulkflow/internal/domain/bulk"
)

// RequireStatusAllowed validates current status against allowed values.
func RequireStatusAllowed(current string, allowed ...string) error {
	current = strings.TrimSpace(current)
	if len(allowed) == 0 {
		return ValidationError("allowed statuses cannot be empty")
	}
	for _, s := range allowed {
		if strings.EqualFold(current, strings.TrimSpace(s)) {
			return nil
		}
	}
	return ConflictError("status " + current + " not allowed")
}

// RequireBatchMember rejects results addressed to a transfer the batch never contained.
func RequireBatchMember(batch *bulk.BulkBatchEntity, transferID string) error {
	for _, id := range batch.IndividualTransferIDs() {
		if id == transferID {
			return nil
		}
	}
	return InvariantError("transfer " + transferID + " is not part of batch " + batch.ID())
}

// transferSuperseded reports whether the stored child has moved past next, or
// settled on another outcome of the same phase.
func transferSuperseded(stored, next bulk.IndividualTransferInternalState) bool {
	return stored.Rank() > next.Rank() || (stored.Rank() == next.Rank() && stored != next)
}

func batchSuperseded(stored, next bulk.BulkBatchInternalState) bool {
	return stored.Rank() > next.Rank() || (stored.Rank() == next.Rank() && stored != next)
}
