package ledger

import (
	"time"

	"github.com/google/uuid"
)

// idTimeLayout orders lexically the same way it orders chronologically.
const idTimeLayout = "20060102T150405.000000000"

// NewRecordID returns a run identifier that sorts lexically by creation
// time, with a random suffix to break ties between runs created in the
// same nanosecond.
func NewRecordID(now time.Time) string {
	return now.UTC().Format(idTimeLayout) + "Z-" + uuid.NewString()[:8]
}
