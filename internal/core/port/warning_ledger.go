package port

import (
	"context"
	"time"
)

// WarningLedger deduplicates password-expiry warnings: at most one per
// account per expiry per day.
type WarningLedger interface {
	// MarkWarned records a warning for the account/expiry/day triple and
	// reports whether this call was the first within the dedup window.
	MarkWarned(ctx context.Context, accountID string, expiresAt, day time.Time) (bool, error)
}
