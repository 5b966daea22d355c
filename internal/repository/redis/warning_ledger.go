package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/helmhq/identity-service/internal/core/port"
)

const (
	defaultWarningPrefix = "password_warning"
	warningDedupWindow   = 24 * time.Hour
)

// WarningLedger deduplicates password-expiry warnings in Redis. The key is
// the account/expiry/day triple; SETNX with a 24h TTL guarantees at most one
// warning per window even when sweeps overlap.
type WarningLedger struct {
	client *red.Client
	prefix string
}

// NewWarningLedger constructs a ledger with the provided Redis client and key prefix.
func NewWarningLedger(client *red.Client, keyPrefix string) *WarningLedger {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultWarningPrefix
	}

	return &WarningLedger{client: client, prefix: prefix}
}

// MarkWarned records a warning and reports whether this call was the first
// within the dedup window.
func (l *WarningLedger) MarkWarned(ctx context.Context, accountID string, expiresAt, day time.Time) (bool, error) {
	key := l.key(accountID, expiresAt, day)

	first, err := l.client.SetNX(ctx, key, day.UTC().Format(time.RFC3339), warningDedupWindow).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}

	return first, nil
}

func (l *WarningLedger) key(accountID string, expiresAt, day time.Time) string {
	return fmt.Sprintf("%s:%s:%d:%s", l.prefix, accountID, expiresAt.UTC().Unix(), day.UTC().Format("2006-01-02"))
}

var _ port.WarningLedger = (*WarningLedger)(nil)
