package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
)

// DedupeWindowSeconds is the bucket width: duplicates within this window
// sharing session + type + file-path are suppressed.
const DedupeWindowSeconds = 5 * 60

// ErrDedupeInProgress signals contention claiming a dedupe bucket; treated
// as retryable by RetryWithBackoff — a claim-before-side-effect table keyed
// on the dedupe key rather than an idempotency token.
var ErrDedupeInProgress = errors.New("dedupe claim in progress")

// DedupeKey returns the 16-byte-truncated sha256 of session+type+path and
// the 5-minute bucket the given unix timestamp falls in.
func DedupeKey(sessionID, obsType, filePath string, unixSeconds int64) (key string, window int64) {
	h := sha256.Sum256([]byte(sessionID + "\x00" + obsType + "\x00" + filePath))
	window = (unixSeconds / DedupeWindowSeconds) * DedupeWindowSeconds
	return hex.EncodeToString(h[:16]), window
}

// ClaimDedupe attempts to claim (key, window) inside tx. Returns
// duplicate=true if another observation already claimed this bucket — the
// caller (InsertObservation) then applies its read-like skip rule.
func ClaimDedupe(ctx context.Context, tx *sql.Tx, key string, window int64) (duplicate bool, err error) {
	_, err = tx.ExecContext(ctx, `
		INSERT INTO dedupe_claims (dedupe_key, window_start)
		VALUES (?, ?)
	`, key, window)
	if err == nil {
		return false, nil
	}
	if IsUniqueConstraintErr(err) {
		return true, nil
	}
	return false, fmt.Errorf("claim dedupe key: %w", err)
}
