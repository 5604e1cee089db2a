package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// ContentSignature builds a synthetic source-event-id for alerts whose
// identity is a computed condition rather than a discrete event ("this
// repository currently has these N risk findings").
//
// The signature is stable under finding order and whitespace differences:
// findings are normalized, sorted, and hashed. A non-zero bucket appends a
// calendar-day suffix so the same unresolved condition re-alerts once per
// day instead of never again; two different finding sets always produce
// independent signatures regardless of bucket.
func ContentSignature(findings []string, bucket time.Time) string {
	normalized := make([]string, 0, len(findings))
	for _, f := range findings {
		f = strings.ToLower(strings.Join(strings.Fields(f), " "))
		if f == "" {
			continue
		}
		normalized = append(normalized, f)
	}
	sort.Strings(normalized)

	sum := sha256.Sum256([]byte(strings.Join(normalized, "\n")))
	sig := hex.EncodeToString(sum[:])[:16]

	if bucket.IsZero() {
		return sig
	}
	return sig + ":" + bucket.UTC().Format("2006-01-02")
}
