package util

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint returns a deterministic short hash over parts, independent of
// their order. Parts are expected in "name=value" form.
func Fingerprint(prefix string, parts []string) string {
	s := make([]string, len(parts))
	copy(s, parts)
	sort.Strings(s)
	joined := strings.Join(s, "\x00")
	sum := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("%s:%x", prefix, sum)[:len(prefix)+1+16] // prefix + ":" + first 16 hex chars
}
