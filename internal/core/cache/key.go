package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Key joins normalized key parts. Empty parts are kept so positions stay
// meaningful.
func Key(parts ...string) string {
	return strings.Join(parts, "|")
}

// MapSignature returns a stable digest of a map: sorted "key:value" pairs
// joined by ";". Equal maps give equal signatures regardless of insertion
// order.
func MapSignature(m map[string]string) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(m[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}
