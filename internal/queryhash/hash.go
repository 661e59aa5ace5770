package queryhash

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// Hash returns the content fingerprint of query text: an md5 hex digest over
// the lowercased text with all whitespace runs collapsed to single spaces.
// Queries that differ only in formatting share a fingerprint and therefore
// share cached results.
func Hash(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
