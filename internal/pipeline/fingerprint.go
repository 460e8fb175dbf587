package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/rawblock/babel-engine/pkg/models"
)

// Fingerprint digests everything that determines a search's output into a
// stable cache key: the normalized query, the result cap, the mode, the
// score cutoff, and the config version. Two requests with the same
// fingerprint are interchangeable within the cache TTL.
func Fingerprint(normalizedQuery string, maxResults int, mode models.SearchMode, minScore float64, configVersion string) string {
	material := fmt.Sprintf("%s|%d|%s|%.6f|%s", normalizedQuery, maxResults, mode, minScore, configVersion)
	h := sha256.Sum256([]byte(material))
	return hex.EncodeToString(h[:])
}
