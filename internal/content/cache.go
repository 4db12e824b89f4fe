package content

import "context"

// CacheKey derives the cache slot for a question-set payload. Entries are
// keyed by source URL, not by quiz ID, so two quizzes sharing a URL alias to
// the same slot.
func CacheKey(sourceURL string) string {
	return "quiz_cache_" + sourceURL
}

// Cache persists question-set payloads keyed by source URL. Writes are
// last-write-wins with no versioning; readers must tolerate payloads written
// by an older schema.
type Cache interface {
	// Get returns the payload and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set overwrites any prior payload under key.
	Set(ctx context.Context, key string, payload []byte) error
}
