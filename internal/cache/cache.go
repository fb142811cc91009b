package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores answered questions so identical requests skip the provider.
type Cache interface {
	// GetAnswer retrieves a cached answer by key. Returns nil on miss.
	GetAnswer(ctx context.Context, key string) (*Answer, error)

	// SetAnswer stores an answer with TTL.
	SetAnswer(ctx context.Context, key string, ans *Answer, ttl time.Duration) error

	// Close closes the cache connection.
	Close() error
}

// Answer is a cached provider response.
type Answer struct {
	Answer   string `json:"answer"`
	Provider string `json:"provider"`
}

// Key derives a deterministic cache key from everything that influences the
// provider's output: provider name, question, table payload, and context.
func Key(provider, question, tableJSON, context string) string {
	h := sha256.New()
	for _, part := range []string{provider, question, tableJSON, context} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
