// Package cache memoizes pure computations such as passage classification.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores opaque values under string keys with a per-entry TTL
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
	Len() int
}

// CacheKey derives a fixed-size key from a namespace and the input it memoizes
func CacheKey(namespace, input string) string {
	hash := sha256.Sum256([]byte(input))
	return "epimap:v1:" + namespace + ":" + hex.EncodeToString(hash[:])
}
