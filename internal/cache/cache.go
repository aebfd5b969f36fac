// Package cache provides short-lived TTL caching for provider availability
// probes and already-processed evidence hashes. The claim ledger owns all
// durable state; nothing here survives a restart.
package cache

import "time"

// Cache defines the interface for TTL caching.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// AvailabilityKey builds the cache key for a provider availability probe.
func AvailabilityKey(provider string) string {
	return "competia:v1:avail:" + provider
}

// EvidenceKey builds the cache key for a processed evidence content hash.
func EvidenceKey(contentHash string) string {
	return "competia:v1:evidence:" + contentHash
}
