// Package store is the persistent key-value contract the engine
// writes its snapshots through: signal buckets, the provider
// directory, classification records, the explanation cache and the
// seen-hosts map all live under stable string keys.
//
// The contract is deliberately thin: get and set of opaque blobs,
// eventually consistent, possibly slow. Callers treat every failure
// as transient and keep their in-memory view authoritative.
package store

import "context"

// Well-known keys. Consumers outside this module read these, so they
// are stable identifiers, not implementation detail.
const (
	KeySignalBuckets     = "signal-buckets"
	KeyProviderDirectory = "provider-directory"
	KeyServices          = "classified-services"
	KeyExplanationCache  = "explanation-cache"
	KeySeenHosts         = "seen-hosts"
)

// Store is the abstract key-value collaborator.
type Store interface {
	// Get returns the blob stored under key, or nil when absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set overwrites the blob under key.
	Set(ctx context.Context, key string, value []byte) error
	// Close releases any underlying resources.
	Close() error
}
