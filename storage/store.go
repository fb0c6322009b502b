// Package storage defines the persistent key-value store boundary. The
// store is shared with other app subsystems, so consumers must only touch
// keys in their own namespace; the documented exception is the full Clear
// fallback during sign-out teardown.
package storage

// Store is a durable, process-surviving map of opaque string pairs.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
	// Keys returns every key currently stored, across all namespaces.
	Keys() ([]string, error)
	MultiRemove(keys []string) error
	// Clear removes everything, including keys owned by other subsystems.
	Clear() error
}
