// Package store wraps the shared durable key/value service (§6) behind
// a narrow interface so the five pipeline components never import a
// transport library directly: hash-set-if-absent, hash-del, hash-get,
// hash-scan, hash-keys, scalar get/set, and publish.
package store

import "context"

// Store is the durable state store S of spec.md §3/§6. All operations
// are single-key atomic primitives; there is no multi-key transaction.
type Store interface {
	// HSetNX sets field in the hash at key only if it is absent,
	// returning whether the write happened. Used by the event tracker
	// to enqueue new_events without clobbering an existing entry.
	HSetNX(ctx context.Context, key, field, value string) (bool, error)
	// HSet unconditionally sets field in the hash at key.
	HSet(ctx context.Context, key, field, value string) error
	// HDel removes field from the hash at key. Deleting an absent
	// field is not an error.
	HDel(ctx context.Context, key, field string) error
	// HGet returns the value of field in the hash at key, and false if
	// it is absent.
	HGet(ctx context.Context, key, field string) (string, bool, error)
	// HGetAll returns the full hash at key.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// HKeys returns the field names of the hash at key.
	HKeys(ctx context.Context, key string) ([]string, error)
	// Get returns the scalar at key, and false if it is absent.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set unconditionally sets the scalar at key.
	Set(ctx context.Context, key, value string) error
	// Publish writes message to channel. Only required for integration
	// tests to observe the `events` channel (§6); no production
	// component subscribes.
	Publish(ctx context.Context, channel, message string) error
}

// Keys used by the pipeline, matching spec.md §3 and the rust original's
// async_redis_wrapper.rs constants.
const (
	KeyNewEvents             = "new_events"
	KeyPendingTransactions   = "pending_transactions"
	KeyTransactions          = "transactions"
	KeyEthTransactionCount   = "eth_transaction_count"
	KeyOptionsStartBlock     = "options:START_BLOCK"
	ChannelEvents            = "events"
)
