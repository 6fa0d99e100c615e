package usage

import "context"

// Store is the keyed accumulator plus the live-tail queue. The backing
// cache owns durability and expiry; callers hold no record state
// between calls.
type Store interface {
	// Get returns the record under key, or nil if the key does not
	// exist (or has expired).
	Get(ctx context.Context, key string) (*Record, error)

	// MergeUpsert folds an event into the record under the event's
	// composite key: counters are added onto the stored values,
	// identifying fields take the incoming event's values, and the
	// key's TTL is reset to the full retention window. Returns the
	// post-merge record.
	MergeUpsert(ctx context.Context, event *Event) (*Record, error)

	// ListAll enumerates every live record. The snapshot is weakly
	// consistent: keys expiring during the scan are silently skipped.
	ListAll(ctx context.Context) ([]*Record, error)

	// Publish appends a record to the live-tail queue. Delivery is
	// at-most-once per item.
	Publish(ctx context.Context, record *Record) error

	// Consume blocks until a published record is available or ctx is
	// cancelled. Each item is delivered to exactly one consumer.
	Consume(ctx context.Context) (*Record, error)
}
