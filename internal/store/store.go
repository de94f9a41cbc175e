package store

import "context"

// Namespaced key→JSON-blob persistence consumed by the detectors.
//
// The in-memory view held by each detector is always authoritative for
// the running process; the store is a best-effort checkpoint so ledgers
// survive a restart. Write failures are logged by callers and never
// fail the decision already made.

// Namespaces used by the engine.
const (
	NSIPActivity = "ip_activity"  // rolling 24h referral ledger, key = ip
	NSIPRecords  = "ip_records"   // long-lived per-IP record, key = ip
	NSBlocklist  = "ip_blocklist" // whole blocklist map under KeyBlocklist
	NSCooldowns  = "cooldowns"    // per-actor last-play timestamp, key = actor id
)

// KeyBlocklist is the single key the block map is checkpointed under.
const KeyBlocklist = "entries"

// KV is the persistence collaborator. Values are JSON blobs; Read
// reports whether the key existed. Implementations must be safe for
// concurrent use.
type KV interface {
	// Read unmarshals the stored value into out and reports whether the
	// key was present. A missing key is not an error.
	Read(ctx context.Context, namespace, key string, out any) (bool, error)

	// Write marshals value and stores it under namespace/key.
	Write(ctx context.Context, namespace, key string, value any) error

	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, namespace, key string) error

	// Backend names the active backend ("postgres", "leveldb", "memory").
	Backend() string

	// Close releases backend resources.
	Close() error
}
