// Package storage gives tables one access contract over the substrate,
// whether they run directly against it or inside a transaction.
//
// Read capability (Reader) and write capability (Writer) are separate
// interfaces: code holding only a Reader cannot mutate.
//
// No locking happens here. The runtime guarantees a single writer per
// partition.
package storage

import (
	"vostore/internal/logging"
	"vostore/internal/storage/keys"
)

var logger = logging.For("storage")

// Reader is the read-only half of the access contract.
type Reader interface {
	// GetRaw looks up one key and calls fn exactly once. When the key is
	// absent fn gets (nil, false). value is only valid during fn. Errors
	// returned by fn are passed through unchanged.
	GetRaw(table keys.TableKind, key []byte, fn func(value []byte, found bool) error) error

	// IteratorFrom opens an ascending iterator over the scan's byte range.
	// The caller must Close it.
	IteratorFrom(scan keys.TableScan) (RawIterator, error)
}

// Writer adds mutation on top of Reader. Writes are visible to later reads
// through the same handle.
type Writer interface {
	Reader

	// PutKV inserts or replaces the value stored under key.
	PutKV(key keys.TableKey, value []byte) error

	// DeleteKey removes key. Deleting an absent key is a no-op.
	DeleteKey(key keys.TableKey) error
}

// GetBlocking is the typed point lookup. decode turns the raw value into T,
// and it also runs for an absent key, which is a normal state that tables
// usually map to a default.
//
// The call blocks the calling goroutine until the read completes. Only that
// goroutine waits: the Go scheduler moves other goroutines off a thread
// stuck in I/O.
func GetBlocking[T any](r Reader, key keys.TableKey, decode func(value []byte, found bool) (T, error)) (T, error) {
	var out T
	err := r.GetRaw(key.Table(), keys.Serialize(key), func(value []byte, found bool) error {
		v, err := decode(value, found)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
