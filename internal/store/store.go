package store

// Store is an ordered, bucketed key-value substrate. Keys inside a bucket are
// kept in byte order, and every bucket is an isolated namespace.
// The initial implementation uses bbolt; the interface allows swapping
// to Badger, Pebble, etc. without touching the table layer.
type Store interface {
	// Get returns an owned copy of the value, or nil if the key is absent.
	Get(bucket, key []byte) ([]byte, error)
	// Set writes raw bytes, bypassing any table codec. Meant for tooling
	// and tests.
	Set(bucket, key, value []byte) error
	Delete(bucket, key []byte) error
	// ForEach visits every pair of a bucket in key order. Slices passed to
	// fn are only valid for the duration of the call.
	ForEach(bucket []byte, fn func(key, value []byte) error) error
	// Begin starts a transaction. Read-only transactions observe a
	// point-in-time snapshot; a writable one sees its own writes.
	Begin(writable bool) (Tx, error)
	Close() error
}

// Tx is a substrate transaction. Slices returned by Get and by cursors are
// borrowed from the transaction and must not be retained past it.
type Tx interface {
	Writable() bool
	Get(bucket, key []byte) []byte
	Put(bucket, key, value []byte) error
	Delete(bucket, key []byte) error
	// Cursor returns nil if the bucket does not exist.
	Cursor(bucket []byte) Cursor
	Commit() error
	// Rollback is safe to call after Commit or a previous Rollback.
	Rollback() error
}

// Cursor walks a bucket in ascending key order. A nil key means the cursor
// ran off the end.
type Cursor interface {
	First() (key, value []byte)
	Seek(seek []byte) (key, value []byte)
	Next() (key, value []byte)
}
