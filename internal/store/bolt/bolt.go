package bolt

import (
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"vostore/internal/store"
)

// Options tune how the database file is opened.
type Options struct {
	// Timeout bounds the wait for the file lock. Zero waits forever.
	Timeout time.Duration
	// NoSync skips fsync after commit. Only for tests and throwaway data.
	NoSync bool
	// InitialMmapSize pre-sizes the memory map. Writers must remap when the
	// file outgrows it, which waits for every open read transaction.
	InitialMmapSize int
}

// Store implements store.Store using bbolt (embedded B+ tree).
type Store struct {
	db *bolt.DB
}

var _ store.Store = (*Store)(nil)

// Open creates or opens a bbolt database at the given path.
func Open(path string, opts Options) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout:         opts.Timeout,
		NoSync:          opts.NoSync,
		InitialMmapSize: opts.InitialMmapSize,
	})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}
	return &Store{db: db}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

func (s *Store) Get(bucket, key []byte) ([]byte, error) {
	var val []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		v := b.Get(key)
		if v != nil {
			val = make([]byte, len(v))
			copy(val, v)
		}
		return nil
	})
	return val, err
}

func (s *Store) Set(bucket, key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
		return b.Put(key, value)
	})
}

func (s *Store) Delete(bucket, key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		return b.Delete(key)
	})
}

func (s *Store) ForEach(bucket []byte, fn func(key, value []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(fn)
	})
}

func (s *Store) Begin(writable bool) (store.Tx, error) {
	btx, err := s.db.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("beginning bolt tx: %w", err)
	}
	return &Tx{btx: btx}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Tx wraps a bbolt transaction. Buckets are created lazily on first write.
type Tx struct {
	btx *bolt.Tx
}

func (tx *Tx) Writable() bool { return tx.btx.Writable() }

func (tx *Tx) Get(bucket, key []byte) []byte {
	b := tx.btx.Bucket(bucket)
	if b == nil {
		return nil
	}
	return b.Get(key)
}

func (tx *Tx) Put(bucket, key, value []byte) error {
	b, err := tx.btx.CreateBucketIfNotExists(bucket)
	if err != nil {
		return fmt.Errorf("creating bucket: %w", err)
	}
	return b.Put(key, value)
}

func (tx *Tx) Delete(bucket, key []byte) error {
	b := tx.btx.Bucket(bucket)
	if b == nil {
		return nil
	}
	return b.Delete(key)
}

func (tx *Tx) Cursor(bucket []byte) store.Cursor {
	b := tx.btx.Bucket(bucket)
	if b == nil {
		return nil
	}
	return b.Cursor()
}

func (tx *Tx) Commit() error { return tx.btx.Commit() }

func (tx *Tx) Rollback() error {
	err := tx.btx.Rollback()
	if errors.Is(err, bolt.ErrTxClosed) {
		return nil
	}
	return err
}
