package storage

import (
	"vostore/internal/storage/keys"
	"vostore/internal/store"
)

// Storage is the direct access handle. Every call runs in its own substrate
// transaction and is independently consistent.
type Storage struct {
	st store.Store
}

var _ Writer = (*Storage)(nil)

// New wraps an open substrate. Storage does not own st; close it separately.
func New(st store.Store) *Storage {
	return &Storage{st: st}
}

// Begin starts a writable transaction. The caller owns it and must either
// Commit or Rollback.
func (s *Storage) Begin() (*Transaction, error) {
	tx, err := s.st.Begin(true)
	if err != nil {
		return nil, NewError("begin", ErrBackend, 0, nil, err)
	}
	logger.Debug("transaction started")
	return &Transaction{tx: tx}, nil
}

func (s *Storage) GetRaw(table keys.TableKind, key []byte, fn func(value []byte, found bool) error) error {
	tx, err := s.st.Begin(false)
	if err != nil {
		return NewError("get", ErrBackend, table, key, err)
	}
	defer func() { _ = tx.Rollback() }()
	v := tx.Get(table.Bucket(), key)
	return fn(v, v != nil)
}

func (s *Storage) PutKV(key keys.TableKey, value []byte) error {
	return s.update("put", key, func(tx store.Tx, raw []byte) error {
		return tx.Put(key.Table().Bucket(), raw, value)
	})
}

func (s *Storage) DeleteKey(key keys.TableKey) error {
	return s.update("delete", key, func(tx store.Tx, raw []byte) error {
		return tx.Delete(key.Table().Bucket(), raw)
	})
}

func (s *Storage) update(op string, key keys.TableKey, fn func(tx store.Tx, raw []byte) error) error {
	raw := keys.Serialize(key)
	tx, err := s.st.Begin(true)
	if err != nil {
		return NewError(op, ErrBackend, key.Table(), raw, err)
	}
	if err := fn(tx, raw); err != nil {
		_ = tx.Rollback()
		return NewError(op, ErrBackend, key.Table(), raw, err)
	}
	if err := tx.Commit(); err != nil {
		return NewError(op, ErrBackend, key.Table(), raw, err)
	}
	return nil
}

// IteratorFrom pins a read-only snapshot for the iterator's lifetime.
// Writing through the same Storage while holding the iterator can stall if
// the substrate has to grow its memory map, so drain or Close it first.
func (s *Storage) IteratorFrom(scan keys.TableScan) (RawIterator, error) {
	tx, err := s.st.Begin(false)
	if err != nil {
		return nil, NewError("scan", ErrBackend, scan.Table, nil, err)
	}
	return newCursorIterator(tx.Cursor(scan.Table.Bucket()), scan, tx.Rollback, nil), nil
}
