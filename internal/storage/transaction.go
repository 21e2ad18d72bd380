package storage

import (
	"vostore/internal/storage/keys"
	"vostore/internal/store"
)

// Transaction is the transactional access handle. Reads observe the
// transaction's snapshot plus its own writes. Nothing is durable until the
// owner calls Commit; Rollback discards all buffered writes at once.
//
// A Transaction is not safe for concurrent use.
type Transaction struct {
	tx   store.Tx
	done bool
}

var _ Writer = (*Transaction)(nil)

func (t *Transaction) GetRaw(table keys.TableKind, key []byte, fn func(value []byte, found bool) error) error {
	if t.done {
		return NewError("get", ErrTxDone, table, key, nil)
	}
	v := t.tx.Get(table.Bucket(), key)
	return fn(v, v != nil)
}

func (t *Transaction) PutKV(key keys.TableKey, value []byte) error {
	raw := keys.Serialize(key)
	if t.done {
		return NewError("put", ErrTxDone, key.Table(), raw, nil)
	}
	if err := t.tx.Put(key.Table().Bucket(), raw, value); err != nil {
		return NewError("put", ErrBackend, key.Table(), raw, err)
	}
	return nil
}

func (t *Transaction) DeleteKey(key keys.TableKey) error {
	raw := keys.Serialize(key)
	if t.done {
		return NewError("delete", ErrTxDone, key.Table(), raw, nil)
	}
	if err := t.tx.Delete(key.Table().Bucket(), raw); err != nil {
		return NewError("delete", ErrBackend, key.Table(), raw, err)
	}
	return nil
}

// IteratorFrom iterates inside the transaction. Closing the iterator leaves
// the transaction open. Once the transaction ends the iterator stops and
// its Err reports ErrTxDone.
func (t *Transaction) IteratorFrom(scan keys.TableScan) (RawIterator, error) {
	if t.done {
		return nil, NewError("scan", ErrTxDone, scan.Table, nil, nil)
	}
	return newCursorIterator(t.tx.Cursor(scan.Table.Bucket()), scan, nil, t.alive), nil
}

func (t *Transaction) alive() bool { return !t.done }

// Commit makes the transaction's writes durable.
func (t *Transaction) Commit() error {
	if t.done {
		return NewError("commit", ErrTxDone, 0, nil, nil)
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return NewError("commit", ErrBackend, 0, nil, err)
	}
	logger.Debug("transaction committed")
	return nil
}

// Rollback discards the transaction. It is a no-op after Commit or a
// previous Rollback, so it can always be deferred.
func (t *Transaction) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		return NewError("rollback", ErrBackend, 0, nil, err)
	}
	logger.Debug("transaction rolled back")
	return nil
}
