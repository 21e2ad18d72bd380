package storage

import (
	"bytes"
	"iter"

	"vostore/internal/storage/keys"
	"vostore/internal/store"
)

// RawIterator walks key/value pairs in ascending key order. Key and Value
// are borrowed from the substrate and are only valid until the next call to
// Next or Close.
type RawIterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}

// cursorIterator bounds a substrate cursor to a TableScan.
type cursorIterator struct {
	cursor  store.Cursor
	scan    keys.TableScan
	release func() error
	// alive reports whether the owning transaction is still open. Nil for
	// iterators that own their snapshot.
	alive func() bool

	k, v    []byte
	err     error
	started bool
	done    bool
}

func newCursorIterator(c store.Cursor, scan keys.TableScan, release func() error, alive func() bool) *cursorIterator {
	return &cursorIterator{cursor: c, scan: scan, release: release, alive: alive}
}

func (it *cursorIterator) Next() bool {
	if it.done {
		return false
	}
	if it.alive != nil && !it.alive() {
		it.done = true
		it.k, it.v = nil, nil
		it.err = NewError("scan", ErrTxDone, it.scan.Table, nil, nil)
		return false
	}
	if it.cursor == nil {
		// Table was never written to.
		it.done = true
		return false
	}
	var k, v []byte
	if !it.started {
		it.started = true
		if it.scan.Start != nil {
			k, v = it.cursor.Seek(it.scan.Start)
		} else {
			k, v = it.cursor.First()
		}
	} else {
		k, v = it.cursor.Next()
	}
	if k == nil || (it.scan.End != nil && bytes.Compare(k, it.scan.End) >= 0) {
		it.done = true
		it.k, it.v = nil, nil
		return false
	}
	it.k, it.v = k, v
	return true
}

func (it *cursorIterator) Key() []byte   { return it.k }
func (it *cursorIterator) Value() []byte { return it.v }
func (it *cursorIterator) Err() error    { return it.err }

func (it *cursorIterator) Close() error {
	it.done = true
	it.k, it.v = nil, nil
	if it.release == nil {
		return nil
	}
	release := it.release
	it.release = nil
	if err := release(); err != nil {
		return NewError("scan", ErrBackend, it.scan.Table, nil, err)
	}
	return nil
}

// OwnedIterator copies every pair out of a RawIterator before advancing,
// so results stay valid after the iterator moves on or is closed. Consumers
// can hold many rows at once or hand them across goroutines.
type OwnedIterator struct {
	src RawIterator
}

func NewOwnedIterator(src RawIterator) *OwnedIterator {
	return &OwnedIterator{src: src}
}

// Next returns copies of the next pair, or ok == false when exhausted.
func (it *OwnedIterator) Next() (key, value []byte, ok bool) {
	if !it.src.Next() {
		return nil, nil, false
	}
	return bytes.Clone(it.src.Key()), bytes.Clone(it.src.Value()), true
}

// All yields the remaining pairs and closes the source on every exit path,
// including an early break. It can be ranged over once.
func (it *OwnedIterator) All() iter.Seq2[[]byte, []byte] {
	return func(yield func(key, value []byte) bool) {
		defer func() { _ = it.Close() }()
		for {
			k, v, ok := it.Next()
			if !ok || !yield(k, v) {
				return
			}
		}
	}
}

func (it *OwnedIterator) Err() error { return it.src.Err() }

func (it *OwnedIterator) Close() error { return it.src.Close() }
