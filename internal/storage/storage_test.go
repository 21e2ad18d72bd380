package storage

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"vostore/internal/identifiers"
	"vostore/internal/storage/keys"
	boltstore "vostore/internal/store/bolt"
)

// testKey is a (partition key, name) key in the service status namespace.
type testKey struct {
	pk   identifiers.PartitionKey
	name string
}

func (k testKey) Table() keys.TableKind { return keys.ServiceStatus }

func (k testKey) AppendTo(buf []byte) []byte {
	return keys.AppendString(keys.AppendPartitionKey(buf, k.pk), k.name)
}

func tempStore(t *testing.T) *boltstore.Store {
	t.Helper()
	st, err := boltstore.Open(filepath.Join(t.TempDir(), "test.db"), boltstore.Options{NoSync: true, InitialMmapSize: 1 << 22})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func tempStorage(t *testing.T) *Storage {
	t.Helper()
	return New(tempStore(t))
}

func getString(t *testing.T, r Reader, k testKey) (string, bool) {
	t.Helper()
	type result struct {
		v     string
		found bool
	}
	res, err := GetBlocking(r, k, func(value []byte, found bool) (result, error) {
		return result{string(value), found}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return res.v, res.found
}

func collect(t *testing.T, r Reader, scan keys.TableScan) []string {
	t.Helper()
	it, err := r.IteratorFrom(scan)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, v := range NewOwnedIterator(it).All() {
		out = append(out, string(v))
	}
	return out
}

func TestDirectPutGetDelete(t *testing.T) {
	s := tempStorage(t)
	k := testKey{1, "a"}

	if _, found := getString(t, s, k); found {
		t.Fatal("fresh store should not contain key")
	}
	if err := s.PutKV(k, []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := s.PutKV(k, []byte("v2")); err != nil {
		t.Fatal(err)
	}
	if v, found := getString(t, s, k); !found || v != "v2" {
		t.Fatalf("get = %q/%v, want v2/true", v, found)
	}
	if err := s.DeleteKey(k); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteKey(k); err != nil {
		t.Fatalf("deleting an absent key should be a no-op: %v", err)
	}
	if _, found := getString(t, s, k); found {
		t.Fatal("key still present after delete")
	}
}

func TestGetBlockingAbsentDefault(t *testing.T) {
	s := tempStorage(t)
	got, err := GetBlocking(s, testKey{1, "missing"}, func(value []byte, found bool) (string, error) {
		if !found {
			return "default", nil
		}
		return string(value), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "default" {
		t.Fatalf("got %q, want default", got)
	}
}

func TestGetBlockingPropagatesDecodeError(t *testing.T) {
	s := tempStorage(t)
	k := testKey{1, "a"}
	if err := s.PutKV(k, []byte("garbage")); err != nil {
		t.Fatal(err)
	}
	want := NewError("get", ErrDecode, keys.ServiceStatus, keys.Serialize(k), errors.New("bad bytes"))
	_, err := GetBlocking(s, k, func(value []byte, found bool) (int, error) {
		return 0, want
	})
	if err != want {
		t.Fatalf("err = %v, want the decode function's error unchanged", err)
	}
	if !errors.Is(err, ErrDecode) {
		t.Fatal("errors.Is(err, ErrDecode) = false")
	}
}

func TestTransactionReadsOwnWrites(t *testing.T) {
	s := tempStorage(t)
	tx, err := s.Begin()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = tx.Rollback() }()

	k := testKey{2, "b"}
	if err := tx.PutKV(k, []byte("pending")); err != nil {
		t.Fatal(err)
	}
	if v, found := getString(t, tx, k); !found || v != "pending" {
		t.Fatalf("tx get = %q/%v, want pending/true", v, found)
	}
	if got := collect(t, tx, keys.FullScan(keys.ServiceStatus)); len(got) != 1 {
		t.Fatalf("tx scan saw %d rows, want 1", len(got))
	}
	if _, found := getString(t, s, k); found {
		t.Fatal("uncommitted write visible through direct handle")
	}

	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if v, found := getString(t, s, k); !found || v != "pending" {
		t.Fatalf("after commit get = %q/%v", v, found)
	}
}

func TestTransactionRollback(t *testing.T) {
	s := tempStorage(t)
	k := testKey{3, "c"}
	if err := s.PutKV(k, []byte("kept")); err != nil {
		t.Fatal(err)
	}

	tx, err := s.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.DeleteKey(k); err != nil {
		t.Fatal(err)
	}
	if _, found := getString(t, tx, k); found {
		t.Fatal("delete not visible inside the transaction")
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("second Rollback should be a no-op: %v", err)
	}
	if v, _ := getString(t, s, k); v != "kept" {
		t.Fatalf("rolled back delete applied: got %q", v)
	}
}

func TestTransactionDone(t *testing.T) {
	s := tempStorage(t)
	tx, err := s.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	k := testKey{1, "x"}
	checks := map[string]error{
		"put":    tx.PutKV(k, []byte("v")),
		"delete": tx.DeleteKey(k),
		"commit": tx.Commit(),
		"get": tx.GetRaw(keys.ServiceStatus, keys.Serialize(k), func([]byte, bool) error {
			return nil
		}),
	}
	_, scanErr := tx.IteratorFrom(keys.FullScan(keys.ServiceStatus))
	checks["scan"] = scanErr
	for op, err := range checks {
		if !errors.Is(err, ErrTxDone) {
			t.Errorf("%s after commit: err = %v, want ErrTxDone", op, err)
		}
	}
}

func TestTransactionIteratorStopsAfterCommit(t *testing.T) {
	s := tempStorage(t)
	for _, name := range []string{"a", "b", "c"} {
		if err := s.PutKV(testKey{1, name}, []byte(name)); err != nil {
			t.Fatal(err)
		}
	}
	tx, err := s.Begin()
	if err != nil {
		t.Fatal(err)
	}
	it, err := tx.IteratorFrom(keys.FullScan(keys.ServiceStatus))
	if err != nil {
		t.Fatal(err)
	}
	if !it.Next() || string(it.Value()) != "a" {
		t.Fatalf("first row = %q", it.Value())
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if it.Next() {
		t.Fatal("Next after Commit should be false")
	}
	if err := it.Err(); !errors.Is(err, ErrTxDone) {
		t.Fatalf("Err = %v, want ErrTxDone", err)
	}
	if it.Next() {
		t.Fatal("iterator resumed")
	}
	if err := it.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestIteratorBounds(t *testing.T) {
	s := tempStorage(t)
	for pk := identifiers.PartitionKey(1); pk <= 4; pk++ {
		for _, name := range []string{"b", "a"} {
			if err := s.PutKV(testKey{pk, name}, fmt.Appendf(nil, "%d%s", pk, name)); err != nil {
				t.Fatal(err)
			}
		}
	}

	tests := []struct {
		name string
		scan keys.TableScan
		want string
	}{
		{"full", keys.FullScan(keys.ServiceStatus), "1a 1b 2a 2b 3a 3b 4a 4b"},
		{"single partition", keys.PartitionKeyRange(keys.ServiceStatus, identifiers.SinglePartitionKey(2)), "2a 2b"},
		{"middle", keys.PartitionKeyRange(keys.ServiceStatus, identifiers.PartitionKeyRange{Start: 2, End: 3}), "2a 2b 3a 3b"},
		{"open end", keys.PartitionKeyRange(keys.ServiceStatus, identifiers.PartitionKeyRange{Start: 4, End: identifiers.MaxPartitionKey}), "4a 4b"},
		{"empty range", keys.PartitionKeyRange(keys.ServiceStatus, identifiers.PartitionKeyRange{Start: 3, End: 2}), ""},
		{"no rows", keys.PartitionKeyRange(keys.ServiceStatus, identifiers.SinglePartitionKey(9)), ""},
		{"prefix", keys.KeyPrefix(testKey{3, "b"}), "3b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(collect(t, s, tt.scan), " ")
			if got != tt.want {
				t.Fatalf("scan = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIteratorOnUnwrittenTable(t *testing.T) {
	s := tempStorage(t)
	if got := collect(t, s, keys.FullScan(keys.ServiceStatus)); len(got) != 0 {
		t.Fatalf("got %d rows from an empty store", len(got))
	}
}

func TestDirectIteratorIsSnapshot(t *testing.T) {
	s := tempStorage(t)
	if err := s.PutKV(testKey{1, "a"}, []byte("1a")); err != nil {
		t.Fatal(err)
	}
	it, err := s.IteratorFrom(keys.FullScan(keys.ServiceStatus))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = it.Close() }()

	if err := s.PutKV(testKey{2, "a"}, []byte("2a")); err != nil {
		t.Fatal(err)
	}
	n := 0
	for it.Next() {
		n++
	}
	if n != 1 {
		t.Fatalf("iterator saw %d rows, want the 1 present at creation", n)
	}
}

func TestOwnedIteratorCopies(t *testing.T) {
	s := tempStorage(t)
	for _, name := range []string{"a", "b", "c"} {
		if err := s.PutKV(testKey{1, name}, []byte("value-"+name)); err != nil {
			t.Fatal(err)
		}
	}
	it, err := s.IteratorFrom(keys.FullScan(keys.ServiceStatus))
	if err != nil {
		t.Fatal(err)
	}
	owned := NewOwnedIterator(it)

	var heldKeys, heldValues [][]byte
	for {
		k, v, ok := owned.Next()
		if !ok {
			break
		}
		heldKeys = append(heldKeys, k)
		heldValues = append(heldValues, v)
	}
	if err := owned.Err(); err != nil {
		t.Fatal(err)
	}
	if err := owned.Close(); err != nil {
		t.Fatal(err)
	}

	// Rows stay valid after the source transaction is gone.
	for i, name := range []string{"a", "b", "c"} {
		if !bytes.Equal(heldKeys[i], keys.Serialize(testKey{1, name})) {
			t.Fatalf("key %d = %x", i, heldKeys[i])
		}
		if string(heldValues[i]) != "value-"+name {
			t.Fatalf("value %d = %q", i, heldValues[i])
		}
	}
}

// fakeIterator counts Close calls.
type fakeIterator struct {
	pairs  [][2]string
	pos    int
	closed int
}

func (f *fakeIterator) Next() bool {
	if f.closed > 0 || f.pos >= len(f.pairs) {
		return false
	}
	f.pos++
	return true
}
func (f *fakeIterator) Key() []byte   { return []byte(f.pairs[f.pos-1][0]) }
func (f *fakeIterator) Value() []byte { return []byte(f.pairs[f.pos-1][1]) }
func (f *fakeIterator) Err() error    { return nil }
func (f *fakeIterator) Close() error  { f.closed++; return nil }

func TestOwnedIteratorAllClosesOnBreak(t *testing.T) {
	src := &fakeIterator{pairs: [][2]string{{"k1", "v1"}, {"k2", "v2"}, {"k3", "v3"}}}
	n := 0
	for range NewOwnedIterator(src).All() {
		n++
		if n == 2 {
			break
		}
	}
	if src.closed != 1 {
		t.Fatalf("Close called %d times, want 1", src.closed)
	}

	drained := &fakeIterator{pairs: [][2]string{{"k", "v"}}}
	for range NewOwnedIterator(drained).All() {
	}
	if drained.closed != 1 {
		t.Fatalf("Close called %d times after drain, want 1", drained.closed)
	}
}

func TestCursorIteratorCloseIsIdempotent(t *testing.T) {
	s := tempStorage(t)
	it, err := s.IteratorFrom(keys.FullScan(keys.ServiceStatus))
	if err != nil {
		t.Fatal(err)
	}
	if err := it.Close(); err != nil {
		t.Fatal(err)
	}
	if err := it.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if it.Next() {
		t.Fatal("Next after Close should be false")
	}
}

func TestErrorFormatAndKinds(t *testing.T) {
	cause := errors.New("boom")
	err := NewError("get", ErrDecode, keys.ServiceStatus, []byte{0xab}, cause)
	if got := err.Error(); got != "storage: get service_status/ab: decode error: boom" {
		t.Fatalf("Error() = %q", got)
	}
	if !errors.Is(err, ErrDecode) || !errors.Is(err, cause) {
		t.Fatal("errors.Is should match both kind and cause")
	}
	if errors.Is(err, ErrValidation) {
		t.Fatal("decode error must not match ErrValidation")
	}

	scan := NewError("scan", ErrIntegrity, keys.ServiceStatus, nil, err)
	if !errors.Is(scan, ErrIntegrity) || !errors.Is(scan, ErrDecode) {
		t.Fatal("integrity fault should expose its underlying class")
	}

	commit := NewError("commit", ErrTxDone, 0, nil, nil)
	if got := commit.Error(); got != "storage: commit: transaction already closed" {
		t.Fatalf("Error() = %q", got)
	}
}
