package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"vostore/internal/config"
	"vostore/internal/export"
	"vostore/internal/identifiers"
	"vostore/internal/storage"
	"vostore/internal/storage/keys"
	"vostore/internal/storage/statustable"
	"vostore/internal/store"
	"vostore/pkg/proto"
)

type env struct {
	cfg        *config.Config
	storage    *storage.Storage
	raw        store.Store
	partitions identifiers.FixedPartitionTable
	stdin      io.Reader
	stdout     io.Writer
}

type command struct {
	Name  string
	Usage string
	Help  string
	Run   func(e *env, args []string) error
}

var commands = []command{
	{"get", "get <service> <key>", "print the status of a virtual object", runGet},
	{"lock", "lock <service> <key> [invocation-id]", "lock a virtual object (new id if omitted)", runLock},
	{"unlock", "unlock <service> <key>", "unlock a virtual object", runUnlock},
	{"delete", "delete <service> <key>", "delete the status row of a virtual object", runDelete},
	{"scan", "scan [-from pk -to pk | -partition id]", "list locked virtual objects", runScan},
	{"export", "export [-partition id] [-out file]", "write rows as a chunked export stream", runExport},
	{"import", "import [-in file]", "replay an export stream atomically", runImport},
	{"dump", "dump", "list raw rows, including ones a scan rejects", runDump},
	{"purge", "purge <hex-key>", "remove one raw row by its encoded key", runPurge},
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.Name == name {
			return c, true
		}
	}
	return command{}, false
}

var errUsage = errors.New("wrong arguments")

// parseKey reads a virtual object key. "hex:" selects hex input, anything
// else is taken as raw bytes.
func parseKey(s string) ([]byte, error) {
	if h, ok := strings.CutPrefix(s, "hex:"); ok {
		b, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("parsing key: %w", err)
		}
		return b, nil
	}
	return []byte(s), nil
}

func serviceIDArgs(args []string, extra int) (identifiers.ServiceID, error) {
	if len(args) < 2 || len(args) > 2+extra {
		return identifiers.ServiceID{}, errUsage
	}
	key, err := parseKey(args[1])
	if err != nil {
		return identifiers.ServiceID{}, err
	}
	return identifiers.NewServiceID(args[0], key), nil
}

func runGet(e *env, args []string) error {
	id, err := serviceIDArgs(args, 0)
	if err != nil {
		return err
	}
	status, err := statustable.NewReadOnly(e.storage).GetVirtualObjectStatus(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s\t%s\n", id, status)
	return nil
}

func runLock(e *env, args []string) error {
	id, err := serviceIDArgs(args, 1)
	if err != nil {
		return err
	}
	inv := identifiers.NewInvocationID()
	if len(args) == 3 {
		if inv, err = identifiers.ParseInvocationID(args[2]); err != nil {
			return err
		}
	}

	tx, err := e.storage.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	tbl := statustable.New(tx)
	current, err := tbl.GetVirtualObjectStatus(id)
	if err != nil {
		return err
	}
	if !current.IsUnlocked() && current.InvocationID != inv {
		return fmt.Errorf("%s is already %s", id, current)
	}
	if err := tbl.PutVirtualObjectStatus(id, statustable.LockedBy(inv)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s\t%s\n", id, statustable.LockedBy(inv))
	return nil
}

func runUnlock(e *env, args []string) error {
	id, err := serviceIDArgs(args, 0)
	if err != nil {
		return err
	}
	if err := statustable.New(e.storage).PutVirtualObjectStatus(id, statustable.Unlocked); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s\t%s\n", id, statustable.Unlocked)
	return nil
}

func runDelete(e *env, args []string) error {
	id, err := serviceIDArgs(args, 0)
	if err != nil {
		return err
	}
	return statustable.New(e.storage).DeleteVirtualObjectStatus(id)
}

// rangeFlags selects a partition key range either directly or through the
// fixed partition table.
type rangeFlags struct {
	from, to  *uint64
	partition *int
}

func addRangeFlags(fs *flag.FlagSet) rangeFlags {
	return rangeFlags{
		from:      fs.Uint64("from", 0, "first partition key (inclusive)"),
		to:        fs.Uint64("to", uint64(identifiers.MaxPartitionKey), "last partition key (inclusive)"),
		partition: fs.Int("partition", -1, "partition id; overrides -from/-to"),
	}
}

func (r rangeFlags) resolve(t identifiers.FixedPartitionTable) (identifiers.PartitionKeyRange, error) {
	if *r.partition < 0 {
		return identifiers.PartitionKeyRange{
			Start: identifiers.PartitionKey(*r.from),
			End:   identifiers.PartitionKey(*r.to),
		}, nil
	}
	if *r.partition > int(^uint16(0)) {
		return identifiers.PartitionKeyRange{}, fmt.Errorf("partition %d: %w", *r.partition, identifiers.ErrUnknownPartition)
	}
	return t.RangeFor(identifiers.PartitionID(*r.partition))
}

func runScan(e *env, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	rf := addRangeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rng, err := rf.resolve(e.partitions)
	if err != nil {
		return err
	}

	n := 0
	for row, err := range statustable.NewReadOnly(e.storage).AllVirtualObjectStatus(rng) {
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "%016x\t%s\t%s\n", uint64(row.PartitionKey), row.ServiceID(), row.Status)
		n++
	}
	fmt.Fprintf(e.stdout, "%d rows in %s\n", n, rng)
	return nil
}

func runExport(e *env, args []string) (err error) {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	rf := addRangeFlags(fs)
	out := fs.String("out", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rng, err := rf.resolve(e.partitions)
	if err != nil {
		return err
	}

	w := e.stdout
	if *out != "" {
		var f *os.File
		if f, err = os.Create(*out); err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	rows := statustable.NewReadOnly(e.storage).AllVirtualObjectStatus(rng)
	_, err = export.Export(w, rows, e.cfg.Export.ChunkSize)
	return err
}

func runImport(e *env, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	in := fs.String("in", "", "input file (default stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r := e.stdin
	if *in != "" {
		f, err := os.Open(*in)
		if err != nil {
			return fmt.Errorf("opening export file: %w", err)
		}
		defer f.Close()
		r = f
	}

	tx, err := e.storage.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stats, err := export.Import(r, statustable.New(tx))
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "imported %d rows in %d chunks\n", stats.Rows, stats.Chunks)
	return nil
}

// describeRaw decodes one stored pair without aborting on failure.
func describeRaw(key, value []byte) string {
	k, err := statustable.DeserializeServiceStatusKey(key)
	if err != nil {
		return "corrupt key: " + err.Error()
	}
	var msg proto.VirtualObjectStatus
	if err := msg.Unmarshal(value); err != nil {
		return "corrupt value: " + err.Error()
	}
	status, err := statustable.FromWire(&msg)
	if err != nil {
		return "invalid value: " + err.Error()
	}
	return k.ServiceID().String() + " " + status.String()
}

func runDump(e *env, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	n := 0
	err := e.raw.ForEach(keys.ServiceStatus.Bucket(), func(key, value []byte) error {
		fmt.Fprintf(e.stdout, "%x\t%x\t%s\n", key, value, describeRaw(key, value))
		n++
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%d raw rows\n", n)
	return nil
}

func runPurge(e *env, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	key, err := hex.DecodeString(strings.TrimPrefix(args[0], "hex:"))
	if err != nil {
		return fmt.Errorf("parsing key: %w", err)
	}
	bucket := keys.ServiceStatus.Bucket()
	value, err := e.raw.Get(bucket, key)
	if err != nil {
		return err
	}
	if value == nil {
		return fmt.Errorf("no row at %x", key)
	}
	if err := e.raw.Delete(bucket, key); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "purged %x\t%s\n", key, describeRaw(key, value))
	return nil
}
