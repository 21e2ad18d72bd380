package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vostore/internal/identifiers"
	"vostore/internal/storage/keys"
	"vostore/internal/storage/statustable"
	boltstore "vostore/internal/store/bolt"
)

type cli struct {
	t    *testing.T
	dir  string
	conf string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	conf := filepath.Join(dir, "config.toml")
	content := "[storage]\npath = \"" + filepath.ToSlash(filepath.Join(dir, "data", "status.db")) + "\"\nno_sync = true\n\n[partitions]\ncount = 4\n\n[export]\nchunk_size = 2\n\n[logging]\nlevel = \"warn\"\n"
	if err := os.WriteFile(conf, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return &cli{t: t, dir: dir, conf: conf}
}

func (c *cli) run(stdin []byte, args ...string) (code int, stdout, stderr string) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	code = run(append([]string{"-config", c.conf}, args...), bytes.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	code, out, errOut := c.run(nil, args...)
	if code != 0 {
		c.t.Fatalf("vostore %s: exit %d: %s", strings.Join(args, " "), code, errOut)
	}
	return out
}

func TestLockGetUnlock(t *testing.T) {
	c := newCLI(t)
	inv := identifiers.NewInvocationID().String()

	out := c.mustRun("lock", "counter", "alice", inv)
	if !strings.Contains(out, "locked("+inv+")") {
		t.Fatalf("lock output %q", out)
	}
	if out := c.mustRun("get", "counter", "alice"); !strings.Contains(out, "locked("+inv+")") {
		t.Fatalf("get output %q", out)
	}

	// Relocking by the holder is allowed, by anyone else it is not.
	c.mustRun("lock", "counter", "alice", inv)
	if code, _, errOut := c.run(nil, "lock", "counter", "alice"); code != 1 || !strings.Contains(errOut, "already locked") {
		t.Fatalf("second lock: exit %d: %s", code, errOut)
	}

	c.mustRun("unlock", "counter", "alice")
	if out := c.mustRun("get", "counter", "alice"); !strings.Contains(out, "unlocked") {
		t.Fatalf("get after unlock %q", out)
	}
}

func TestDeleteAndHexKeys(t *testing.T) {
	c := newCLI(t)
	c.mustRun("lock", "svc", "hex:0102")
	out := c.mustRun("get", "svc", "hex:0102")
	if !strings.Contains(out, "svc/0102") || !strings.Contains(out, "locked(") {
		t.Fatalf("get output %q", out)
	}
	c.mustRun("delete", "svc", "hex:0102")
	c.mustRun("delete", "svc", "hex:0102")
	if out := c.mustRun("get", "svc", "hex:0102"); !strings.Contains(out, "unlocked") {
		t.Fatalf("get after delete %q", out)
	}
	if code, _, _ := c.run(nil, "get", "svc", "hex:zz"); code != 1 {
		t.Fatalf("bad hex key: exit %d", code)
	}
}

func TestScanByPartition(t *testing.T) {
	c := newCLI(t)
	names := []string{"a", "b", "c", "d", "e", "f"}
	for _, k := range names {
		c.mustRun("lock", "svc", k)
	}

	total := 0
	table := identifiers.NewFixedPartitionTable(4)
	for p := range 4 {
		out := c.mustRun("scan", "-partition", string(rune('0'+p)))
		lines := strings.Split(strings.TrimSpace(out), "\n")
		total += len(lines) - 1

		want := 0
		for _, k := range names {
			if table.PartitionFor(identifiers.PartitionKeyFor("svc", []byte(k))) == identifiers.PartitionID(p) {
				want++
			}
		}
		if len(lines)-1 != want {
			t.Errorf("partition %d: %d rows, want %d\n%s", p, len(lines)-1, want, out)
		}
	}
	if total != len(names) {
		t.Fatalf("partitions hold %d rows, want %d", total, len(names))
	}

	out := c.mustRun("scan")
	if !strings.HasSuffix(strings.TrimSpace(out), "6 rows in "+identifiers.FullPartitionKeyRange.String()) {
		t.Fatalf("full scan %q", out)
	}
	if code, _, _ := c.run(nil, "scan", "-partition", "9"); code != 1 {
		t.Fatalf("unknown partition: exit %d", code)
	}
}

func TestExportImport(t *testing.T) {
	src := newCLI(t)
	for _, k := range []string{"a", "b", "c"} {
		src.mustRun("lock", "svc", k)
	}
	file := filepath.Join(src.dir, "dump.msgpack")
	src.mustRun("export", "-out", file)

	dst := newCLI(t)
	out := dst.mustRun("import", "-in", file)
	if !strings.Contains(out, "imported 3 rows in 2 chunks") {
		t.Fatalf("import output %q", out)
	}
	if out := dst.mustRun("scan"); !strings.Contains(out, "3 rows") {
		t.Fatalf("scan after import %q", out)
	}

	// Through stdin/stdout.
	code, stream, errOut := src.run(nil, "export")
	if code != 0 {
		t.Fatalf("export: %s", errOut)
	}
	third := newCLI(t)
	if code, out, errOut := third.run([]byte(stream), "import"); code != 0 || !strings.Contains(out, "imported 3 rows") {
		t.Fatalf("import from stdin: exit %d: %s %s", code, out, errOut)
	}
}

func TestImportTruncatedLeavesStoreEmpty(t *testing.T) {
	src := newCLI(t)
	for _, k := range []string{"a", "b", "c"} {
		src.mustRun("lock", "svc", k)
	}
	_, stream, _ := src.run(nil, "export")

	dst := newCLI(t)
	if code, _, _ := dst.run([]byte(stream[:len(stream)-1]), "import"); code != 1 {
		t.Fatalf("truncated import: exit %d", code)
	}
	if out := dst.mustRun("scan"); !strings.Contains(out, "0 rows") {
		t.Fatalf("scan after failed import %q", out)
	}
}

func TestDumpAndPurgeCorruptRow(t *testing.T) {
	c := newCLI(t)
	c.mustRun("lock", "svc", "good")

	// Plant a row the table cannot decode while no command holds the file.
	bad := keys.Serialize(statustable.KeyFor(identifiers.NewServiceID("svc", []byte("bad"))))
	st, err := boltstore.Open(filepath.Join(c.dir, "data", "status.db"), boltstore.Options{NoSync: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Set(keys.ServiceStatus.Bucket(), bad, []byte{0xff}); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	if code, _, errOut := c.run(nil, "scan"); code != 1 || !strings.Contains(errOut, "integrity") {
		t.Fatalf("scan over corrupt row: exit %d: %s", code, errOut)
	}
	out := c.mustRun("dump")
	if !strings.Contains(out, "2 raw rows") || !strings.Contains(out, "corrupt value") || !strings.Contains(out, "svc/"+hex.EncodeToString([]byte("good"))) {
		t.Fatalf("dump output %q", out)
	}

	c.mustRun("purge", "hex:"+hex.EncodeToString(bad))
	if out := c.mustRun("scan"); !strings.Contains(out, "1 rows") {
		t.Fatalf("scan after purge %q", out)
	}
	if code, _, _ := c.run(nil, "purge", hex.EncodeToString(bad)); code != 1 {
		t.Fatalf("purge of missing row: exit %d", code)
	}
}

func TestExportWriteFailure(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("no /dev/full")
	}
	c := newCLI(t)
	c.mustRun("lock", "svc", "a")
	if code, _, errOut := c.run(nil, "export", "-out", "/dev/full"); code != 1 {
		t.Fatalf("export to full device: exit %d: %s", code, errOut)
	}
}

func TestUsageErrors(t *testing.T) {
	c := newCLI(t)
	tests := []struct {
		args []string
		code int
	}{
		{nil, 2},
		{[]string{"frobnicate"}, 2},
		{[]string{"get", "only-service"}, 2},
		{[]string{"dump", "extra"}, 2},
		{[]string{"purge"}, 2},
		{[]string{"lock", "svc", "k", "not-a-uuid"}, 1},
		{[]string{"-log-level", "loud", "get", "svc", "k"}, 1},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			if code, _, _ := c.run(nil, tt.args...); code != tt.code {
				t.Fatalf("exit %d, want %d", code, tt.code)
			}
		})
	}
}
