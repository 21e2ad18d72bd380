package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"vostore/internal/config"
	"vostore/internal/identifiers"
	"vostore/internal/logging"
	"vostore/internal/storage"
	boltstore "vostore/internal/store/bolt"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vostore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file")
	dbPath := fs.String("db", "", "database path (overrides config)")
	logLevel := fs.String("log-level", "", "log level (overrides config)")
	fs.Usage = func() { usage(fs, stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	cmd, ok := lookupCommand(fs.Arg(0))
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", fs.Arg(0))
		fs.Usage()
		return 2
	}

	// Load config (TOML file with defaults)
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	// CLI flags override config file values
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	logging.InitWriter(stderr, cfg.Logging.Level, cfg.Logging.Format)
	log := logging.For("cli")

	cfg.Storage.Path = config.ExpandHome(cfg.Storage.Path)
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0700); err != nil {
		fmt.Fprintf(stderr, "creating data dir: %v\n", err)
		return 1
	}

	st, err := boltstore.Open(cfg.Storage.Path, boltstore.Options{
		Timeout:         cfg.Storage.OpenTimeout.Duration,
		NoSync:          cfg.Storage.NoSync,
		InitialMmapSize: cfg.Storage.InitialMmapSize,
	})
	if err != nil {
		fmt.Fprintf(stderr, "store: %v\n", err)
		return 1
	}
	defer st.Close()
	log.Debug("store opened", "path", st.Path())

	e := &env{
		cfg:        cfg,
		storage:    storage.New(st),
		raw:        st,
		partitions: identifiers.NewFixedPartitionTable(uint16(cfg.Partitions.Count)),
		stdin:      stdin,
		stdout:     stdout,
	}
	if err := cmd.Run(e, fs.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "usage: vostore %s\n", cmd.Usage)
			return 2
		}
		fmt.Fprintf(stderr, "%s: %v\n", cmd.Name, err)
		log.Error("command failed", "command", cmd.Name, "err", err)
		return 1
	}
	return 0
}

func usage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "Usage: vostore [flags] <command> [args]")
	fmt.Fprintln(w, "\nCommands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-44s %s\n", c.Usage, c.Help)
	}
	fmt.Fprintln(w, "\nFlags:")
	fs.PrintDefaults()
}
