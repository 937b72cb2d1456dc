// babelstore stores files as pages of the Library of Babel and restores
// them from their signed metadata records.
//
// Usage:
//
//	babelstore <command> [flags] [args]
//
// Commands: init, keygen, upload, download, verify-metadata, info, estimate, list, delete.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bitfsorg/libbabel-go/catalog"
	"github.com/bitfsorg/libbabel-go/config"
	"github.com/bitfsorg/libbabel-go/network"
	"github.com/bitfsorg/libbabel-go/storage"
	"github.com/bitfsorg/libbabel-go/transfer"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = []command{
	{"init", "write a default configuration file", runInit},
	{"keygen", "generate an RSA key pair for signing metadata", runKeygen},
	{"upload", "store one or more files", runUpload},
	{"download", "restore a file from its metadata", runDownload},
	{"verify-metadata", "check a metadata signature and structure offline", runVerify},
	{"info", "print a metadata record", runInfo},
	{"estimate", "estimate pages and time needed to store a file", runEstimate},
	{"list", "list cataloged uploads", runList},
	{"delete", "remove a cataloged upload and its metadata", runDelete},
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string, stdout, stderr io.Writer) error {
	if len(argv) == 0 || argv[0] == "-h" || argv[0] == "--help" || argv[0] == "help" {
		printUsage(stderr)
		return nil
	}
	name, args := argv[0], argv[1:]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		e := &env{stdout: stdout, stderr: stderr}
		defer e.close()
		return c.run(ctx, e, args)
	}
	printUsage(stderr)
	return fmt.Errorf("unknown command %q", name)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: babelstore <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-16s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, `Run "babelstore <command> --help" for command flags.`)
}

// env carries what a command needs once its flags are parsed.
type env struct {
	stdout, stderr io.Writer

	dataDir  string
	storeURL string
	logLevel string
	offline  bool
	noMirror bool

	cfg     config.Config
	log     *slog.Logger
	closers []io.Closer
}

// addCommonFlags registers the flags every command accepts.
func (e *env) addCommonFlags(fs *pflag.FlagSet) {
	fs.StringVar(&e.dataDir, "datadir", config.DefaultDataDir(), "data directory holding config, metadata and catalog")
	fs.StringVar(&e.storeURL, "store-url", "", "store endpoint (overrides config and BABEL_URL)")
	fs.StringVar(&e.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	fs.BoolVar(&e.offline, "offline", false, "use a local page store instead of the network")
	fs.BoolVar(&e.noMirror, "no-mirror", false, "do not cache pages in the local mirror")
}

// parse parses args and loads configuration. It returns pflag.ErrHelp
// after printing usage when --help is given.
func (e *env) parse(fs *pflag.FlagSet, usage string, args []string) error {
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "Usage: babelstore %s\n\nFlags:\n%s", usage, fs.FlagUsages())
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(config.ConfigPath(e.dataDir))
	if err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return err
	}
	if fs.Changed("datadir") || cfg.DataDir == "" {
		cfg.DataDir = e.dataDir
	}
	if e.storeURL != "" {
		cfg.StoreURL = e.storeURL
	}
	if e.logLevel != "" {
		cfg.LogLevel = e.logLevel
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}
	e.cfg = cfg

	logger, closer, err := config.NewLogger(cfg)
	if err != nil {
		return err
	}
	e.log = logger
	e.closers = append(e.closers, closer)
	return nil
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i].Close()
	}
}

// store builds the TextStore for this run: the network client behind a
// local mirror, or a local FileStore with --offline.
func (e *env) store() (storage.TextStore, error) {
	if e.offline {
		fs, err := storage.NewFileStore(filepath.Join(e.cfg.DataDir, "offline"))
		if err != nil {
			return nil, err
		}
		return fs, nil
	}

	envVars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "BABEL_") {
			envVars[k] = v
		}
	}
	clientCfg, err := network.ResolveConfig(&network.ClientConfig{
		URL:     e.cfg.StoreURL,
		Timeout: e.cfg.Timeout,
	}, envVars, e.cfg.Store)
	if err != nil {
		return nil, err
	}
	client := network.NewClient(*clientCfg)
	if e.noMirror {
		return client, nil
	}
	mirror, err := storage.NewFileStore(e.cfg.MirrorDir())
	if err != nil {
		return nil, err
	}
	return storage.NewResolver(client, mirror), nil
}

// orchestrator builds an Orchestrator from configuration.
func (e *env) orchestrator() (*transfer.Orchestrator, error) {
	store, err := e.store()
	if err != nil {
		return nil, err
	}
	o, err := transfer.New(transfer.Config{
		Store: store,
		Options: transfer.Options{
			MaxAttempts: e.cfg.MaxAttempts,
			BaseDelay:   nonZero(e.cfg.RetryDelay),
			Throttle:    nonZero(e.cfg.Throttle),
			CallTimeout: e.cfg.Timeout,
			ChunkSize:   storage.ChunkSizeLimit(e.cfg.PageBudget, storage.DefaultSafetyMargin),
		},
		Logger: e.log,
	})
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, o)
	return o, nil
}

// catalog opens the catalog database.
func (e *env) catalog() (*catalog.Catalog, error) {
	c, err := catalog.Open(e.cfg.CatalogPath())
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, c)
	return c, nil
}
