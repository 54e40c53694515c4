// Command bmecat-preprocess extracts one vendor's BMECAT catalog into the
// per-entity record sets described by the vendor's mapping configuration.
//
// The catalog and the mapping are read from an object store (a local
// directory or an Azure blob container). Results go either to NDJSON objects
// named <output-prefix><vendor>_<entity>.json or, with -sink sql, into one
// table per entity. A JSON run summary is printed to stdout.
//
// Exit codes: 0 success, 2 usage or configuration error, 1 runtime error.
//
// Other modes:
//
//   - -validate loads and compiles the mapping only, printing every issue.
//   - -debug-path P prints the catalog nodes matched by the root-anchored
//     path P and exits.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/catalog"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/extract"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/job"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/mapping"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/metrics"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/metrics/datadog"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/objstore"

	// register object store and SQL backends; flags pick which one runs.
	_ "github.com/rai-lv/vendor-to-pim-mapping-system/internal/objstore/blobstore"
	_ "github.com/rai-lv/vendor-to-pim-mapping-system/internal/objstore/filestore"
	_ "github.com/rai-lv/vendor-to-pim-mapping-system/internal/storage/all"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitUsage   = 2
)

// getenv is swapped in tests.
var getenv = os.Getenv

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	jobName string
	runID   string
	vendor  string

	inputStore     string
	inputRoot      string
	inputContainer string
	inputKey       string
	configKey      string

	sink            string
	outputStore     string
	outputRoot      string
	outputContainer string
	outputPrefix    string
	storageKind     string
	dsn             string
	tablePrefix     string

	workers        int
	metricsBackend string
	debugPath      string
	textOnly       bool
	validate       bool
	verbose        bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var o options
	fs := flag.NewFlagSet("bmecat-preprocess", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.jobName, "job-name", "bmecat-preprocess", "job name used in the summary and metric tags")
	fs.StringVar(&o.runID, "run-id", "", "job run id (overrides env JOB_RUN_ID)")
	fs.StringVar(&o.vendor, "vendor", "", "vendor name written into every record (required)")

	fs.StringVar(&o.inputStore, "input-store", "file", "input object store: file|azblob")
	fs.StringVar(&o.inputRoot, "input-root", ".", "base directory for -input-store file")
	fs.StringVar(&o.inputContainer, "input-container", "", "container for -input-store azblob")
	fs.StringVar(&o.inputKey, "input-key", "", "object key of the catalog XML (required)")
	fs.StringVar(&o.configKey, "config-key", "", "object key of the mapping config; defaults to the vendor's standard key")

	fs.StringVar(&o.sink, "sink", job.SinkNDJSON, "output sink: ndjson|sql")
	fs.StringVar(&o.outputStore, "output-store", "", "output object store: file|azblob (defaults to -input-store)")
	fs.StringVar(&o.outputRoot, "output-root", "", "base directory for -output-store file (defaults to -input-root)")
	fs.StringVar(&o.outputContainer, "output-container", "", "container for -output-store azblob (defaults to -input-container)")
	fs.StringVar(&o.outputPrefix, "output-prefix", "", "key prefix for NDJSON outputs, e.g. prepared/acme/")
	fs.StringVar(&o.storageKind, "storage-kind", "sqlite", "SQL backend for -sink sql: sqlite|postgres|mssql")
	fs.StringVar(&o.dsn, "dsn", "", "SQL DSN for -sink sql (overrides env DSN)")
	fs.StringVar(&o.tablePrefix, "table-prefix", "", "prefix for SQL table names, may include a schema")

	fs.IntVar(&o.workers, "workers", 1, "parallel entity extraction")
	fs.StringVar(&o.metricsBackend, "metrics-backend", "", "metrics backend: datadog|none (overrides env METRICS_BACKEND)")
	fs.StringVar(&o.debugPath, "debug-path", "", "print the nodes matched by this root-anchored path and exit")
	fs.BoolVar(&o.textOnly, "text", false, "with -debug-path, print node texts only")
	fs.BoolVar(&o.validate, "validate", false, "validate the mapping configuration and exit")
	fs.BoolVar(&o.verbose, "v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	// flag → env → default.
	if o.runID == "" {
		o.runID = getenv("JOB_RUN_ID")
	}
	if o.dsn == "" {
		o.dsn = getenv("DSN")
	}
	if o.metricsBackend == "" {
		o.metricsBackend = getenv("METRICS_BACKEND")
	}
	if o.metricsBackend == "" {
		o.metricsBackend = "none"
	}
	if o.outputStore == "" {
		o.outputStore = o.inputStore
	}
	if o.outputRoot == "" {
		o.outputRoot = o.inputRoot
	}
	if o.outputContainer == "" {
		o.outputContainer = o.inputContainer
	}
	return &o, nil
}

func (o *options) storeConfig(kind, root, container string) objstore.Config {
	return objstore.Config{
		Kind:             kind,
		Root:             root,
		Container:        container,
		ConnectionString: getenv("AZURE_STORAGE_CONNECTION_STRING"),
	}
}

func (o *options) jobConfig() job.Config {
	cfg := job.Config{
		JobName:      o.jobName,
		RunID:        o.runID,
		Vendor:       o.vendor,
		Input:        o.storeConfig(o.inputStore, o.inputRoot, o.inputContainer),
		InputKey:     o.inputKey,
		ConfigKey:    o.configKey,
		Sink:         o.sink,
		OutputPrefix: o.outputPrefix,
		TablePrefix:  o.tablePrefix,
		Workers:      o.workers,
	}
	if o.sink == job.SinkSQL {
		cfg.Storage.Kind = o.storageKind
		cfg.Storage.DSN = o.dsn
	} else {
		cfg.Output = o.storeConfig(o.outputStore, o.outputRoot, o.outputContainer)
	}
	return cfg
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	logger := log.New(stderr, "", log.LstdFlags)
	var stageLog extract.Logger
	if o.verbose {
		stageLog = logger
	}

	switch {
	case o.debugPath != "":
		return debugPath(ctx, o, stdout, stderr)
	case o.validate:
		return validate(ctx, o, stderr, logger)
	}

	cfg := o.jobConfig()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	closeMetrics := setupMetrics(ctx, o, logger)
	defer closeMetrics()

	start := time.Now()
	sum, runErr := job.NewDefaultRunner(stageLog).Run(ctx, cfg)

	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		logger.Printf("encode summary: %v", err)
		return exitRuntime
	}

	if runErr != nil {
		logger.Printf("run failed after %s: %v", time.Since(start).Truncate(time.Millisecond), runErr)
		var ce *mapping.ConfigError
		if errors.As(runErr, &ce) {
			for _, iss := range ce.Issues {
				fmt.Fprintln(stderr, iss.String())
			}
			return exitUsage
		}
		return exitRuntime
	}
	if o.verbose {
		logger.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
	return exitOK
}

// setupMetrics installs the selected backend and returns its shutdown hook.
// A backend that fails to start leaves metrics disabled.
func setupMetrics(ctx context.Context, o *options, logger *log.Logger) func() {
	switch o.metricsBackend {
	case "datadog":
		tags := datadog.ParseTagsCSV(getenv("METRICS_TAGS"))
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    o.jobName,
			Vendor:     o.vendor,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			logger.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}
		}
		if o.verbose {
			logger.Printf("metrics: backend=datadog job_name=%s tags=%v", o.jobName, tags)
		}
		metrics.SetBackend(b)
		return func() {
			// Close stops the flush loop and submits what is still buffered.
			if err := b.Close(); err != nil {
				logger.Printf("metrics: datadog close/flush error: %v", err)
			}
			metrics.SetBackend(nil)
		}
	case "", "none":
		return func() {}
	default:
		logger.Printf("metrics: unknown backend %q; metrics disabled", o.metricsBackend)
		return func() {}
	}
}

// validate loads and compiles the mapping configuration only.
func validate(ctx context.Context, o *options, stderr io.Writer, logger *log.Logger) int {
	if o.vendor == "" && o.configKey == "" {
		fmt.Fprintln(stderr, "-validate needs -vendor or -config-key")
		return exitUsage
	}
	key := o.configKey
	if key == "" {
		key = mapping.DefaultConfigKey(o.vendor)
	}

	st, err := objstore.Open(ctx, o.storeConfig(o.inputStore, o.inputRoot, o.inputContainer))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	b, err := st.Get(ctx, key)
	if err != nil {
		fmt.Fprintf(stderr, "read mapping config: %v\n", err)
		return exitUsage
	}
	f, err := mapping.Parse(b, mapping.FormatFromName(key))
	if err != nil {
		fmt.Fprintf(stderr, "decode %s: %v\n", key, err)
		return exitUsage
	}

	_, issues, err := mapping.Compile(f)
	for _, iss := range issues {
		fmt.Fprintln(stderr, iss.String())
	}
	if err != nil {
		logger.Printf("Configuration is invalid: %s", st.Location(key))
		return exitUsage
	}
	logger.Printf("Configuration is valid: %s", st.Location(key))
	return exitOK
}

// debugPath prints the nodes matched by -debug-path.
func debugPath(ctx context.Context, o *options, stdout, stderr io.Writer) int {
	if o.inputKey == "" {
		fmt.Fprintln(stderr, "-debug-path needs -input-key")
		return exitUsage
	}
	st, err := objstore.Open(ctx, o.storeConfig(o.inputStore, o.inputRoot, o.inputContainer))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	b, err := st.Get(ctx, o.inputKey)
	if err != nil {
		fmt.Fprintf(stderr, "read catalog: %v\n", err)
		return exitRuntime
	}
	root, err := catalog.Parse(bytes.NewReader(b))
	if err != nil {
		fmt.Fprintf(stderr, "parse catalog: %v\n", err)
		return exitRuntime
	}
	catalog.StripNamespaces(root)
	if _, err := catalog.DebugPrintPath(stdout, root, o.debugPath, o.textOnly); err != nil {
		fmt.Fprintf(stderr, "debug path: %v\n", err)
		return exitRuntime
	}
	return exitOK
}
