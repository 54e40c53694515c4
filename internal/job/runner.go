// Package job wires one preprocessing run: read the vendor's catalog and
// mapping configuration from an object store, extract every configured
// entity, write the record sets, and report a run summary.
package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/catalog"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/extract"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/mapping"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/metrics"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/objstore"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/sink"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/storage"
)

// Sink kinds.
const (
	SinkNDJSON = "ndjson"
	SinkSQL    = "sql"
)

// Config describes one run.
//
// Edge cases:
//   - ConfigKey defaults to mapping.DefaultConfigKey(Vendor).
//   - ConfigStore defaults to Input when its Kind is empty.
//   - Sink defaults to "ndjson"; "sql" loads tables through Storage.
type Config struct {
	JobName string
	RunID   string
	Vendor  string

	Input       objstore.Config
	InputKey    string
	ConfigStore objstore.Config
	ConfigKey   string

	Sink         string
	Output       objstore.Config
	OutputPrefix string
	Storage      storage.Config
	TablePrefix  string

	Workers int
}

// Validate reports missing required settings.
func (c Config) Validate() error {
	var missing []string
	if c.Vendor == "" {
		missing = append(missing, "vendor")
	}
	if c.InputKey == "" {
		missing = append(missing, "input key")
	}
	if c.Input.Kind == "" {
		missing = append(missing, "input store")
	}
	switch c.Sink {
	case "", SinkNDJSON:
		if c.Output.Kind == "" {
			missing = append(missing, "output store")
		}
	case SinkSQL:
		if c.Storage.Kind == "" {
			missing = append(missing, "storage kind")
		}
	default:
		return fmt.Errorf("job: unknown sink %q (want %s or %s)", c.Sink, SinkNDJSON, SinkSQL)
	}
	if len(missing) > 0 {
		return fmt.Errorf("job: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Summary is the machine-readable result of a run, printed as JSON.
type Summary struct {
	Status              string                `json:"status"`
	Error               string                `json:"error,omitempty"`
	JobName             string                `json:"job_name,omitempty"`
	RunID               string                `json:"job_run_id,omitempty"`
	Vendor              string                `json:"vendor_name"`
	InputCatalog        string                `json:"input_catalog"`
	Config              string                `json:"config"`
	Outputs             []sink.Output         `json:"outputs"`
	Entities            []extract.EntityStats `json:"entities"`
	SkippedArticlesNoID int                   `json:"skipped_articles_no_id"`
	Warnings            []string              `json:"warnings"`
	DurationMS          int64                 `json:"duration_ms"`
}

// Runner executes runs. The factory fields are seams for tests and for
// binaries that register a different set of backends.
type Runner struct {
	OpenStore     func(ctx context.Context, cfg objstore.Config) (objstore.Store, error)
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	Logger        extract.Logger
}

// NewDefaultRunner uses the objstore and storage registries.
func NewDefaultRunner(logger extract.Logger) *Runner {
	return &Runner{
		OpenStore:     objstore.Open,
		NewRepository: storage.New,
		Logger:        logger,
	}
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Run executes cfg. The returned summary is non-nil even on failure; its
// Status is "failed" and Error carries the message.
//
// Errors:
//   - *mapping.ConfigError for an invalid mapping configuration.
//   - *extract.EmptyResultError when a mandatory entity has no rows.
//   - Wrapped store, parse and sink errors otherwise.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Summary, error) {
	start := time.Now()
	log := r.Logger
	if log == nil {
		log = nopLogger{}
	}
	if cfg.Sink == "" {
		cfg.Sink = SinkNDJSON
	}
	if cfg.ConfigKey == "" {
		cfg.ConfigKey = mapping.DefaultConfigKey(cfg.Vendor)
	}
	if cfg.ConfigStore.Kind == "" {
		cfg.ConfigStore = cfg.Input
	}

	sum := &Summary{
		Status:   "failed",
		JobName:  cfg.JobName,
		RunID:    cfg.RunID,
		Vendor:   cfg.Vendor,
		Outputs:  []sink.Output{},
		Entities: []extract.EntityStats{},
		Warnings: []string{},
	}
	fail := func(err error) (*Summary, error) {
		sum.Error = err.Error()
		sum.DurationMS = time.Since(start).Milliseconds()
		return sum, err
	}

	if err := cfg.Validate(); err != nil {
		return fail(err)
	}

	in, err := r.OpenStore(ctx, cfg.Input)
	if err != nil {
		return fail(fmt.Errorf("open input store: %w", err))
	}
	cs := in
	if cfg.ConfigStore != cfg.Input {
		if cs, err = r.OpenStore(ctx, cfg.ConfigStore); err != nil {
			return fail(fmt.Errorf("open config store: %w", err))
		}
	}
	sum.InputCatalog = in.Location(cfg.InputKey)
	sum.Config = cs.Location(cfg.ConfigKey)

	// Config first: a broken mapping should fail before a large catalog is read.
	t0 := time.Now()
	plan, issues, err := loadPlan(ctx, cs, cfg.ConfigKey)
	metrics.ObserveStep("load_config", t0, err)
	for _, iss := range issues {
		if iss.Severity == mapping.SeverityWarning {
			sum.Warnings = append(sum.Warnings, iss.String())
		}
	}
	if err != nil {
		return fail(err)
	}
	log.Printf("stage=config key=%s entities=%s", cfg.ConfigKey, strings.Join(plan.Names(), ","))

	t0 = time.Now()
	root, err := readCatalog(ctx, in, cfg.InputKey)
	metrics.ObserveStep("parse_catalog", t0, err)
	if err != nil {
		return fail(err)
	}
	log.Printf("stage=parse key=%s root=%s duration=%s", cfg.InputKey, catalog.LocalName(root.Tag), time.Since(t0).Round(time.Millisecond))

	t0 = time.Now()
	eng := extract.New(extract.Options{Vendor: cfg.Vendor, Workers: cfg.Workers, Logger: log})
	res, err := eng.Run(ctx, root, plan)
	metrics.ObserveStep("extract", t0, err)
	if err != nil {
		return fail(err)
	}
	sum.Warnings = append(sum.Warnings, res.Warnings...)
	sum.SkippedArticlesNoID = res.SkippedNoKey("vendor_products")
	for _, e := range res.Entities {
		sum.Entities = append(sum.Entities, e.Stats)
		l := metrics.Labels{"entity": e.Name}
		metrics.IncCounter(metrics.EntityRecordsTotal, float64(e.Stats.Records), l)
		metrics.IncCounter(metrics.RowsSkippedTotal, float64(e.Stats.RowsSkippedNoKey), l)
		metrics.IncCounter(metrics.DuplicatesDroppedTotal, float64(e.Stats.DuplicatesDropped), l)
	}
	metrics.IncCounter(metrics.WarningsTotal, float64(len(res.Warnings)), nil)

	t0 = time.Now()
	outs, err := r.write(ctx, cfg, plan, res)
	metrics.ObserveStep("write", t0, err)
	sum.Outputs = append(sum.Outputs, outs...)
	if err != nil {
		return fail(err)
	}

	sum.Status = "ok"
	sum.DurationMS = time.Since(start).Milliseconds()
	log.Printf("stage=done vendor=%s entities=%d warnings=%d duration=%s",
		cfg.Vendor, len(sum.Entities), len(sum.Warnings), time.Since(start).Round(time.Millisecond))
	return sum, nil
}

func loadPlan(ctx context.Context, st objstore.Store, key string) (*mapping.Plan, []mapping.Issue, error) {
	b, err := st.Get(ctx, key)
	if err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			return nil, nil, &mapping.ConfigError{Reason: fmt.Sprintf("mapping configuration %s not found", key)}
		}
		return nil, nil, fmt.Errorf("read mapping config: %w", err)
	}
	f, err := mapping.Parse(b, mapping.FormatFromName(key))
	if err != nil {
		return nil, nil, &mapping.ConfigError{Reason: fmt.Sprintf("decode %s: %v", key, err)}
	}
	return mapping.Compile(f)
}

func readCatalog(ctx context.Context, st objstore.Store, key string) (*catalog.Node, error) {
	b, err := st.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	root, err := catalog.Parse(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", key, err)
	}
	return root, nil
}

// write hands every entity to the configured sink, in plan order.
func (r *Runner) write(ctx context.Context, cfg Config, plan *mapping.Plan, res *extract.Result) ([]sink.Output, error) {
	var w sink.Writer
	switch cfg.Sink {
	case SinkSQL:
		repo, err := r.NewRepository(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		defer repo.Close()
		w = &sink.TableWriter{Repo: repo, TablePrefix: cfg.TablePrefix}
	default:
		out, err := r.OpenStore(ctx, cfg.Output)
		if err != nil {
			return nil, fmt.Errorf("open output store: %w", err)
		}
		w = &sink.NDJSONWriter{Store: out, Prefix: cfg.OutputPrefix}
	}

	outs := make([]sink.Output, 0, len(res.Entities))
	for i := range res.Entities {
		e := res.Entities[i]
		ep, _ := plan.Entity(e.Name)
		o, err := w.Write(ctx, sink.Batch{
			Vendor:        cfg.Vendor,
			Entity:        e,
			Columns:       ep.Columns(plan.ContextField),
			ContextColumn: plan.ContextField,
		})
		if err != nil {
			return outs, err
		}
		outs = append(outs, o)
	}
	return outs, nil
}
