// Package extract turns a parsed catalog tree into per-entity record sets
// according to a compiled mapping plan.
//
// The engine is a deterministic function of (tree, plan, vendor): it performs
// no I/O. Entities are independent and may be extracted in parallel; category
// trees needed by ancestors.* fields are built before any worker starts.
//
// Errors:
//   - *EmptyResultError when a mandatory entity has no row nodes.
//   - Missing keys and missing field paths are not errors. They show up in
//     EntityStats and in the de-duplicated warning list.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/catalog"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/mapping"
	"github.com/rai-lv/vendor-to-pim-mapping-system/pkg/records"
)

// Options configure an Engine.
type Options struct {
	// Vendor is the constant written into every record's context column.
	Vendor string
	// Workers bounds parallel entity extraction. Values < 1 mean 1.
	Workers int
	// Logger receives stage lines and warnings. Nil discards.
	Logger Logger
}

// Engine runs compiled plans over catalog trees.
type Engine struct {
	opts Options
}

// New returns an Engine.
func New(opts Options) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	return &Engine{opts: opts}
}

// EntityResult is the output of one entity.
type EntityResult struct {
	Name    string
	Records []*records.Record
	Stats   EntityStats
}

// Result is the output of one run, with entities in plan order.
type Result struct {
	Entities []EntityResult
	Warnings []string
}

// Entity returns the result for name.
func (r *Result) Entity(name string) (*EntityResult, bool) {
	for i := range r.Entities {
		if r.Entities[i].Name == name {
			return &r.Entities[i], true
		}
	}
	return nil, false
}

// SkippedNoKey sums RowsSkippedNoKey over all entities named in names, or
// over every entity when names is empty.
func (r *Result) SkippedNoKey(names ...string) int {
	total := 0
	for _, e := range r.Entities {
		if len(names) > 0 && !containsName(names, e.Name) {
			continue
		}
		total += e.Stats.RowsSkippedNoKey
	}
	return total
}

func containsName(names []string, s string) bool {
	for _, n := range names {
		if n == s {
			return true
		}
	}
	return false
}

// Run strips namespaces from root (idempotent) and extracts every entity of
// plan. Cancelling ctx stops scheduling further entities.
func (e *Engine) Run(ctx context.Context, root *catalog.Node, plan *mapping.Plan) (*Result, error) {
	if root == nil {
		return nil, errors.New("extract: nil catalog tree")
	}
	if plan == nil {
		return nil, errors.New("extract: nil plan")
	}

	start := time.Now()
	catalog.StripNamespaces(root)

	diag := NewDiagnostics(e.opts.Logger)
	keys := KeyResolver{Diag: diag}

	// The category tree first: the single ordering dependency of the run.
	var tree *CategoryTree
	if src := plan.Categories.Entity; src != "" {
		rows := catalog.ResolveRooted(root, plan.Categories.RootPath)
		tree = BuildCategoryTree(rows, plan.Categories, keys, src+".tree")
		e.opts.Logger.Printf("stage=category_tree entity=%s rows=%d ids=%d", src, len(rows), tree.Len())
	}

	results := make([]EntityResult, len(plan.Entities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i := range plan.Entities {
		ep := &plan.Entities[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t0 := time.Now()
			run := newEntityRun(ep, e.opts.Vendor, plan.ContextField, keys, tree, plan.Categories.IDPath)
			if err := run.run(root); err != nil {
				return err
			}
			results[i] = EntityResult{Name: ep.Name, Records: run.out, Stats: run.stats}
			e.opts.Logger.Printf("stage=entity entity=%s mode=%s rows=%d skipped_no_key=%d duplicates=%d records=%d duration=%s",
				ep.Name, ep.Mode, run.stats.RowsFound, run.stats.RowsSkippedNoKey,
				run.stats.DuplicatesDropped, run.stats.Records, time.Since(t0).Round(time.Microsecond))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var empty *EmptyResultError
		if errors.As(err, &empty) {
			return nil, err
		}
		return nil, fmt.Errorf("extract: %w", err)
	}

	res := &Result{Entities: results, Warnings: diag.Warnings()}
	e.opts.Logger.Printf("stage=extract entities=%d warnings=%d duration=%s",
		len(results), diag.Len(), time.Since(start).Round(time.Millisecond))
	return res, nil
}
