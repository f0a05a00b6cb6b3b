// Package pipeline orchestrates one run: discover variables per dataset,
// acquire each dataset live or from the snapshot cache, merge on the
// geography keys, derive alias columns, and score them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/tractworks/hazidx/internal/derive"
	"github.com/tractworks/hazidx/internal/domain"
	"github.com/tractworks/hazidx/internal/formula"
	"github.com/tractworks/hazidx/internal/frame"
	"github.com/tractworks/hazidx/internal/observability"
	"github.com/tractworks/hazidx/internal/score"
)

// Source acquires raw variables for one dataset from the remote tabular
// source.
type Source interface {
	Acquire(ctx context.Context, dataset string, year int, geo domain.Geography, tokens []string) (*frame.Frame, error)
}

// SnapshotStore persists per-dataset tables between runs.
type SnapshotStore interface {
	Get(key domain.SnapshotKey) (*frame.Frame, bool, error)
	Put(key domain.SnapshotKey, f *frame.Frame) error
}

// Params select what one run processes.
type Params struct {
	Year      int
	Geography domain.Geography
}

// Runner executes one acquisition-to-scores run.
type Runner struct {
	source  Source
	store   SnapshotStore
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
	options score.Options

	progressed atomic.Bool
}

// New creates a Runner.
func New(source Source, store SnapshotStore, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock, options score.Options) *Runner {
	return &Runner{
		source:  source,
		store:   store,
		logger:  logger,
		metrics: metrics,
		clock:   clock,
		options: options,
	}
}

// CheckReadiness returns nil once the run has acquired at least one dataset.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.progressed.Load() {
		return errors.New("run has not acquired any dataset yet")
	}
	return nil
}

// Run produces the scored wide table for one geography/year selection.
// Per-dataset failures fall back to cached snapshots; per-alias failures
// degrade to missing columns. Everything else aborts with a diagnostic
// naming the offending dataset, alias, or key.
func (r *Runner) Run(ctx context.Context, specs []formula.Spec, p Params) (*frame.Frame, error) {
	start := r.clock.Now()

	groups := formula.GroupByDataset(specs)
	r.logger.Info("variables discovered",
		"datasets", len(groups.Datasets()), "variables", groups.TotalTokens())

	var wide *frame.Frame
	for _, dataset := range groups.Datasets() {
		tokens := groups.Tokens(dataset)
		if len(tokens) == 0 {
			// Every token in this dataset's expressions is an alias, so there
			// is nothing to acquire; the aliases are computed after the merge.
			r.logger.Info("dataset has no raw variables, skipping acquisition", "dataset", dataset)
			continue
		}
		table, err := r.fetchDataset(ctx, dataset, tokens, p)
		if err != nil {
			return nil, err
		}
		r.progressed.Store(true)

		if wide == nil {
			if err := frame.CheckUniqueKeys(table, p.Geography.Keys()); err != nil {
				var je *domain.JoinError
				if errors.As(err, &je) && je.Dataset == "" {
					je.Dataset = dataset
				}
				return nil, err
			}
			wide = table
			continue
		}
		wide, err = frame.LeftJoin(wide, table, p.Geography.Keys())
		if err != nil {
			var je *domain.JoinError
			if errors.As(err, &je) && je.Dataset == "" {
				je.Dataset = dataset
			}
			return nil, err
		}
	}
	if wide == nil {
		return nil, &domain.ConfigError{Reason: "no datasets to process"}
	}
	r.logger.Info("datasets merged", "rows", wide.NumRows(), "columns", len(wide.Columns()))
	r.metrics.RowsProcessed.Set(float64(wide.NumRows()))

	report, err := derive.New(r.logger).Apply(wide, specs)
	if err != nil {
		return nil, err
	}
	r.metrics.DegradedAliases.Add(float64(len(report.Degraded)))

	aliases := make([]string, len(specs))
	for i, s := range specs {
		aliases[i] = s.Alias
	}
	if err := score.Apply(wide, aliases, r.options); err != nil {
		return nil, err
	}

	wide.Reorder(append(p.Geography.Keys(), "NAME"))

	r.metrics.RunDuration.Observe(r.clock.Since(start).Seconds())
	return wide, nil
}

// fetchDataset is the cache fallback driver: one acquisition attempt, then
// the last snapshot, then a fatal error. Both paths must contain every
// requested token; a partially fulfilled table is a failure, not a partial
// success.
func (r *Runner) fetchDataset(ctx context.Context, dataset string, tokens []string, p Params) (*frame.Frame, error) {
	key := domain.SnapshotKey{
		Year:      p.Year,
		State:     p.Geography.State,
		Geography: p.Geography.Level,
		Dataset:   dataset,
	}

	live, err := r.source.Acquire(ctx, dataset, p.Year, p.Geography, tokens)
	if err == nil {
		if missing := missingColumns(live, tokens); len(missing) > 0 {
			err = &domain.IncompleteDataError{Dataset: dataset, Missing: missing}
		} else {
			if perr := r.store.Put(key, live); perr != nil {
				r.logger.Warn("snapshot persist failed", "dataset", dataset, "error", perr)
			}
			r.metrics.DatasetsFetched.WithLabelValues("live").Inc()
			r.logger.Info("dataset fetched from source",
				"dataset", dataset, "variables", len(tokens), "rows", live.NumRows())
			return live, nil
		}
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("dataset %q: %w", dataset, ctx.Err())
	}

	r.logger.Warn("source unavailable or incomplete, trying cached snapshot",
		"dataset", dataset, "error", err)

	cached, ok, gerr := r.store.Get(key)
	if gerr != nil {
		return nil, fmt.Errorf("dataset %q: cache lookup failed after source failure (%v): %w", dataset, err, gerr)
	}
	if !ok {
		return nil, fmt.Errorf("dataset %q: no cached snapshot and source acquisition failed: %w", dataset, err)
	}

	cached.CoerceNumeric(append(p.Geography.Keys(), "NAME"))
	// A snapshot written by an earlier run always carries the geography key
	// columns; a hand-edited or truncated file may not.
	required := append(append([]string{}, p.Geography.Keys()...), tokens...)
	if missing := missingColumns(cached, required); len(missing) > 0 {
		return nil, fmt.Errorf("dataset %q: source acquisition failed (%v) and cached snapshot is unusable: %w",
			dataset, err, &domain.IncompleteDataError{Dataset: dataset, Missing: missing})
	}

	r.metrics.DatasetsFetched.WithLabelValues("cache").Inc()
	return cached, nil
}

func missingColumns(f *frame.Frame, tokens []string) []string {
	var missing []string
	for _, tok := range tokens {
		if !f.Has(tok) {
			missing = append(missing, tok)
		}
	}
	return missing
}
