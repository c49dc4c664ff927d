package thinning

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sidewalkd/db"
	"sidewalkd/model"
)

// Store is the slice of db.Store the thinning job reads and writes.
type Store interface {
	CountLabelsByType(ctx context.Context) (map[model.LabelType]int, error)
	ListLabelsBySeverity(ctx context.Context, labelType model.LabelType) ([]model.RankedLabel, error)
	ReplacePresampled(ctx context.Context, rows []model.LabelPresampled, opts db.WriteOptions) error
}

type Options struct {
	ZoomLevels     int
	SamplingDegree float64
	Mode           Mode
	BatchSize      int
	SplitTables    bool
	// DryRun computes assignments without touching label_presampled.
	DryRun bool
}

// DefaultOptions are the parameters the labeling map was tuned with.
var DefaultOptions = Options{
	ZoomLevels:     7,
	SamplingDegree: 0.6,
	Mode:           ModeCumulative,
	BatchSize:      1000,
}

type Result struct {
	Budget      *Budget
	Assignments []Assignment
	Uncovered   []model.RankedLabel
	Rows        int
}

// Run recomputes label_presampled from scratch: count labels per type, derive
// the visibility budget, rank each type by severity, assign minimum zoom
// levels and replace the stored rows in one transaction.
func Run(ctx context.Context, store Store, logger *zap.SugaredLogger, opts Options) (*Result, error) {
	if !opts.Mode.IsValid() {
		return nil, fmt.Errorf("unknown presample mode %q", opts.Mode)
	}

	counts, err := store.CountLabelsByType(ctx)
	if err != nil {
		return nil, err
	}
	totals := make(map[model.LabelType]int, len(counts))
	for t, n := range counts {
		if !t.IsValid() {
			logger.Warnw("skipping unknown label type", "label_type_id", int(t), "labels", n)
			continue
		}
		totals[t] = n
	}

	budget, err := NewBudget(totals, opts.ZoomLevels, opts.SamplingDegree)
	if err != nil {
		return nil, err
	}

	ranked := make(map[model.LabelType][]model.RankedLabel, len(model.LabelTypes))
	for _, t := range model.LabelTypes {
		labels, err := store.ListLabelsBySeverity(ctx, t)
		if err != nil {
			return nil, err
		}
		ranked[t] = labels
		logger.Debugw("ranked labels", "label_type", t.String(), "count", totals[t], "ranked", len(labels))
	}

	assignments, uncovered, err := Assign(budget, ranked)
	if err != nil {
		return nil, err
	}
	if len(uncovered) > 0 {
		// Labels added between the count and the listing queries.
		logger.Warnw("labels ranked beyond the finest budget were not assigned", "labels", len(uncovered))
	}

	rows, err := Rows(assignments, budget.Finest(), opts.Mode)
	if err != nil {
		return nil, err
	}
	result := &Result{Budget: budget, Assignments: assignments, Uncovered: uncovered, Rows: len(rows)}
	if opts.DryRun {
		logger.Infow("dry run, label_presampled left untouched", "assignments", len(assignments), "rows", len(rows))
		return result, nil
	}

	writeOpts := db.WriteOptions{BatchSize: opts.BatchSize}
	if opts.SplitTables {
		writeOpts.SplitZoomLevels = opts.ZoomLevels
	}
	if err := store.ReplacePresampled(ctx, rows, writeOpts); err != nil {
		return nil, err
	}
	logger.Infow("label_presampled rebuilt",
		"assignments", len(assignments),
		"rows", len(rows),
		"mode", string(opts.Mode),
		"zoom_levels", opts.ZoomLevels,
		"sampling_degree", opts.SamplingDegree,
	)
	return result, nil
}

// Histogram counts assignments per minimum zoom level.
func Histogram(assignments []Assignment, levels int) []int {
	h := make([]int, levels)
	for _, a := range assignments {
		if a.MinZoom >= 0 && a.MinZoom < levels {
			h[a.MinZoom]++
		}
	}
	return h
}
