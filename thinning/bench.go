package thinning

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sidewalkd/model"
)

// IndexStore is what the index benchmark needs from the database.
type IndexStore interface {
	LabelsInBox(ctx context.Context, zoomLevel int, box model.BoundingBox) ([]int, error)
	CreateLabelIndex(ctx context.Context) error
	DropLabelIndex(ctx context.Context) error
}

type BenchOptions struct {
	Iterations int
	ZoomLevel  int
	Box        model.BoundingBox
	// KeepIndex leaves the index in place after the run.
	KeepIndex bool
}

// DefaultBenchOptions query central Washington, DC at the finest zoom level.
var DefaultBenchOptions = BenchOptions{
	Iterations: 100,
	ZoomLevel:  6,
	Box:        model.BoundingBox{MinLat: 38.87, MaxLat: 38.95, MinLng: -77.5, MaxLng: -77},
}

type BenchResult struct {
	WithoutIndex time.Duration
	WithIndex    time.Duration
	Matches      int
}

// BenchmarkIndex times the presampled bounding-box query before and after
// adding the (panorama_lat, panorama_lng) index on label.
func BenchmarkIndex(ctx context.Context, store IndexStore, logger *zap.SugaredLogger, opts BenchOptions) (*BenchResult, error) {
	if opts.Iterations < 1 {
		opts.Iterations = 1
	}
	if err := store.DropLabelIndex(ctx); err != nil {
		return nil, err
	}

	res := &BenchResult{}
	var err error
	if res.WithoutIndex, res.Matches, err = timeQuery(ctx, store, opts); err != nil {
		return nil, err
	}
	logger.Infow("query time without index", "iterations", opts.Iterations, "elapsed", res.WithoutIndex, "matches", res.Matches)

	if err := store.CreateLabelIndex(ctx); err != nil {
		return nil, err
	}
	if res.WithIndex, _, err = timeQuery(ctx, store, opts); err != nil {
		return nil, err
	}
	logger.Infow("query time with index", "iterations", opts.Iterations, "elapsed", res.WithIndex)

	if !opts.KeepIndex {
		if err := store.DropLabelIndex(ctx); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func timeQuery(ctx context.Context, store IndexStore, opts BenchOptions) (time.Duration, int, error) {
	var matches int
	start := time.Now()
	for i := 0; i < opts.Iterations; i++ {
		ids, err := store.LabelsInBox(ctx, opts.ZoomLevel, opts.Box)
		if err != nil {
			return 0, 0, err
		}
		matches = len(ids)
	}
	return time.Since(start), matches, nil
}
