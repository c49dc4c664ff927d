package db

import (
	"context"
	"errors"

	"sidewalkd/model"
)

var ErrStoreNotInitialized = errors.New("sql store is not initialized")

type Store interface {
	Ping(ctx context.Context) error
	CountLabelsByType(ctx context.Context) (map[model.LabelType]int, error)
	ListLabelsBySeverity(ctx context.Context, labelType model.LabelType) ([]model.RankedLabel, error)
	ReplacePresampled(ctx context.Context, rows []model.LabelPresampled, opts WriteOptions) error
	ListPresampled(ctx context.Context) ([]model.LabelPresampled, error)
	LabelsInBox(ctx context.Context, zoomLevel int, box model.BoundingBox) ([]int, error)
	CreateLabelIndex(ctx context.Context) error
	DropLabelIndex(ctx context.Context) error
	ListRoutes(ctx context.Context) ([]model.Route, error)
	ListMissionRegionIDs(ctx context.Context, label string) ([]int, error)
	CreateMissions(ctx context.Context, missions []model.Mission) error
	ListAssignedHitIDs(ctx context.Context) (map[string]bool, error)
	CreateRouteAssignments(ctx context.Context, assignments []model.AmtRouteAssignment) error
}

var _ Store = (*SQLStore)(nil)

// WriteOptions controls how presampled rows are persisted.
type WriteOptions struct {
	// BatchSize is the number of rows per INSERT statement.
	BatchSize int
	// SplitZoomLevels, when positive, rebuilds one label_presampled_z<N>
	// table per zoom level 0..SplitZoomLevels-1 after the insert.
	SplitZoomLevels int
}
