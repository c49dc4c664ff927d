package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"sidewalkd/model"
)

const (
	defaultBatchSize  = 1000
	labelIndexName    = "label_panorama_lat_lng_idx"
	missionBatchSize  = 100
	presampledTable   = "label_presampled"
	labelTable        = "label"
	severityTable     = "problem_severity"
	labelPointTable   = "label_point"
	zoomTableTemplate = "%s_z%d"
)

type SQLStore struct {
	db     *gorm.DB
	prefix string
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	s := &SQLStore{db: db}
	if db != nil {
		if ns, ok := db.NamingStrategy.(schema.NamingStrategy); ok {
			s.prefix = ns.TablePrefix
		}
	}
	return s
}

// table returns name qualified with the configured schema prefix.
func (s *SQLStore) table(name string) string {
	return s.prefix + name
}

// Ping verifies the underlying database connection is healthy.
func (s *SQLStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrStoreNotInitialized
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// CountLabelsByType returns the number of distinct labels that carry both a
// severity and a map point, keyed by label type. Unknown label types are
// returned as-is so callers can decide how to report them.
func (s *SQLStore) CountLabelsByType(ctx context.Context) (map[model.LabelType]int, error) {
	var rows []struct {
		LabelTypeID int
		Total       int
	}
	err := s.db.WithContext(ctx).
		Table(s.table(labelTable) + " AS l").
		Select("l.label_type_id AS label_type_id, COUNT(DISTINCT l.label_id) AS total").
		Joins("JOIN " + s.table(severityTable) + " ps ON ps.label_id = l.label_id").
		Joins("JOIN " + s.table(labelPointTable) + " p ON p.label_id = ps.label_id").
		Group("l.label_type_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting labels by type: %w", err)
	}
	counts := make(map[model.LabelType]int, len(rows))
	for _, r := range rows {
		counts[model.LabelType(r.LabelTypeID)] = r.Total
	}
	return counts, nil
}

// ListLabelsBySeverity returns the labels of one type ordered by descending
// severity. A label with several severity rows is ranked by its highest one;
// ties are broken by label id so the order is stable between runs.
func (s *SQLStore) ListLabelsBySeverity(ctx context.Context, labelType model.LabelType) ([]model.RankedLabel, error) {
	if !labelType.IsValid() {
		return nil, fmt.Errorf("%w: %d", model.ErrInvalidLabelType, int(labelType))
	}
	var labels []model.RankedLabel
	err := s.db.WithContext(ctx).
		Table(s.table(severityTable) + " AS ps").
		Select("ps.label_id AS label_id, COALESCE(MAX(ps.severity), 0) AS severity").
		Joins("JOIN " + s.table(labelTable) + " l ON l.label_id = ps.label_id").
		Joins("JOIN " + s.table(labelPointTable) + " p ON p.label_id = ps.label_id").
		Where("l.label_type_id = ?", int(labelType)).
		Group("ps.label_id").
		Order("COALESCE(MAX(ps.severity), 0) DESC, ps.label_id ASC").
		Scan(&labels).Error
	if err != nil {
		return nil, fmt.Errorf("listing %s labels by severity: %w", labelType, err)
	}
	return labels, nil
}

// ReplacePresampled truncates label_presampled and inserts rows in a single
// transaction, so readers never observe a half-written table.
func (s *SQLStore) ReplacePresampled(ctx context.Context, rows []model.LabelPresampled, opts WriteOptions) error {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.truncatePresampled(tx); err != nil {
			return fmt.Errorf("truncating %s: %w", s.table(presampledTable), err)
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, batchSize).Error; err != nil {
				return fmt.Errorf("inserting %d presampled rows: %w", len(rows), err)
			}
		}
		for z := 0; z < opts.SplitZoomLevels; z++ {
			if err := s.rebuildZoomTable(tx, z); err != nil {
				return fmt.Errorf("rebuilding zoom table %d: %w", z, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) truncatePresampled(tx *gorm.DB) error {
	if tx.Dialector.Name() == "postgres" {
		return tx.Exec("TRUNCATE TABLE " + s.table(presampledTable)).Error
	}
	return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&model.LabelPresampled{}).Error
}

func (s *SQLStore) rebuildZoomTable(tx *gorm.DB, zoomLevel int) error {
	name := s.ZoomTableName(zoomLevel)
	if err := tx.Exec("CREATE TABLE IF NOT EXISTS " + name + " (label_id INTEGER NOT NULL)").Error; err != nil {
		return err
	}
	if err := tx.Exec("DELETE FROM " + name).Error; err != nil {
		return err
	}
	return tx.Exec(
		"INSERT INTO "+name+" (label_id) SELECT label_id FROM "+s.table(presampledTable)+" WHERE zoom_level = ?",
		zoomLevel,
	).Error
}

// ZoomTableName returns the per-zoom split table name for zoomLevel.
func (s *SQLStore) ZoomTableName(zoomLevel int) string {
	return fmt.Sprintf(zoomTableTemplate, s.table(presampledTable), zoomLevel)
}

// ListPresampled returns every presampled row ordered by zoom level, then label id.
func (s *SQLStore) ListPresampled(ctx context.Context) ([]model.LabelPresampled, error) {
	var rows []model.LabelPresampled
	if err := s.db.WithContext(ctx).
		Order("zoom_level ASC, label_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// LabelsInBox returns the ids of labels visible at zoomLevel whose panorama
// lies strictly inside box.
func (s *SQLStore) LabelsInBox(ctx context.Context, zoomLevel int, box model.BoundingBox) ([]int, error) {
	var ids []int
	err := s.db.WithContext(ctx).
		Table(s.table(labelTable)+" AS l").
		Joins("JOIN "+s.table(presampledTable)+" lp ON lp.label_id = l.label_id").
		Where("lp.zoom_level = ?", zoomLevel).
		Where("l.panorama_lat > ? AND l.panorama_lat < ?", box.MinLat, box.MaxLat).
		Where("l.panorama_lng > ? AND l.panorama_lng < ?", box.MinLng, box.MaxLng).
		Order("l.label_id").
		Pluck("l.label_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("querying labels in box at zoom %d: %w", zoomLevel, err)
	}
	return ids, nil
}

// CreateLabelIndex adds the (panorama_lat, panorama_lng) index on label.
func (s *SQLStore) CreateLabelIndex(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Exec("CREATE INDEX IF NOT EXISTS " + labelIndexName + " ON " + s.table(labelTable) + " (panorama_lat, panorama_lng)").Error
	if err != nil {
		return fmt.Errorf("creating index %s: %w", labelIndexName, err)
	}
	return nil
}

func (s *SQLStore) DropLabelIndex(ctx context.Context) error {
	// Index names are schema scoped in Postgres, so qualify like a table.
	err := s.db.WithContext(ctx).Exec("DROP INDEX IF EXISTS " + s.table(labelIndexName)).Error
	if err != nil {
		return fmt.Errorf("dropping index %s: %w", labelIndexName, err)
	}
	return nil
}

// ListRoutes returns all routes, longest first.
func (s *SQLStore) ListRoutes(ctx context.Context) ([]model.Route, error) {
	var routes []model.Route
	if err := s.db.WithContext(ctx).
		Order("street_count DESC, route_id ASC").
		Find(&routes).Error; err != nil {
		return nil, fmt.Errorf("listing routes: %w", err)
	}
	return routes, nil
}

// ListMissionRegionIDs returns the distinct regions that already have a
// mission with the given label.
func (s *SQLStore) ListMissionRegionIDs(ctx context.Context, label string) ([]int, error) {
	var regionIDs []int
	err := s.db.WithContext(ctx).
		Model(&model.Mission{}).
		Where("label = ?", label).
		Distinct().
		Order("region_id").
		Pluck("region_id", &regionIDs).Error
	if err != nil {
		return nil, fmt.Errorf("listing %q mission regions: %w", label, err)
	}
	return regionIDs, nil
}

func (s *SQLStore) CreateMissions(ctx context.Context, missions []model.Mission) error {
	if len(missions) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(missions, missionBatchSize).Error; err != nil {
			return fmt.Errorf("inserting %d missions: %w", len(missions), err)
		}
		return nil
	})
}

// ListAssignedHitIDs returns the set of HIT ids that already have a route.
func (s *SQLStore) ListAssignedHitIDs(ctx context.Context) (map[string]bool, error) {
	var hitIDs []string
	if err := s.db.WithContext(ctx).
		Model(&model.AmtRouteAssignment{}).
		Distinct().
		Pluck("hit_id", &hitIDs).Error; err != nil {
		return nil, fmt.Errorf("listing assigned HITs: %w", err)
	}
	assigned := make(map[string]bool, len(hitIDs))
	for _, id := range hitIDs {
		assigned[id] = true
	}
	return assigned, nil
}

func (s *SQLStore) CreateRouteAssignments(ctx context.Context, assignments []model.AmtRouteAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(assignments, missionBatchSize).Error; err != nil {
			return fmt.Errorf("inserting %d route assignments: %w", len(assignments), err)
		}
		return nil
	})
}
