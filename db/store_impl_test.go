package db

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"sidewalkd/model"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := Open(Options{Driver: DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, Bootstrap(context.Background(), db, "", false))
	return db
}

type testLabel struct {
	id       int
	typ      model.LabelType
	severity int
	lat, lng float64
}

// seedLabels inserts labels together with their severity and point rows.
func seedLabels(t *testing.T, db *gorm.DB, labels ...testLabel) {
	for _, l := range labels {
		require.NoError(t, db.Create(&model.Label{
			LabelID: l.id, LabelTypeID: l.typ, PanoramaLat: l.lat, PanoramaLng: l.lng,
		}).Error)
		require.NoError(t, db.Create(&model.ProblemSeverity{LabelID: l.id, Severity: l.severity}).Error)
		require.NoError(t, db.Create(&model.LabelPoint{LabelID: l.id, Lat: l.lat, Lng: l.lng}).Error)
	}
}

func TestCountLabelsByType(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewSQLStore(db)

	seedLabels(t, db,
		testLabel{id: 1, typ: model.CurbRamp, severity: 3},
		testLabel{id: 2, typ: model.CurbRamp, severity: 1},
		testLabel{id: 3, typ: model.Obstacle, severity: 5},
	)
	// A label without a point is not countable.
	require.NoError(t, db.Create(&model.Label{LabelID: 4, LabelTypeID: model.Obstacle}).Error)
	require.NoError(t, db.Create(&model.ProblemSeverity{LabelID: 4, Severity: 2}).Error)
	// A second severity row must not double count label 1.
	require.NoError(t, db.Create(&model.ProblemSeverity{LabelID: 1, Severity: 4}).Error)

	counts, err := store.CountLabelsByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[model.LabelType]int{model.CurbRamp: 2, model.Obstacle: 1}, counts)
}

func TestListLabelsBySeverity(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewSQLStore(db)

	seedLabels(t, db,
		testLabel{id: 10, typ: model.SurfaceProblem, severity: 2},
		testLabel{id: 11, typ: model.SurfaceProblem, severity: 5},
		testLabel{id: 12, typ: model.SurfaceProblem, severity: 2},
		testLabel{id: 13, typ: model.NoSidewalk, severity: 5},
	)
	require.NoError(t, db.Create(&model.ProblemSeverity{LabelID: 10, Severity: 4}).Error)

	t.Run("orders by descending severity then label id", func(t *testing.T) {
		labels, err := store.ListLabelsBySeverity(ctx, model.SurfaceProblem)
		require.NoError(t, err)
		want := []model.RankedLabel{
			{LabelID: 11, Severity: 5},
			{LabelID: 10, Severity: 4},
			{LabelID: 12, Severity: 2},
		}
		if diff := cmp.Diff(want, labels); diff != "" {
			t.Errorf("ListLabelsBySeverity mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("returns empty for type without labels", func(t *testing.T) {
		labels, err := store.ListLabelsBySeverity(ctx, model.Occlusion)
		require.NoError(t, err)
		assert.Empty(t, labels)
	})

	t.Run("rejects unknown label type", func(t *testing.T) {
		_, err := store.ListLabelsBySeverity(ctx, model.LabelType(42))
		require.ErrorIs(t, err, model.ErrInvalidLabelType)
	})
}

func TestReplacePresampled(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewSQLStore(db)

	first := []model.LabelPresampled{{LabelID: 1, ZoomLevel: 0}, {LabelID: 1, ZoomLevel: 1}, {LabelID: 2, ZoomLevel: 1}}
	require.NoError(t, store.ReplacePresampled(ctx, first, WriteOptions{BatchSize: 2}))

	got, err := store.ListPresampled(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(first, got); diff != "" {
		t.Errorf("first write mismatch (-want +got):\n%s", diff)
	}

	t.Run("second write replaces previous rows", func(t *testing.T) {
		second := []model.LabelPresampled{{LabelID: 3, ZoomLevel: 1}}
		require.NoError(t, store.ReplacePresampled(ctx, second, WriteOptions{}))

		got, err := store.ListPresampled(ctx)
		require.NoError(t, err)
		assert.Equal(t, second, got)
	})

	t.Run("failed insert rolls back the truncate", func(t *testing.T) {
		dup := []model.LabelPresampled{{LabelID: 7, ZoomLevel: 0}, {LabelID: 7, ZoomLevel: 0}}
		require.Error(t, store.ReplacePresampled(ctx, dup, WriteOptions{}))

		got, err := store.ListPresampled(ctx)
		require.NoError(t, err)
		assert.Equal(t, []model.LabelPresampled{{LabelID: 3, ZoomLevel: 1}}, got)
	})

	t.Run("split tables hold one zoom level each", func(t *testing.T) {
		require.NoError(t, store.ReplacePresampled(ctx, first, WriteOptions{SplitZoomLevels: 2}))

		var z0, z1 []int
		require.NoError(t, db.Table(store.ZoomTableName(0)).Order("label_id").Pluck("label_id", &z0).Error)
		require.NoError(t, db.Table(store.ZoomTableName(1)).Order("label_id").Pluck("label_id", &z1).Error)
		assert.Equal(t, []int{1}, z0)
		assert.Equal(t, []int{1, 2}, z1)
	})
}

func TestLabelsInBoxAndIndex(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewSQLStore(db)

	seedLabels(t, db,
		testLabel{id: 1, typ: model.CurbRamp, severity: 1, lat: 38.90, lng: -77.2},
		testLabel{id: 2, typ: model.CurbRamp, severity: 1, lat: 38.90, lng: -76.5},
		testLabel{id: 3, typ: model.CurbRamp, severity: 1, lat: 38.91, lng: -77.3},
	)
	require.NoError(t, store.ReplacePresampled(ctx, []model.LabelPresampled{
		{LabelID: 1, ZoomLevel: 6}, {LabelID: 2, ZoomLevel: 6}, {LabelID: 3, ZoomLevel: 5},
	}, WriteOptions{}))

	box := model.BoundingBox{MinLat: 38.87, MaxLat: 38.95, MinLng: -77.5, MaxLng: -77}
	ids, err := store.LabelsInBox(ctx, 6, box)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids)

	require.NoError(t, store.CreateLabelIndex(ctx))
	require.NoError(t, store.CreateLabelIndex(ctx), "creating twice is a no-op")
	assert.True(t, db.Migrator().HasIndex(&model.Label{}, labelIndexName))

	require.NoError(t, store.DropLabelIndex(ctx))
	require.NoError(t, store.DropLabelIndex(ctx), "dropping a missing index is a no-op")
	assert.False(t, db.Migrator().HasIndex(&model.Label{}, labelIndexName))
}

func TestMissionsAndAssignments(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewSQLStore(db)

	require.NoError(t, db.Create(&[]model.Route{
		{RouteID: 1, RegionID: 10, StreetCount: 3},
		{RouteID: 2, RegionID: 20, StreetCount: 9},
		{RouteID: 3, RegionID: 10, StreetCount: 9},
	}).Error)

	routes, err := store.ListRoutes(ctx)
	require.NoError(t, err)
	ids := make([]int, 0, len(routes))
	for _, r := range routes {
		ids = append(ids, r.RouteID)
	}
	assert.Equal(t, []int{2, 3, 1}, ids)

	require.NoError(t, store.CreateMissions(ctx, []model.Mission{
		{RegionID: 20, Label: "mturk-mission", Level: 1},
		{RegionID: 20, Label: "mturk-mission", Level: 2},
		{RegionID: 10, Label: "other", Level: 1},
	}))
	regions, err := store.ListMissionRegionIDs(ctx, "mturk-mission")
	require.NoError(t, err)
	assert.Equal(t, []int{20}, regions)

	require.NoError(t, store.CreateRouteAssignments(ctx, []model.AmtRouteAssignment{{HitID: "2", RouteID: 2}}))
	assigned, err := store.ListAssignedHitIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"2": true}, assigned)

	assert.NoError(t, store.CreateMissions(ctx, nil))
	assert.NoError(t, store.CreateRouteAssignments(ctx, nil))
}

func TestPing(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, NewSQLStore(db).Ping(context.Background()))

	var nilStore *SQLStore
	assert.ErrorIs(t, nilStore.Ping(context.Background()), ErrStoreNotInitialized)
}

func TestNamingStrategy(t *testing.T) {
	pg := NamingStrategy(DriverPostgres, "sidewalk")
	assert.Equal(t, "sidewalk.label_presampled", pg.TableName("LabelPresampled"))
	assert.Equal(t, "sidewalk.amt_route_assignment", pg.TableName("AmtRouteAssignment"))

	lite := NamingStrategy(DriverSQLite, "sidewalk")
	assert.Equal(t, "problem_severity", lite.TableName("ProblemSeverity"))

	_, err := Open(Options{Driver: "oracle"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestBootstrapSeed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	require.NoError(t, Bootstrap(ctx, db, "", true))
	var labels int64
	require.NoError(t, db.Model(&model.Label{}).Count(&labels).Error)
	assert.EqualValues(t, DefaultDemo.Labels, labels)

	// Seeding again leaves the data alone.
	require.NoError(t, Bootstrap(ctx, db, "", true))
	require.NoError(t, db.Model(&model.Label{}).Count(&labels).Error)
	assert.EqualValues(t, DefaultDemo.Labels, labels)

	counts, err := NewSQLStore(db).CountLabelsByType(ctx)
	require.NoError(t, err)
	total := 0
	for typ, n := range counts {
		assert.True(t, typ.IsValid())
		total += n
	}
	assert.Equal(t, DefaultDemo.Labels, total)
}
