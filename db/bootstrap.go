package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"sidewalkd/model"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var ErrUnknownDriver = errors.New("unknown database driver")

var sqlOpen = sql.Open

// Options selects and configures the database behind a *gorm.DB.
type Options struct {
	Driver string
	DSN    string
	// Schema qualifies every table name (Postgres only), e.g. "sidewalk".
	Schema   string
	MaxConns int
	Debug    bool
}

// Open connects to the database described by opts. Table names are singular
// and, for Postgres, prefixed with the schema. The caller owns the returned
// handle and must release it with Close.
func Open(opts Options) (*gorm.DB, error) {
	logLevel := logger.Silent
	if opts.Debug {
		logLevel = logger.Info
	}
	newLogger := logger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true, // Don't include params in the SQL log
			Colorful:                  false,
		},
	)
	cfg := &gorm.Config{
		Logger:         newLogger,
		NamingStrategy: NamingStrategy(opts.Driver, opts.Schema),
	}

	var dialector gorm.Dialector
	var pgDB *sql.DB
	switch opts.Driver {
	case DriverPostgres:
		sqlDB, err := sqlOpen("postgres", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		if opts.MaxConns > 0 {
			sqlDB.SetMaxOpenConns(opts.MaxConns)
			sqlDB.SetMaxIdleConns(opts.MaxConns)
		}
		pgDB = sqlDB
		dialector = postgres.New(postgres.Config{Conn: sqlDB})
	case DriverSQLite:
		dialector = sqlite.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		if pgDB != nil {
			_ = pgDB.Close()
		}
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}
	if opts.Driver == DriverSQLite {
		// One connection keeps ":memory:" databases alive and serialises writers.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// NamingStrategy maps models onto the singular table names used by the
// labeling platform ("label", "mission", ...).
func NamingStrategy(driver, schemaName string) schema.NamingStrategy {
	ns := schema.NamingStrategy{SingularTable: true}
	if driver == DriverPostgres && schemaName != "" {
		ns.TablePrefix = schemaName + "."
	}
	return ns
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Bootstrap creates the schema and every table used by the tools. When seed
// is true and the label table is empty, a small demo dataset is loaded.
func Bootstrap(ctx context.Context, db *gorm.DB, schemaName string, seed bool) error {
	tx := db.WithContext(ctx)
	if tx.Dialector.Name() == DriverPostgres && schemaName != "" {
		if err := tx.Exec("CREATE SCHEMA IF NOT EXISTS " + schemaName).Error; err != nil {
			return fmt.Errorf("bootstrap: creating schema %s: %w", schemaName, err)
		}
	}
	if err := tx.AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	if !seed {
		log.Println("bootstrap: database schema created but no seed data loaded")
		return nil
	}

	var existing int64
	if err := tx.Model(&model.Label{}).Count(&existing).Error; err != nil {
		return fmt.Errorf("bootstrap: counting labels: %w", err)
	}
	if existing > 0 {
		log.Printf("bootstrap: %d labels already present, skipping seed data", existing)
		return nil
	}
	if err := tx.Transaction(func(tx *gorm.DB) error {
		return seedDemo(tx, DefaultDemo)
	}); err != nil {
		return fmt.Errorf("bootstrap: failed to load seed data: %w", err)
	}
	log.Println("bootstrap: completed and loaded seed data")
	return nil
}

// Demo sizes the generated seed dataset.
type Demo struct {
	Regions         int
	RoutesPerRegion int
	Labels          int
	Seed            int64
	Box             model.BoundingBox
}

// DefaultDemo scatters labels over central Washington, DC.
var DefaultDemo = Demo{
	Regions:         4,
	RoutesPerRegion: 3,
	Labels:          500,
	Seed:            1,
	Box:             model.BoundingBox{MinLat: 38.86, MaxLat: 38.96, MinLng: -77.10, MaxLng: -76.96},
}

func seedDemo(tx *gorm.DB, demo Demo) error {
	rng := rand.New(rand.NewSource(demo.Seed))

	regions := make([]model.Region, 0, demo.Regions)
	routes := make([]model.Route, 0, demo.Regions*demo.RoutesPerRegion)
	for r := 1; r <= demo.Regions; r++ {
		regions = append(regions, model.Region{RegionID: r, Description: fmt.Sprintf("region %d", r)})
		for i := 1; i <= demo.RoutesPerRegion; i++ {
			routes = append(routes, model.Route{
				RouteID:     (r-1)*demo.RoutesPerRegion + i,
				RegionID:    r,
				StreetCount: 1 + rng.Intn(40),
			})
		}
	}

	labels := make([]model.Label, 0, demo.Labels)
	severities := make([]model.ProblemSeverity, 0, demo.Labels)
	points := make([]model.LabelPoint, 0, demo.Labels)
	for id := 1; id <= demo.Labels; id++ {
		lat := demo.Box.MinLat + rng.Float64()*(demo.Box.MaxLat-demo.Box.MinLat)
		lng := demo.Box.MinLng + rng.Float64()*(demo.Box.MaxLng-demo.Box.MinLng)
		labels = append(labels, model.Label{
			LabelID:     id,
			LabelTypeID: model.LabelTypes[rng.Intn(len(model.LabelTypes))],
			PanoramaLat: lat,
			PanoramaLng: lng,
		})
		severities = append(severities, model.ProblemSeverity{ProblemSeverityID: id, LabelID: id, Severity: 1 + rng.Intn(5)})
		points = append(points, model.LabelPoint{LabelPointID: id, LabelID: id, Lat: lat, Lng: lng})
	}

	for _, batch := range []any{regions, routes, labels, severities, points} {
		if err := tx.CreateInBatches(batch, defaultBatchSize).Error; err != nil {
			return err
		}
	}
	return nil
}
