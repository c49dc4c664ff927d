package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sidewalkd/db"
	"sidewalkd/model"
	"sidewalkd/thinning"
)

const (
	envPrefix      = "SIDEWALK"
	defaultEnvFile = ".env"
	// finestZoom as bench.zoom_level selects the last of thinning.zoom_levels.
	finestZoom = -1
)

// Config captures the settings shared by every sidewalkd tool.
type Config struct {
	DB       DBConfig       `mapstructure:"db"`
	Log      LogConfig      `mapstructure:"log"`
	Thinning ThinningConfig `mapstructure:"thinning"`
	Bench    BenchConfig    `mapstructure:"bench"`
}

type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	Schema   string `mapstructure:"schema"`
	MaxConns int    `mapstructure:"max_conns"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ThinningConfig struct {
	ZoomLevels     int     `mapstructure:"zoom_levels"`
	SamplingDegree float64 `mapstructure:"sampling_degree"`
	Mode           string  `mapstructure:"mode"`
	BatchSize      int     `mapstructure:"batch_size"`
	SplitTables    bool    `mapstructure:"split_tables"`
	DryRun         bool    `mapstructure:"dry_run"`
}

type BenchConfig struct {
	Iterations int     `mapstructure:"iterations"`
	ZoomLevel  int     `mapstructure:"zoom_level"`
	MinLat     float64 `mapstructure:"min_lat"`
	MaxLat     float64 `mapstructure:"max_lat"`
	MinLng     float64 `mapstructure:"min_lng"`
	MaxLng     float64 `mapstructure:"max_lng"`
	KeepIndex  bool    `mapstructure:"keep_index"`
}

// New returns a viper instance with defaults and environment binding set up.
// Keys map to SIDEWALK_<SECTION>_<KEY>, e.g. SIDEWALK_DB_HOST.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // binds environment variables to viper config

	v.SetDefault("db.driver", db.DriverPostgres)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.path", "sidewalk.db")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5433)
	v.SetDefault("db.user", "sidewalk")
	v.SetDefault("db.password", "sidewalk")
	v.SetDefault("db.name", "sidewalk")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.schema", "sidewalk")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	d := thinning.DefaultOptions
	v.SetDefault("thinning.zoom_levels", d.ZoomLevels)
	v.SetDefault("thinning.sampling_degree", d.SamplingDegree)
	v.SetDefault("thinning.mode", string(d.Mode))
	v.SetDefault("thinning.batch_size", d.BatchSize)
	v.SetDefault("thinning.split_tables", false)
	v.SetDefault("thinning.dry_run", false)

	b := thinning.DefaultBenchOptions
	v.SetDefault("bench.iterations", b.Iterations)
	v.SetDefault("bench.zoom_level", finestZoom)
	v.SetDefault("bench.min_lat", b.Box.MinLat)
	v.SetDefault("bench.max_lat", b.Box.MaxLat)
	v.SetDefault("bench.min_lng", b.Box.MinLng)
	v.SetDefault("bench.max_lng", b.Box.MaxLng)
	v.SetDefault("bench.keep_index", false)
	return v
}

// AddFlags registers the connection and logging flags on cmd and binds them
// to v. Flags take precedence over the environment and the config file.
func AddFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.PersistentFlags()
	f.String("config", "", "Path to a YAML config file")
	f.String("env-file", defaultEnvFile, "Path to a .env file loaded before reading the environment")
	f.String("db-driver", db.DriverPostgres, "Database driver: postgres or sqlite")
	f.String("db-dsn", "", "Full database DSN; overrides the individual connection flags")
	f.String("db-path", "sidewalk.db", "Path to the SQLite database file")
	f.String("db-schema", "sidewalk", "Postgres schema holding the sidewalk tables")
	f.String("log-level", "info", "Log level: debug, info, warn or error")
	f.String("log-format", "json", "Log format: json or console")

	bind(v, cmd, "db.driver", "db-driver")
	bind(v, cmd, "db.dsn", "db-dsn")
	bind(v, cmd, "db.path", "db-path")
	bind(v, cmd, "db.schema", "db-schema")
	bind(v, cmd, "log.level", "log-level")
	bind(v, cmd, "log.format", "log-format")
}

func bind(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if err := v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", flag, err))
	}
}

// BindFlags binds each viper key to the named local flag of cmd.
func BindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, flag := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", flag, err))
		}
	}
}

// Load reads the optional .env and config files named by cmd's flags and
// returns the validated configuration.
func Load(cmd *cobra.Command, v *viper.Viper) (*Config, error) {
	if err := loadEnvFile(flagValue(cmd, "env-file")); err != nil {
		return nil, err
	}
	if cfgFile := flagValue(cmd, "config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	}
	return FromViper(v)
}

func flagValue(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DB.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("%w: %q", db.ErrUnknownDriver, c.DB.Driver)
	}
	if _, err := c.ThinningOptions(); err != nil {
		return err
	}
	if z := c.Bench.ZoomLevel; z >= c.Thinning.ZoomLevels || z < finestZoom {
		return fmt.Errorf("%w: bench zoom %d with %d zoom levels", thinning.ErrZoomOutOfRange, z, c.Thinning.ZoomLevels)
	}
	return nil
}

// ConnString returns the connection string for the configured driver. An explicit
// db.dsn always wins.
func (c DBConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.Driver == db.DriverSQLite {
		return c.Path
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	return u.String()
}

func (c *Config) DBOptions() db.Options {
	return db.Options{
		Driver:   c.DB.Driver,
		DSN:      c.DB.ConnString(),
		Schema:   c.DB.Schema,
		MaxConns: c.DB.MaxConns,
		Debug:    c.Log.Level == "debug",
	}
}

// ThinningOptions converts the thinning section, rejecting values the
// budget calculator cannot use.
func (c *Config) ThinningOptions() (thinning.Options, error) {
	t := c.Thinning
	opts := thinning.Options{
		ZoomLevels:     t.ZoomLevels,
		SamplingDegree: t.SamplingDegree,
		Mode:           thinning.Mode(t.Mode),
		BatchSize:      t.BatchSize,
		SplitTables:    t.SplitTables,
		DryRun:         t.DryRun,
	}
	if opts.ZoomLevels < 1 {
		return opts, fmt.Errorf("%w: %d", thinning.ErrInvalidZoomLevels, opts.ZoomLevels)
	}
	if !(opts.SamplingDegree > 0 && opts.SamplingDegree < 1) {
		return opts, fmt.Errorf("%w: %v", thinning.ErrInvalidSamplingDegree, opts.SamplingDegree)
	}
	if !opts.Mode.IsValid() {
		return opts, fmt.Errorf("unknown thinning mode %q", t.Mode)
	}
	if opts.BatchSize < 1 {
		return opts, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	return opts, nil
}

// BenchOptions converts the bench section. A negative zoom level resolves to
// the finest level of the thinning configuration.
func (c *Config) BenchOptions() thinning.BenchOptions {
	b := c.Bench
	zoom := b.ZoomLevel
	if zoom < 0 {
		zoom = c.Thinning.ZoomLevels - 1
	}
	return thinning.BenchOptions{
		Iterations: b.Iterations,
		ZoomLevel:  zoom,
		Box:        model.BoundingBox{MinLat: b.MinLat, MaxLat: b.MaxLat, MinLng: b.MinLng, MaxLng: b.MaxLng},
		KeepIndex:  b.KeepIndex,
	}
}
