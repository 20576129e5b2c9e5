package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BBox represents a geographic bounding box
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
	IsSet                          bool
}

// Contains checks if a point is within the bounding box
func (b *BBox) Contains(lat, lon float64) bool {
	if !b.IsSet {
		return true
	}
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// ParseBBox parses a bbox string in format "minlon,minlat,maxlon,maxlat"
func ParseBBox(s string) (*BBox, error) {
	if s == "" {
		return &BBox{IsSet: false}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values: minlon,minlat,maxlon,maxlat")
	}

	var coords [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox coordinate %q: %w", p, err)
		}
		coords[i] = v
	}

	bbox := &BBox{
		MinLon: coords[0],
		MinLat: coords[1],
		MaxLon: coords[2],
		MaxLat: coords[3],
		IsSet:  true,
	}

	if bbox.MinLon > bbox.MaxLon {
		return nil, fmt.Errorf("minlon (%f) must be <= maxlon (%f)", bbox.MinLon, bbox.MaxLon)
	}
	if bbox.MinLat > bbox.MaxLat {
		return nil, fmt.Errorf("minlat (%f) must be <= maxlat (%f)", bbox.MinLat, bbox.MaxLat)
	}

	return bbox, nil
}

// ColumnNames maps the nine node columns onto their database names
type ColumnNames struct {
	ID        string `yaml:"id"`
	Version   string `yaml:"version"`
	UID       string `yaml:"uid"`
	Timestamp string `yaml:"timestamp"`
	Changeset string `yaml:"changeset"`
	Tags      string `yaml:"tags"`
	Longitude string `yaml:"lon"`
	Latitude  string `yaml:"lat"`
	Geometry  string `yaml:"geom"`
}

// DefaultColumnNames returns the column names the import DDL creates
func DefaultColumnNames() ColumnNames {
	return ColumnNames{
		ID:        "id",
		Version:   "version",
		UID:       "uid",
		Timestamp: "timestamp",
		Changeset: "changeset",
		Tags:      "tags",
		Longitude: "lon",
		Latitude:  "lat",
		Geometry:  "geom",
	}
}

// Config holds the global configuration shared by all commands
type Config struct {
	// Input settings
	InputFile string `yaml:"-"`    // Positional argument, never read from file
	Bounds    string `yaml:"bbox"` // Geographic filter: minlon,minlat,maxlon,maxlat
	BBox      *BBox  `yaml:"-"`    // Parsed form of Bounds

	// Database settings
	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBName     string `yaml:"db_name"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBSchema   string `yaml:"db_schema"`

	// Table layout
	Table   string      `yaml:"table"`
	Columns ColumnNames `yaml:"columns"`

	// Geometry settings
	Projection int `yaml:"projection"` // Stored geometry SRID (4326 or 3857)

	// Processing settings
	Workers   int `yaml:"workers"`
	BatchSize int `yaml:"batch_size"` // Rows per statement batch during updates

	// Import hooks
	FlexScript string `yaml:"flex_script"` // Lua script filtering/transforming nodes

	// Replication settings
	ReplicationURL string `yaml:"replication_url"` // Base URL of the diff server
	StateFile      string `yaml:"state_file"`      // Local file tracking the applied sequence

	// Tile expiry settings
	ExpireOutput  string `yaml:"expire_output"` // Path to expire tiles output file
	ExpireMinZoom int    `yaml:"expire_min_zoom"`
	ExpireMaxZoom int    `yaml:"expire_max_zoom"`

	// Logging and metrics
	Verbose         bool          `yaml:"verbose"`
	LogFile         string        `yaml:"log_file"`
	MetricsInterval time.Duration `yaml:"-"` // Flag-only; YAML has no duration syntax
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DBHost:     "localhost",
		DBPort:     5432,
		DBName:     "osm",
		DBUser:     "postgres",
		DBPassword: "",
		DBSchema:   "public",
		Table:      "osm_nodes",
		Columns:    DefaultColumnNames(),
		Projection: 4326, // WGS84 by default
		Workers:    runtime.NumCPU(),
		BatchSize:  10000,

		ExpireMinZoom: 14,
		ExpireMaxZoom: 14,

		LogFile:         "",               // No file logging by default
		MetricsInterval: 30 * time.Second, // Log system metrics every 30 seconds
	}
}

// LoadFile reads a YAML configuration file over the defaults
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if cfg.Bounds != "" {
		bbox, err := ParseBBox(cfg.Bounds)
		if err != nil {
			return nil, err
		}
		cfg.BBox = bbox
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Table == "" {
		return fmt.Errorf("table name is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}
	if c.Projection != 4326 && c.Projection != 3857 {
		return fmt.Errorf("projection must be 4326 or 3857, got %d", c.Projection)
	}
	if c.ExpireMinZoom > c.ExpireMaxZoom {
		return fmt.Errorf("expire-min-zoom (%d) must be <= expire-max-zoom (%d)", c.ExpireMinZoom, c.ExpireMaxZoom)
	}
	return nil
}
