package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// ServiceConfig is the root configuration for the world service.
// Fields are pointers so a partial JSON file only overrides what it names;
// the Get* methods supply defaults for everything else.
type ServiceConfig struct {
	// Vehicle
	VehicleModel      *string `json:"vehicle_model,omitempty"`
	VehicleParamsPath *string `json:"vehicle_params_path,omitempty"`

	// Fusion
	TrajectoryStride    *int  `json:"trajectory_stride,omitempty"`
	DropStaleTrajectory *bool `json:"drop_stale_trajectory,omitempty"`

	// Outputs
	PublishInterval *string `json:"publish_interval,omitempty"` // duration string like "100ms"
	GRPCListen      *string `json:"grpc_listen,omitempty"`
	HTTPListen      *string `json:"http_listen,omitempty"`

	// Storage
	DBPath         *string `json:"db_path,omitempty"`
	RecordInterval *string `json:"record_interval,omitempty"` // duration string like "5s"

	// Feed
	FeedPath     *string `json:"feed_path,omitempty"`
	FeedBaudRate *int    `json:"feed_baud_rate,omitempty"`
}

// Defaults used when a field is not set.
const (
	DefaultVehicleModel     = "lincoln_mkz"
	DefaultTrajectoryStride = 10
	DefaultPublishInterval  = 100 * time.Millisecond
	DefaultRecordInterval   = 5 * time.Second
	DefaultGRPCListen       = "localhost:50051"
	DefaultHTTPListen       = ":8888"
	DefaultDBPath           = "simworld.db"
	DefaultFeedBaudRate     = 115200
)

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// LoadServiceConfig loads a ServiceConfig from a JSON file. The file must
// have a .json extension and be at most 1MB.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ServiceConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// envOverrides lists the SIMWORLD_* variables that may override file values.
type envOverrides struct {
	VehicleModel      *string `env:"SIMWORLD_VEHICLE_MODEL"`
	VehicleParamsPath *string `env:"SIMWORLD_VEHICLE_PARAMS"`
	TrajectoryStride  *int    `env:"SIMWORLD_TRAJECTORY_STRIDE"`
	DropStale         *bool   `env:"SIMWORLD_DROP_STALE_TRAJECTORY"`
	PublishInterval   *string `env:"SIMWORLD_PUBLISH_INTERVAL"`
	GRPCListen        *string `env:"SIMWORLD_GRPC_LISTEN"`
	HTTPListen        *string `env:"SIMWORLD_HTTP_LISTEN"`
	DBPath            *string `env:"SIMWORLD_DB_PATH"`
	RecordInterval    *string `env:"SIMWORLD_RECORD_INTERVAL"`
	FeedPath          *string `env:"SIMWORLD_FEED_PATH"`
	FeedBaudRate      *int    `env:"SIMWORLD_FEED_BAUD_RATE"`
}

// ApplyEnv overrides fields from SIMWORLD_* environment variables and
// re-validates the result.
func (c *ServiceConfig) ApplyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	override(&c.VehicleModel, o.VehicleModel)
	override(&c.VehicleParamsPath, o.VehicleParamsPath)
	override(&c.TrajectoryStride, o.TrajectoryStride)
	override(&c.DropStaleTrajectory, o.DropStale)
	override(&c.PublishInterval, o.PublishInterval)
	override(&c.GRPCListen, o.GRPCListen)
	override(&c.HTTPListen, o.HTTPListen)
	override(&c.DBPath, o.DBPath)
	override(&c.RecordInterval, o.RecordInterval)
	override(&c.FeedPath, o.FeedPath)
	override(&c.FeedBaudRate, o.FeedBaudRate)
	return c.Validate()
}

func override[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}

// Validate checks that the configuration values are usable.
func (c *ServiceConfig) Validate() error {
	if c.TrajectoryStride != nil && *c.TrajectoryStride <= 0 {
		return fmt.Errorf("trajectory_stride must be positive, got %d", *c.TrajectoryStride)
	}
	if c.FeedBaudRate != nil && *c.FeedBaudRate <= 0 {
		return fmt.Errorf("feed_baud_rate must be positive, got %d", *c.FeedBaudRate)
	}
	for name, v := range map[string]*string{
		"publish_interval": c.PublishInterval,
		"record_interval":  c.RecordInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}
	return nil
}

func getString(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func getDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetVehicleModel returns the vehicle model or the default.
func (c *ServiceConfig) GetVehicleModel() string {
	return getString(c.VehicleModel, DefaultVehicleModel)
}

// GetVehicleParamsPath returns the optional vehicle parameter file path.
func (c *ServiceConfig) GetVehicleParamsPath() string {
	return getString(c.VehicleParamsPath, "")
}

// GetTrajectoryStride returns the planning downsample stride or the default.
func (c *ServiceConfig) GetTrajectoryStride() int {
	if c.TrajectoryStride == nil {
		return DefaultTrajectoryStride
	}
	return *c.TrajectoryStride
}

// GetDropStaleTrajectory reports whether past planning points are skipped.
func (c *ServiceConfig) GetDropStaleTrajectory() bool {
	return c.DropStaleTrajectory != nil && *c.DropStaleTrajectory
}

// GetPublishInterval returns the frame publish interval or the default.
func (c *ServiceConfig) GetPublishInterval() time.Duration {
	return getDuration(c.PublishInterval, DefaultPublishInterval)
}

// GetRecordInterval returns the snapshot recording interval or the default.
func (c *ServiceConfig) GetRecordInterval() time.Duration {
	return getDuration(c.RecordInterval, DefaultRecordInterval)
}

// GetGRPCListen returns the gRPC listen address or the default.
func (c *ServiceConfig) GetGRPCListen() string {
	return getString(c.GRPCListen, DefaultGRPCListen)
}

// GetHTTPListen returns the HTTP listen address or the default.
func (c *ServiceConfig) GetHTTPListen() string {
	return getString(c.HTTPListen, DefaultHTTPListen)
}

// GetDBPath returns the SQLite path or the default.
func (c *ServiceConfig) GetDBPath() string {
	return getString(c.DBPath, DefaultDBPath)
}

// GetFeedPath returns the telemetry source path. Empty means stdin.
func (c *ServiceConfig) GetFeedPath() string {
	return getString(c.FeedPath, "")
}

// GetFeedBaudRate returns the serial baud rate or the default.
func (c *ServiceConfig) GetFeedBaudRate() int {
	if c.FeedBaudRate == nil {
		return DefaultFeedBaudRate
	}
	return *c.FeedBaudRate
}
