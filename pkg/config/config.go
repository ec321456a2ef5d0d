// Package config loads server settings from a YAML file, an optional .env
// file and ECHOAID_* environment variables, in increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/echoaid/pkg/api/middleware"
	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/cells"
	"github.com/dd0wney/echoaid/pkg/evacuation"
	"github.com/dd0wney/echoaid/pkg/logging"
	"github.com/dd0wney/echoaid/pkg/routing"
	"github.com/dd0wney/echoaid/pkg/sensing"
	"github.com/dd0wney/echoaid/pkg/telemetry"
	"github.com/dd0wney/echoaid/pkg/validation"
)

// Config is the full server configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Building   BuildingConfig   `yaml:"building"`
	Cells      CellsConfig      `yaml:"cells"`
	Routing    RoutingConfig    `yaml:"routing"`
	Sensing    SensingConfig    `yaml:"sensing"`
	Evacuation EvacuationConfig `yaml:"evacuation"`
	Auth       AuthConfig       `yaml:"auth"`
	CORS       CORSConfig       `yaml:"cors"`
	Influx     InfluxConfig     `yaml:"influx"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int           `yaml:"max_body_bytes"`
	// ReportRate and ReportBurst limit shaking reports per device.
	ReportRate  float64 `yaml:"report_rate"`
	ReportBurst int     `yaml:"report_burst"`
	// RequestRate and RequestBurst limit all requests per client address.
	RequestRate  float64 `yaml:"request_rate"`
	RequestBurst int     `yaml:"request_burst"`
	// TrustedProxies are CIDRs whose X-Forwarded-For is believed.
	TrustedProxies  []string `yaml:"trusted_proxies"`
	GraphQLMaxDepth int      `yaml:"graphql_max_depth"`
}

type BuildingConfig struct {
	// Source is a local path or s3://bucket/key; .sz means snappy.
	Source string   `yaml:"source"`
	S3     S3Config `yaml:"s3"`
}

type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type CellsConfig struct {
	CellSize float64 `yaml:"cell_size"`
	Width    float64 `yaml:"width"`
	Height   float64 `yaml:"height"`
}

type RoutingConfig struct {
	// CongestionWeight of zero selects the default; negative disables balancing.
	CongestionWeight float64 `yaml:"congestion_weight"`
	// SeedOccupants simulated evacuees are routed at startup.
	SeedOccupants int `yaml:"seed_occupants"`
}

type SensingConfig struct {
	MinDevices   int           `yaml:"min_devices"`
	Window       time.Duration `yaml:"window"`
	MinIntensity float64       `yaml:"min_intensity"`
	Cooldown     time.Duration `yaml:"cooldown"`
}

type EvacuationConfig struct {
	StepInterval time.Duration `yaml:"step_interval"`
	AutoMode     string        `yaml:"auto_mode"`
}

type AuthConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

type InfluxConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	sc := sensing.DefaultConfig()
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
			ReportRate:      10,
			ReportBurst:     20,
			RequestRate:     50,
			RequestBurst:    100,
			GraphQLMaxDepth: 4,
		},
		Building: BuildingConfig{Source: "data/science-hall.yaml"},
		Cells:    CellsConfig{CellSize: cells.DefaultCellSize, Width: cells.DefaultWidth, Height: cells.DefaultHeight},
		Routing:  RoutingConfig{CongestionWeight: routing.DefaultCongestionWeight, SeedOccupants: 20},
		Sensing: SensingConfig{
			MinDevices:   sc.MinDevices,
			Window:       sc.Window,
			MinIntensity: sc.MinIntensity,
			Cooldown:     sc.Cooldown,
		},
		Evacuation: EvacuationConfig{StepInterval: evacuation.DefaultStepInterval, AutoMode: string(routing.ModeGlobal)},
		Auth:       AuthConfig{Issuer: "echoaid", TokenTTL: 12 * time.Hour},
		Influx:     InfluxConfig{Org: "echoaid", Bucket: "echoaid"},
		Logging:    LoggingConfig{Level: "info"},
	}
}

// Load reads path (optional), then envFile (optional, missing is fine),
// then the process environment, and validates the result.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.Decode(data); err != nil {
			return nil, err
		}
	}
	if err := LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode overlays YAML onto c. Unknown keys are rejected.
func (c *Config) Decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// LoadEnvFile exports the variables in a dotenv file without overriding
// ones already set. An empty name or a missing file is not an error.
func LoadEnvFile(name string) error {
	if name == "" {
		return nil
	}
	if _, err := os.Stat(name); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(name); err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	return nil
}

// Validate checks every section and reports all failures at once.
func (c *Config) Validate() error {
	http := validation.NewConfigValidator("http").
		Required("addr", c.HTTP.Addr).
		MinDuration("shutdown_timeout", c.HTTP.ShutdownTimeout, 0).
		Positive("max_body_bytes", c.HTTP.MaxBodyBytes).
		NonNegativeFloat("report_rate", c.HTTP.ReportRate).
		When(c.HTTP.ReportRate > 0, func(cv *validation.ConfigValidator) {
			cv.Positive("report_burst", c.HTTP.ReportBurst)
		}).
		NonNegativeFloat("request_rate", c.HTTP.RequestRate).
		When(c.HTTP.RequestRate > 0, func(cv *validation.ConfigValidator) {
			cv.Positive("request_burst", c.HTTP.RequestBurst)
		}).
		Positive("graphql_max_depth", c.HTTP.GraphQLMaxDepth).
		Custom("trusted_proxies", func() error {
			_, err := middleware.ParseTrustedProxies(c.HTTP.TrustedProxies)
			return err
		})

	bld := validation.NewConfigValidator("building").Required("source", c.Building.Source)

	grid := validation.NewConfigValidator("cells").
		PositiveFloat("cell_size", c.Cells.CellSize).
		PositiveFloat("width", c.Cells.Width).
		PositiveFloat("height", c.Cells.Height)

	rt := validation.NewConfigValidator("routing").
		Custom("seed_occupants", func() error {
			if c.Routing.SeedOccupants < 0 {
				return fmt.Errorf("must be non-negative, got %d", c.Routing.SeedOccupants)
			}
			return nil
		})

	sn := validation.NewConfigValidator("sensing").
		Custom("thresholds", func() error { return c.SensingConfig().Validate() })

	ev := validation.NewConfigValidator("evacuation").
		OneOf("auto_mode", c.Evacuation.AutoMode, []string{string(routing.ModeGlobal), string(routing.ModeLocal)})

	au := validation.NewConfigValidator("auth").
		When(c.Auth.Enabled, func(cv *validation.ConfigValidator) {
			cv.Required("secret", c.Auth.Secret).
				Custom("secret", func() error {
					if len(c.Auth.Secret) < 32 {
						return errors.New("must be at least 32 bytes")
					}
					return nil
				}).
				MinDuration("token_ttl", c.Auth.TokenTTL, time.Minute)
		})

	in := validation.NewConfigValidator("influx").
		When(c.Influx.Enabled, func(cv *validation.ConfigValidator) {
			cv.URL("url", c.Influx.URL).Required("org", c.Influx.Org).Required("bucket", c.Influx.Bucket)
		})

	lg := validation.NewConfigValidator("logging").
		OneOf("level", c.Logging.Level, []string{"debug", "info", "warn", "error", "DEBUG", "INFO", "WARN", "ERROR"})

	return validation.ValidateAll(http, bld, grid, rt, sn, ev, au, in, lg)
}

// Grid builds the cell grid.
func (c *Config) Grid() (*cells.Grid, error) {
	return cells.NewGrid(c.Cells.CellSize, c.Cells.Width, c.Cells.Height)
}

// SensingConfig converts the sensing section.
func (c *Config) SensingConfig() sensing.Config {
	return sensing.Config{
		MinDevices:   c.Sensing.MinDevices,
		Window:       c.Sensing.Window,
		MinIntensity: c.Sensing.MinIntensity,
		Cooldown:     c.Sensing.Cooldown,
	}
}

// S3Options converts the building S3 section.
func (c *Config) S3Options() building.S3Options {
	return building.S3Options(c.Building.S3)
}

// InfluxOptions converts the influx section.
func (c *Config) InfluxOptions() telemetry.Options {
	return telemetry.Options{URL: c.Influx.URL, Token: c.Influx.Token, Org: c.Influx.Org, Bucket: c.Influx.Bucket}
}

// LogLevel parses the logging level.
func (c *Config) LogLevel() logging.Level {
	return logging.ParseLevel(c.Logging.Level)
}
