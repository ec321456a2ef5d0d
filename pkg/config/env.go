package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix starts every recognised environment variable.
const EnvPrefix = "ECHOAID_"

type envSetter func(c *Config, value string) error

func str(dst func(*Config) *string) envSetter {
	return func(c *Config, v string) error { *dst(c) = v; return nil }
}

func integer(dst func(*Config) *int) envSetter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func float(dst func(*Config) *float64) envSetter {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*dst(c) = f
		return nil
	}
}

func boolean(dst func(*Config) *bool) envSetter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

func duration(dst func(*Config) *time.Duration) envSetter {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = d
		return nil
	}
}

func list(dst func(*Config) *[]string) envSetter {
	return func(c *Config, v string) error {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst(c) = out
		return nil
	}
}

// envVars maps variable names, without the prefix, to config fields.
var envVars = map[string]envSetter{
	"HTTP_ADDR":             str(func(c *Config) *string { return &c.HTTP.Addr }),
	"HTTP_SHUTDOWN_TIMEOUT": duration(func(c *Config) *time.Duration { return &c.HTTP.ShutdownTimeout }),
	"HTTP_REPORT_RATE":      float(func(c *Config) *float64 { return &c.HTTP.ReportRate }),
	"HTTP_REPORT_BURST":     integer(func(c *Config) *int { return &c.HTTP.ReportBurst }),
	"HTTP_REQUEST_RATE":     float(func(c *Config) *float64 { return &c.HTTP.RequestRate }),
	"HTTP_REQUEST_BURST":    integer(func(c *Config) *int { return &c.HTTP.RequestBurst }),
	"HTTP_TRUSTED_PROXIES":  list(func(c *Config) *[]string { return &c.HTTP.TrustedProxies }),

	"BUILDING_SOURCE":               str(func(c *Config) *string { return &c.Building.Source }),
	"BUILDING_S3_REGION":            str(func(c *Config) *string { return &c.Building.S3.Region }),
	"BUILDING_S3_ENDPOINT":          str(func(c *Config) *string { return &c.Building.S3.Endpoint }),
	"BUILDING_S3_ACCESS_KEY_ID":     str(func(c *Config) *string { return &c.Building.S3.AccessKeyID }),
	"BUILDING_S3_SECRET_ACCESS_KEY": str(func(c *Config) *string { return &c.Building.S3.SecretAccessKey }),

	"CELLS_SIZE": float(func(c *Config) *float64 { return &c.Cells.CellSize }),

	"ROUTING_CONGESTION_WEIGHT": float(func(c *Config) *float64 { return &c.Routing.CongestionWeight }),
	"ROUTING_SEED_OCCUPANTS":    integer(func(c *Config) *int { return &c.Routing.SeedOccupants }),

	"SENSING_MIN_DEVICES":   integer(func(c *Config) *int { return &c.Sensing.MinDevices }),
	"SENSING_WINDOW":        duration(func(c *Config) *time.Duration { return &c.Sensing.Window }),
	"SENSING_MIN_INTENSITY": float(func(c *Config) *float64 { return &c.Sensing.MinIntensity }),
	"SENSING_COOLDOWN":      duration(func(c *Config) *time.Duration { return &c.Sensing.Cooldown }),

	"EVACUATION_STEP_INTERVAL": duration(func(c *Config) *time.Duration { return &c.Evacuation.StepInterval }),
	"EVACUATION_AUTO_MODE":     str(func(c *Config) *string { return &c.Evacuation.AutoMode }),

	"AUTH_ENABLED":   boolean(func(c *Config) *bool { return &c.Auth.Enabled }),
	"AUTH_SECRET":    str(func(c *Config) *string { return &c.Auth.Secret }),
	"AUTH_TOKEN_TTL": duration(func(c *Config) *time.Duration { return &c.Auth.TokenTTL }),

	"CORS_ALLOWED_ORIGINS":   list(func(c *Config) *[]string { return &c.CORS.AllowedOrigins }),
	"CORS_ALLOW_CREDENTIALS": boolean(func(c *Config) *bool { return &c.CORS.AllowCredentials }),

	"INFLUX_ENABLED": boolean(func(c *Config) *bool { return &c.Influx.Enabled }),
	"INFLUX_URL":     str(func(c *Config) *string { return &c.Influx.URL }),
	"INFLUX_TOKEN":   str(func(c *Config) *string { return &c.Influx.Token }),
	"INFLUX_ORG":     str(func(c *Config) *string { return &c.Influx.Org }),
	"INFLUX_BUCKET":  str(func(c *Config) *string { return &c.Influx.Bucket }),

	"LOG_LEVEL": str(func(c *Config) *string { return &c.Logging.Level }),
}

// ApplyEnv overrides fields from ECHOAID_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for name, set := range envVars {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		if err := set(c, v); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
	}
	return nil
}
