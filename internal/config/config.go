// Package config loads magicball configuration.
//
// Sources, lowest precedence first:
//  1. Defaults declared in the embedded CUE schema (schema.cue)
//  2. An optional YAML file
//  3. Environment variables (MAGICBALL_*, OTEL_*)
//
// The YAML file is unified with the schema, so unknown keys, wrong types and
// out-of-range values are rejected before decoding.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// DefaultFile is read when no config path is given and it exists in the
// working directory.
const DefaultFile = "magicball.yaml"

// Config holds all application configuration.
type Config struct {
	Database      string          `json:"database"`
	LogLevel      string          `json:"log_level"`
	API           APIConfig       `json:"api"`
	DefaultAnswer string          `json:"default_answer"`
	Presets       []string        `json:"presets"`
	Timezone      string          `json:"timezone"`
	Telemetry     TelemetryConfig `json:"telemetry"`
}

// APIConfig configures the remote 8-ball API.
type APIConfig struct {
	BaseURL  string   `json:"base_url"`
	Question string   `json:"question"`
	Timeout  Duration `json:"timeout"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Endpoint    string `json:"endpoint"`
	Insecure    bool   `json:"insecure"`
	ServiceName string `json:"service_name"`
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats d as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Error is a schema violation with its CUE position, if known.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("config: %s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return "config: " + e.Message
}

// Default returns the schema defaults without reading files or environment.
func Default() (Config, error) {
	return fromMap(map[string]any{})
}

// Load reads configuration from path, then applies environment overrides.
//
// An empty path reads DefaultFile when it exists and otherwise uses
// defaults only. An explicit path that does not exist is an error.
func Load(path string) (Config, error) {
	raw := map[string]any{}

	file := path
	if file == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			file = DefaultFile
		}
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", file, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
		slog.Debug("config file loaded", "path", file)
	}

	cfg, err := fromMap(raw)
	if err != nil {
		return Config{}, err
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fromMap unifies raw with the schema and decodes the result.
func fromMap(raw map[string]any) (Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}

	data := ctx.Encode(raw)
	if err := data.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(data)
	if err := v.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return Config{}, formatCUEError(err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, formatCUEError(err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database = envStr("MAGICBALL_DB", c.Database)
	c.LogLevel = envStr("MAGICBALL_LOG_LEVEL", c.LogLevel)
	c.API.BaseURL = envStr("MAGICBALL_API_URL", c.API.BaseURL)
	c.API.Timeout = Duration(envDuration("MAGICBALL_API_TIMEOUT", c.API.Timeout.Std()))
	c.Timezone = envStr("MAGICBALL_TIMEZONE", c.Timezone)
	c.Telemetry.Endpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.Endpoint)
	c.Telemetry.ServiceName = envStr("OTEL_SERVICE_NAME", c.Telemetry.ServiceName)
}

// Validate checks cross-field constraints that the schema cannot express.
func (c Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("config: database is required")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("config: api.timeout must be positive")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("config: api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}
	if strings.TrimSpace(c.DefaultAnswer) == "" {
		return fmt.Errorf("config: default_answer must not be blank")
	}
	for i, p := range c.Presets {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("config: presets[%d] must not be blank", i)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone: %w", err)
	}
	return loc, nil
}

// SlogLevel returns LogLevel as a slog.Level, defaulting to Info.
func (c Config) SlogLevel() slog.Level {
	lvl, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", s)
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("config: %w", err)
	}

	first := errs[0]
	var pos token.Pos
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		pos = positions[0]
	}
	msg := first.Error()
	if len(errs) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(errs)-1)
	}
	return &Error{Message: msg, Pos: pos}
}

// IsSchemaError returns true if err is or wraps a schema *Error.
func IsSchemaError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		slog.Warn("ignoring invalid duration", "env", key, "value", v)
	}
	return defaultVal
}
