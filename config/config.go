// Package config loads bridge settings from YAML.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/uibridge/errors"
)

// Backends.
const (
	BackendStarlark = "starlark"
	BackendWasm     = "wasm"
)

// Config holds every tunable of a mounted bridge.
type Config struct {
	Input     InputConfig     `yaml:"input" json:"input"`
	Render    RenderConfig    `yaml:"render" json:"render"`
	Interp    InterpConfig    `yaml:"interpreter" json:"interpreter"`
	Log       LogConfig       `yaml:"log" json:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Mount     string          `yaml:"mount" json:"mount"`
}

// InputConfig tunes optimistic inputs.
type InputConfig struct {
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// RenderConfig tunes the render session.
type RenderConfig struct {
	StrictHooks       bool   `yaml:"strict_hooks" json:"strict_hooks"`
	RetainGenerations uint64 `yaml:"retain_generations" json:"retain_generations"`
}

// InterpConfig selects and limits the interpreter.
type InterpConfig struct {
	Backend          string `yaml:"backend" json:"backend"` // "starlark" | "wasm"
	WasmPath         string `yaml:"wasm_path,omitempty" json:"wasm_path,omitempty"`
	MaxSteps         uint64 `yaml:"max_steps,omitempty" json:"max_steps,omitempty"`
	MemoryLimitPages uint32 `yaml:"memory_limit_pages,omitempty" json:"memory_limit_pages,omitempty"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level" json:"level"`
	Development bool   `yaml:"development,omitempty" json:"development,omitempty"`
}

// TelemetryConfig enables OTLP export. An empty endpoint leaves telemetry
// on the global no-op providers.
type TelemetryConfig struct {
	Endpoint   string  `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Insecure   bool    `yaml:"insecure,omitempty" json:"insecure,omitempty"`
	SampleRate float64 `yaml:"sample_rate" json:"sample_rate"`
}

// Default returns the defaults every loaded file is merged onto.
func Default() Config {
	return Config{
		Mount:     "root",
		Input:     InputConfig{Debounce: 40 * time.Millisecond},
		Render:    RenderConfig{StrictHooks: true, RetainGenerations: 2},
		Interp:    InterpConfig{Backend: BackendStarlark},
		Log:       LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{SampleRate: 1},
	}
}

// Load reads a YAML file. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, fmt.Sprintf("read %s", path))
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Detail("parse config").
			Cause(err).
			Build()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var problems []string
	if c.Input.Debounce < 0 {
		problems = append(problems, "input.debounce must not be negative")
	}
	switch c.Interp.Backend {
	case BackendStarlark:
	case BackendWasm:
		if c.Interp.WasmPath == "" {
			problems = append(problems, "interpreter.wasm_path is required for the wasm backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("interpreter.backend %q is not one of starlark, wasm", c.Interp.Backend))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, fmt.Sprintf("log.level %q is not a zap level", c.Log.Level))
	}
	if r := c.Telemetry.SampleRate; r < 0 || r > 1 {
		problems = append(problems, fmt.Sprintf("telemetry.sample_rate %v is outside [0, 1]", r))
	}
	if c.Mount == "" {
		problems = append(problems, "mount must not be empty")
	}
	if len(problems) > 0 {
		return errors.InvalidInput(errors.PhaseConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Logger builds the zap logger described by c.Log.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// Marshal encodes c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
