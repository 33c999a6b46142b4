package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/CTAG07/Cadence/pkg/compose"
)

// Batch modes.
const (
	ModeJoint = "joint"
	ModeSolo  = "solo"
)

var validate = validator.New()

// Config is the configuration of the cadence binary.
type Config struct {
	LogLevel     string         `json:"log_level" yaml:"log_level" default:"info" validate:"oneof=debug info warn error"`
	InputDir     string         `json:"input_dir" yaml:"input_dir" default:"output" validate:"required"`
	OutputDir    string         `json:"output_dir" yaml:"output_dir" default:"melodies" validate:"required"`
	ArchivePath  string         `json:"archive_path" yaml:"archive_path"` // empty disables the archive
	Mode         string         `json:"mode" yaml:"mode" default:"joint" validate:"oneof=joint solo"`
	RenderMIDI   bool           `json:"render_midi" yaml:"render_midi"`
	ExportChains bool           `json:"export_chains" yaml:"export_chains"` // write the learned model next to the output
	Tempo        float64        `json:"tempo_bpm" yaml:"tempo_bpm" default:"120" validate:"gt=0"`
	Generation   compose.Config `json:"generation" yaml:"generation"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	return cfg
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig reads the configuration at path, as YAML when the extension says
// so and as JSON otherwise. If the file doesn't exist, it creates one with
// default values. Fields left out of the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	config := &Config{}

	file, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		config = DefaultConfig()
		if err = writeConfig(path, config); err != nil {
			// Defaults are still usable without a file on disk.
			fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
		}
		return config, nil
	}

	if isYAML(path) {
		err = yaml.Unmarshal(file, config)
	} else {
		err = json.Unmarshal(file, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err = defaults.Set(config); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func writeConfig(path string, config *Config) error {
	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

// Validate checks the binary settings and the generation block.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}
		errs := make([]error, 0, len(validationErrors))
		for _, fe := range validationErrors {
			errs = append(errs, fmt.Errorf("%s: failed %q validation", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return c.Generation.Validate()
}

// newLogger builds the text logger of the binary. verbose forces debug
// level.
func newLogger(w io.Writer, level string, verbose bool) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}
