package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/CTAG07/Cadence/pkg/compose"
)

func TestLoadConfigWritesDefaults(t *testing.T) {
	for _, name := range []string{"cadence.json", "cadence.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			cfg, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, DefaultConfig(), cfg)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			var written Config
			if isYAML(path) {
				require.NoError(t, yaml.Unmarshal(data, &written))
			} else {
				require.NoError(t, json.Unmarshal(data, &written))
			}
			assert.Equal(t, *cfg, written)

			reloaded, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, reloaded)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "output", cfg.InputDir)
	assert.Equal(t, "melodies", cfg.OutputDir)
	assert.Equal(t, ModeJoint, cfg.Mode)
	assert.Empty(t, cfg.ArchivePath)
	assert.Equal(t, 120.0, cfg.Tempo)
	assert.Equal(t, compose.DefaultConfig(), cfg.Generation)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.yml")
	content := "mode: solo\ngeneration:\n  model: hmm\n  states: 4\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ModeSolo, cfg.Mode)
	assert.Equal(t, "melodies", cfg.OutputDir)
	assert.Equal(t, compose.ModelHMM, cfg.Generation.Model)
	assert.Equal(t, 4, cfg.Generation.States)
	assert.Equal(t, 2, cfg.Generation.Order)
	assert.Equal(t, 100, cfg.Generation.Length)
}

func TestLoadConfigJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.json")
	content := `{"archive_path": "runs.db", "generation": {"order": 3, "measures": 8}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "runs.db", cfg.ArchivePath)
	assert.Equal(t, 3, cfg.Generation.Order)
	assert.True(t, cfg.Generation.Target().IsDuration())
	assert.Equal(t, 32.0, cfg.Generation.Target().Limit())
}

func TestLoadConfigKeepsExplicitZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.yaml")
	content := "export_chains: true\ngeneration:\n  temperature: 0\n  tolerance: 0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.ExportChains)
	require.NotNil(t, cfg.Generation.Temperature)
	assert.Zero(t, *cfg.Generation.Temperature)
	require.NotNil(t, cfg.Generation.Tolerance)
	assert.Zero(t, *cfg.Generation.Tolerance)

	// Left out, both fall back to their defaults.
	require.NoError(t, os.WriteFile(path, []byte("mode: solo\n"), 0o644))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1.0, *cfg.Generation.Temperature)
	assert.Equal(t, 1e-4, *cfg.Generation.Tolerance)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"bad mode", "cadence.yaml", "mode: both\n"},
		{"bad log level", "cadence.json", `{"log_level": "loud"}`},
		{"bad model", "cadence.json", `{"generation": {"model": "lstm"}}`},
		{"bad order", "cadence.yaml", "generation:\n  order: 64\n"},
		{"bad tempo", "cadence.json", `{"tempo_bpm": -5}`},
		{"negative temperature", "cadence.yaml", "generation:\n  temperature: -1\n"},
		{"malformed", "cadence.json", `{"mode": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", false)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	logger = newLogger(&buf, "error", true)
	logger.Debug("verbose wins")
	assert.Contains(t, buf.String(), "verbose wins")
}
