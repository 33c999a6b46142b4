package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const csvHeader = "Sequence_Step,Type,Pitch/Content,Duration_QuarterNotes,Measure,Beat\n"

// partCSV renders n quarter notes cycling through pitches.
func partCSV(n int, pitches ...string) string {
	var b strings.Builder
	b.WriteString(csvHeader)
	for i := 0; i < n; i++ {
		_, _ = fmt.Fprintf(&b, "%d,Note,%s,1.0,%d,%d\n", i, pitches[i%len(pitches)], i/4+1, i%4+1)
	}
	return b.String()
}

// writeInput creates dir/<folder>/<name>.csv for every file.
func writeInput(t *testing.T, dir, folder string, files map[string]string) {
	t.Helper()
	path := filepath.Join(dir, folder)
	require.NoError(t, os.MkdirAll(path, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(path, name+".csv"), []byte(content), 0o644))
	}
}

type testEnv struct {
	dir     string
	config  string
	input   string
	output  string
	archive string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:     dir,
		config:  filepath.Join(dir, "cadence.json"),
		input:   filepath.Join(dir, "input"),
		output:  filepath.Join(dir, "melodies"),
		archive: filepath.Join(dir, "runs.db"),
	}
	writeInput(t, env.input, "song1_data", map[string]string{
		"Violin": partCSV(24, "E5", "D5", "C5", "D5", "E5", "G5"),
		"Cello":  partCSV(20, "C3", "G2", "A2", "F2"),
	})
	return env
}

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// generate runs the generate command of env with extra flags.
func (env *testEnv) generate(t *testing.T, extra ...string) (string, error) {
	t.Helper()
	args := []string{
		"generate",
		"--config", env.config,
		"--input", env.input,
		"--output", env.output,
		"--seed", "7",
	}
	return execute(t, append(args, extra...)...)
}
