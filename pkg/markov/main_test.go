package markov

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// tok is a minimal Symbol for tests: a name that lasts dur beats.
type tok struct {
	name string
	dur  float64
}

func (s tok) Key() string {
	return s.name + "@" + strconv.FormatFloat(s.dur, 'f', -1, 64)
}

func (s tok) Duration() float64 {
	return s.dur
}

func parseTok(key string) (tok, error) {
	name, dur, ok := strings.Cut(key, "@")
	if !ok {
		return tok{}, fmt.Errorf("malformed key %q", key)
	}
	d, err := strconv.ParseFloat(dur, 64)
	if err != nil {
		return tok{}, err
	}
	return tok{name: name, dur: d}, nil
}

// toks turns "A B C" into beat-long symbols.
func toks(s string) []tok {
	fields := strings.Fields(s)
	out := make([]tok, len(fields))
	for i, f := range fields {
		out[i] = tok{name: f, dur: 1}
	}
	return out
}

func names(seq []tok) string {
	parts := make([]string, len(seq))
	for i, s := range seq {
		parts[i] = s.name
	}
	return strings.Join(parts, " ")
}

// buildTestChain builds a chain and fails the test on error.
func buildTestChain(t *testing.T, seq []tok, order int) *Chain[tok] {
	t.Helper()
	c, err := Build(seq, order)
	if err != nil {
		t.Fatalf("setup: Build() failed: %v", err)
	}
	return c
}

var (
	benchmarkCorpus []tok
	corpusOnce      sync.Once
)

// createBenchmarkCorpus returns a long pseudo-melodic sequence over a small
// alphabet of pitches and durations.
func createBenchmarkCorpus() []tok {
	corpusOnce.Do(func() {
		pitches := []string{"C4", "D4", "E4", "F4", "G4", "A4", "B4", "C5", "REST"}
		durs := []float64{0.25, 0.5, 1, 1.5, 2}
		r := NewRand(7)
		benchmarkCorpus = make([]tok, 50_000)
		for i := range benchmarkCorpus {
			benchmarkCorpus[i] = tok{name: pitches[r.IntN(len(pitches))], dur: durs[r.IntN(len(durs))]}
		}
	})
	return benchmarkCorpus
}
