package markov

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestGenerateByCount(t *testing.T) {
	c := buildTestChain(t, toks("A B C A B D"), 2)
	ctx := context.Background()

	for _, n := range []int{1, 2, 3, 10, 100} {
		t.Run(fmt.Sprintf("Count%d", n), func(t *testing.T) {
			seq, err := c.Generate(ctx, ByCount(n), WithRand(NewRand(uint64(n))))
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			if len(seq.Symbols) != n {
				t.Errorf("expected exactly %d symbols, got %d", n, len(seq.Symbols))
			}
			if seq.Elapsed != float64(n) {
				t.Errorf("expected elapsed %d for beat-long symbols, got %g", n, seq.Elapsed)
			}
		})
	}
}

func TestGenerateStartsWithKnownContext(t *testing.T) {
	c := buildTestChain(t, toks("A B C A B D"), 2)
	known := map[string]bool{"A B": true, "B C": true, "C A": true}

	for seed := uint64(0); seed < 50; seed++ {
		seq, err := c.Generate(context.Background(), ByCount(2), WithRand(NewRand(seed)))
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if got := names(seq.Symbols); !known[got] {
			t.Fatalf("seed %d: sequence starts with unknown context %q", seed, got)
		}
	}
}

// TestGenerateFollowsChain checks every drawn symbol is a successor of either
// the preceding window or, after a dead end, of some known context.
func TestGenerateFollowsChain(t *testing.T) {
	c := buildTestChain(t, toks("A B C A B D"), 2)
	seq, err := c.Generate(context.Background(), ByCount(500), WithRand(NewRand(1)))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	teleported := make(map[int]bool)
	for _, i := range seq.Teleports {
		teleported[i] = true
	}
	anySuccessor := map[string]bool{"A": true, "B": true, "C": true, "D": true}

	for i := 2; i < len(seq.Symbols); i++ {
		window := seq.Symbols[i-2 : i]
		got := seq.Symbols[i].name
		succ := c.Successors(window)
		if succ == nil {
			if !teleported[i] {
				t.Fatalf("symbol %d follows unknown context %q but no teleport was recorded", i, names(window))
			}
			if !anySuccessor[got] {
				t.Fatalf("symbol %d (%s) after a teleport is not a successor of any context", i, got)
			}
			continue
		}
		if teleported[i] {
			t.Fatalf("teleport recorded at %d although context %q is known", i, names(window))
		}
		found := false
		for _, s := range succ {
			if s.Symbol.name == got {
				found = true
			}
		}
		if !found {
			t.Fatalf("symbol %d (%s) never followed %q", i, got, names(window))
		}
	}

	// "B D" is a dead end and D follows "A B" half of the time.
	if len(seq.Teleports) == 0 {
		t.Error("expected at least one teleport in 500 symbols")
	}
}

func TestGenerateByDuration(t *testing.T) {
	seq := []tok{{"C", 1}, {"E", 0.5}, {"G", 0.5}, {"C", 2}, {"R", 1}, {"E", 0.5}, {"C", 1}}
	c := buildTestChain(t, seq, 1)

	testCases := []struct {
		measures float64
		beats    float64
	}{
		{measures: 1, beats: 4},
		{measures: 4, beats: 3},
		{measures: 50, beats: 4},
		{measures: 0.5, beats: 1},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%gx%g", tc.measures, tc.beats), func(t *testing.T) {
			limit := tc.measures * tc.beats
			out, err := c.Generate(context.Background(), ByDuration(tc.measures, tc.beats), WithRand(NewRand(3)))
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			var sum float64
			for i, s := range out.Symbols {
				if sum >= limit {
					t.Fatalf("symbol %d was drawn although %g beats were already reached", i, sum)
				}
				sum += s.dur
			}
			if sum != out.Elapsed {
				t.Errorf("Elapsed = %g, but symbols sum to %g", out.Elapsed, sum)
			}
			if out.Elapsed < limit {
				t.Errorf("expected at least %g beats, got %g", limit, out.Elapsed)
			}
			if out.StepLimited {
				t.Error("did not expect the step limit to be hit")
			}
		})
	}
}

func TestGenerateStepLimit(t *testing.T) {
	silent := []tok{{"X", 0}, {"Y", 0}, {"X", 0}, {"Z", 0}}
	c := buildTestChain(t, silent, 1)

	seq, err := c.Generate(context.Background(), ByDuration(1, 4), WithRand(NewRand(9)), WithMaxSteps(25))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !seq.StepLimited {
		t.Error("expected generation over zero-length symbols to be step limited")
	}
	if len(seq.Symbols) != 1+25 {
		t.Errorf("expected seed plus 25 drawn symbols, got %d", len(seq.Symbols))
	}
}

func TestGenerateReproducible(t *testing.T) {
	c := buildTestChain(t, toks("A B C A B D A C B D C A D B"), 1)
	ctx := context.Background()

	first, err := c.Generate(ctx, ByCount(64), WithRand(NewRand(42)))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	second, err := c.Generate(ctx, ByCount(64), WithRand(NewRand(42)))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if names(first.Symbols) != names(second.Symbols) {
		t.Errorf("same seed produced different sequences:\n%s\n%s", names(first.Symbols), names(second.Symbols))
	}
}

func TestGenerateTemperatureZero(t *testing.T) {
	c := buildTestChain(t, toks("A B A B A C"), 1)

	for seed := uint64(0); seed < 20; seed++ {
		seq, err := c.Generate(context.Background(), ByCount(30), WithRand(NewRand(seed)), WithTemperature(0))
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		for i := 1; i < len(seq.Symbols); i++ {
			if seq.Symbols[i].name == "C" {
				t.Fatalf("seed %d: the less frequent successor C was chosen at %d: %s", seed, i, names(seq.Symbols))
			}
		}
	}
}

func TestGenerateErrors(t *testing.T) {
	c := buildTestChain(t, toks("A B C"), 1)

	testCases := []struct {
		name    string
		target  Target
		wantErr error
	}{
		{name: "Zero count", target: ByCount(0), wantErr: ErrInvalidTarget},
		{name: "Negative count", target: ByCount(-4), wantErr: ErrInvalidTarget},
		{name: "Zero duration", target: ByDuration(0, 4), wantErr: ErrInvalidTarget},
		{name: "Negative duration", target: ByDuration(2, -4), wantErr: ErrInvalidTarget},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Generate(context.Background(), tc.target)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected error %v, got %v", tc.wantErr, err)
			}
		})
	}

	empty := newChain[tok](1)
	if _, err := empty.Generate(context.Background(), ByCount(3)); !errors.Is(err, ErrEmptyChain) {
		t.Errorf("expected ErrEmptyChain, got %v", err)
	}
}

func TestGenerateCancelled(t *testing.T) {
	c := buildTestChain(t, toks("A B C A B D"), 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Generate(ctx, ByCount(100))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestTarget(t *testing.T) {
	count := ByCount(8)
	if count.IsDuration() || count.Count() != 8 {
		t.Errorf("ByCount(8) = %+v", count)
	}
	if count.Reached(7, 100) || !count.Reached(8, 0) {
		t.Error("count target must only look at the length")
	}

	dur := ByDuration(50, 4)
	if !dur.IsDuration() || dur.Limit() != 200 {
		t.Errorf("ByDuration(50, 4) = %+v", dur)
	}
	if dur.Reached(1000, 199.5) || !dur.Reached(1, 200) {
		t.Error("duration target must only look at the elapsed time")
	}
}

func BenchmarkGenerate(b *testing.B) {
	corpus := createBenchmarkCorpus()
	ctx := context.Background()

	for _, order := range []int{1, 2, 3} {
		c, err := Build(corpus, order)
		if err != nil {
			b.Fatalf("Build() failed: %v", err)
		}
		b.Run(fmt.Sprintf("Order%d", order), func(b *testing.B) {
			r := NewRand(1)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := c.Generate(ctx, ByDuration(50, 4), WithRand(r)); err != nil {
					b.Fatalf("Generate() failed: %v", err)
				}
			}
		})
	}
}
