package hmm

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

func repeat(pattern []int, n int) []int {
	out := make([]int, 0, len(pattern)*n)
	for i := 0; i < n; i++ {
		out = append(out, pattern...)
	}
	return out
}

func requireStochastic(t *testing.T, m *Model) {
	t.Helper()
	rows := append([][]float64{m.Start}, m.Trans...)
	rows = append(rows, m.Emit...)
	for i, row := range rows {
		var sum float64
		for _, p := range row {
			require.GreaterOrEqual(t, p, 0.0, "row %d has a negative probability", i)
			sum += p
		}
		require.InDelta(t, 1.0, sum, 1e-9, "row %d does not sum to 1", i)
	}
}

func TestFit(t *testing.T) {
	obs := repeat([]int{0, 1, 2, 1, 0, 3}, 20)

	m, report, err := Fit(obs, 4, WithStates(3), WithMaxIter(200), WithTolerance(1e-6), WithRand(seeded(1)))
	require.NoError(t, err)

	assert.Equal(t, 3, m.N)
	assert.Equal(t, 4, m.M)
	assert.Len(t, m.Emit[0], 4)
	requireStochastic(t, m)

	require.NotEmpty(t, report.History)
	assert.Equal(t, report.Iterations, len(report.History))
	assert.LessOrEqual(t, report.Iterations, 200)
	for i := 1; i < len(report.History); i++ {
		assert.GreaterOrEqual(t, report.History[i], report.History[i-1]-1e-8,
			"log-likelihood decreased at iteration %d", i+1)
	}

	ll, err := m.LogLikelihood(obs)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ll, report.History[0])
}

func TestFitReproducible(t *testing.T) {
	obs := repeat([]int{2, 0, 1, 1, 0}, 10)

	m1, r1, err := Fit(obs, 3, WithStates(4), WithRand(seeded(7)))
	require.NoError(t, err)
	m2, r2, err := Fit(obs, 3, WithStates(4), WithRand(seeded(7)))
	require.NoError(t, err)

	assert.Equal(t, m1, m2)
	assert.Equal(t, r1.Iterations, r2.Iterations)
}

func TestFitIterationCap(t *testing.T) {
	obs := repeat([]int{0, 1, 1, 2}, 25)

	_, report, err := Fit(obs, 3, WithStates(5), WithMaxIter(1), WithRand(seeded(3)))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Iterations)
	assert.False(t, report.Converged)
}

func TestFitDegenerate(t *testing.T) {
	t.Run("Single observation", func(t *testing.T) {
		m, _, err := Fit([]int{0}, 2, WithStates(2), WithRand(seeded(1)))
		require.NoError(t, err)
		requireStochastic(t, m)
	})

	t.Run("Single symbol alphabet", func(t *testing.T) {
		m, report, err := Fit([]int{0, 0, 0, 0}, 1, WithRand(seeded(1)))
		require.NoError(t, err)
		assert.True(t, report.Converged)
		assert.InDelta(t, 0, report.LogLikelihood, 1e-12)
		requireStochastic(t, m)
	})
}

func TestFitErrors(t *testing.T) {
	testCases := []struct {
		name     string
		obs      []int
		alphabet int
		opts     []Option
	}{
		{name: "Empty observations", obs: nil, alphabet: 2},
		{name: "Zero alphabet", obs: []int{0}, alphabet: 0},
		{name: "Observation above alphabet", obs: []int{0, 2}, alphabet: 2},
		{name: "Negative observation", obs: []int{-1}, alphabet: 2},
		{name: "Zero states", obs: []int{0}, alphabet: 1, opts: []Option{WithStates(0)}},
		{name: "Zero iterations", obs: []int{0}, alphabet: 1, opts: []Option{WithMaxIter(0)}},
		{name: "Negative tolerance", obs: []int{0}, alphabet: 1, opts: []Option{WithTolerance(-1)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, _, err := Fit(tc.obs, tc.alphabet, tc.opts...)
			require.ErrorIs(t, err, ErrInvalidInput)
			assert.Nil(t, m)
		})
	}
}

// alternating emits 0 1 0 1 ... with certainty.
func alternating() *Model {
	return &Model{
		N:     2,
		M:     2,
		Start: []float64{1, 0},
		Trans: [][]float64{{0, 1}, {1, 0}},
		Emit:  [][]float64{{1, 0}, {0, 1}},
	}
}

func TestLogLikelihood(t *testing.T) {
	m := alternating()

	ll, err := m.LogLikelihood([]int{0, 1, 0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0, ll, 1e-12)

	ll, err = m.LogLikelihood([]int{0, 0})
	require.NoError(t, err)
	assert.True(t, math.IsInf(ll, -1))

	_, err = m.LogLikelihood([]int{0, 5})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSamplerCarriesState(t *testing.T) {
	s := alternating().Sampler(seeded(1))

	for i := 0; i < 10; i++ {
		state, obs := s.Next()
		assert.Equal(t, i%2, state, "step %d", i)
		assert.Equal(t, i%2, obs, "step %d", i)
	}

	// A fresh sampler starts over from the start distribution.
	state, _ := alternating().Sampler(seeded(2)).Next()
	assert.Equal(t, 0, state)
}

func TestSamplerDistribution(t *testing.T) {
	m := &Model{
		N:     1,
		M:     3,
		Start: []float64{1},
		Trans: [][]float64{{1}},
		Emit:  [][]float64{{0.25, 0, 0.75}},
	}
	s := m.Sampler(seeded(9))

	const draws = 20_000
	counts := make([]int, m.M)
	for i := 0; i < draws; i++ {
		_, obs := s.Next()
		counts[obs]++
	}
	assert.Zero(t, counts[1], "zero-probability observation was drawn")
	assert.InDelta(t, 0.75, float64(counts[2])/draws, 0.02)
}

func TestSamplerStaysInAlphabet(t *testing.T) {
	obs := repeat([]int{0, 3, 1, 4, 2}, 8)
	m, _, err := Fit(obs, 5, WithStates(3), WithRand(seeded(5)))
	require.NoError(t, err)

	s := m.Sampler(seeded(6))
	for i := 0; i < 1000; i++ {
		state, o := s.Next()
		require.True(t, state >= 0 && state < m.N, "state %d", state)
		require.True(t, o >= 0 && o < m.M, "observation %d", o)
	}
}

func BenchmarkFit(b *testing.B) {
	r := seeded(1)
	obs := make([]int, 2000)
	for i := range obs {
		obs[i] = r.IntN(40)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := Fit(obs, 40, WithMaxIter(20), WithRand(seeded(2))); err != nil {
			b.Fatalf("Fit() failed: %v", err)
		}
	}
}
