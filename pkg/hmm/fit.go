package hmm

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
)

const (
	DefaultStates    = 8
	DefaultMaxIter   = 500
	DefaultTolerance = 1e-4
)

// fitOptions is used by Fit to configure default options.
type fitOptions struct {
	states    int
	maxIter   int
	tolerance float64
	rand      *rand.Rand
	logger    *slog.Logger
}

// Option is a function that configures fitting parameters.
type Option func(*fitOptions)

// WithStates sets the number of hidden states.
func WithStates(n int) Option {
	return func(o *fitOptions) { o.states = n }
}

// WithMaxIter caps the number of Baum-Welch iterations.
func WithMaxIter(n int) Option {
	return func(o *fitOptions) { o.maxIter = n }
}

// WithTolerance sets the log-likelihood gain below which fitting stops.
func WithTolerance(tol float64) Option {
	return func(o *fitOptions) { o.tolerance = tol }
}

// WithRand sets the random source of the initial emission probabilities.
func WithRand(r *rand.Rand) Option {
	return func(o *fitOptions) { o.rand = r }
}

// WithLogger sets the logger fitting progress is reported to. By default,
// all logs are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(o *fitOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Fit estimates a model with Baum-Welch from a single observation sequence
// over an alphabet of the given size.
//
// Start and transition probabilities begin uniform and emission rows begin
// random. Every iteration computes the log-likelihood of the current
// parameters, re-estimates them, and stops once the gain over the previous
// iteration falls below the tolerance. Running out of iterations is not an
// error: the last estimate is returned with Report.Converged unset.
func Fit(obs []int, alphabet int, opts ...Option) (*Model, Report, error) {
	options := &fitOptions{
		states:    DefaultStates,
		maxIter:   DefaultMaxIter,
		tolerance: DefaultTolerance,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(options)
	}
	switch {
	case alphabet < 1:
		return nil, Report{}, fmt.Errorf("%w: alphabet size %d", ErrInvalidInput, alphabet)
	case options.states < 1:
		return nil, Report{}, fmt.Errorf("%w: %d hidden states", ErrInvalidInput, options.states)
	case options.maxIter < 1:
		return nil, Report{}, fmt.Errorf("%w: %d iterations", ErrInvalidInput, options.maxIter)
	case options.tolerance < 0:
		return nil, Report{}, fmt.Errorf("%w: negative tolerance %g", ErrInvalidInput, options.tolerance)
	}
	if err := checkObservations(obs, alphabet); err != nil {
		return nil, Report{}, err
	}
	if options.rand == nil {
		options.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	m := initModel(options.states, alphabet, options.rand)
	w := newWorkspace(len(obs), options.states, alphabet)

	var report Report
	for iter := 0; iter < options.maxIter; iter++ {
		ll, ok := m.forward(obs, w.alpha, w.scale)
		if !ok {
			return nil, report, fmt.Errorf("%w: observations have zero probability at iteration %d", ErrInvalidInput, iter)
		}
		m.backward(obs, w.beta, w.scale)
		m.reestimate(obs, w)

		report.Iterations = iter + 1
		report.LogLikelihood = ll
		report.History = append(report.History, ll)
		options.logger.Debug("Baum-Welch iteration",
			slog.Int("iteration", iter+1),
			slog.Float64("log_likelihood", ll),
		)
		if n := len(report.History); n > 1 && report.History[n-1]-report.History[n-2] < options.tolerance {
			report.Converged = true
			break
		}
	}

	options.logger.Info("HMM fitted",
		slog.Int("states", m.N),
		slog.Int("alphabet", m.M),
		slog.Int("observations", len(obs)),
		slog.Int("iterations", report.Iterations),
		slog.Float64("log_likelihood", report.LogLikelihood),
		slog.Bool("converged", report.Converged),
	)
	return m, report, nil
}

func initModel(n, alphabet int, r *rand.Rand) *Model {
	m := &Model{
		N:     n,
		M:     alphabet,
		Start: make([]float64, n),
		Trans: newMatrix(n, n),
		Emit:  newMatrix(n, alphabet),
	}
	for i := 0; i < n; i++ {
		m.Start[i] = 1 / float64(n)
		for j := 0; j < n; j++ {
			m.Trans[i][j] = 1 / float64(n)
		}
		for k := 0; k < alphabet; k++ {
			// Keep every emission strictly positive so no observation starts
			// out impossible.
			m.Emit[i][k] = r.Float64() + 1e-6
		}
		normalize(m.Emit[i])
	}
	return m
}

// workspace holds the per-iteration buffers of Fit.
type workspace struct {
	alpha, beta [][]float64
	scale       []float64
	gammaSum    []float64 // over all t
	transNum    [][]float64
	emitNum     [][]float64
}

func newWorkspace(t, n, alphabet int) *workspace {
	return &workspace{
		alpha:    newMatrix(t, n),
		beta:     newMatrix(t, n),
		scale:    make([]float64, t),
		gammaSum: make([]float64, n),
		transNum: newMatrix(n, n),
		emitNum:  newMatrix(n, alphabet),
	}
}

// reestimate is the M-step: it replaces the parameters with the expected
// counts gathered from the forward and backward variables in w. Rows whose
// state was never visited keep their previous values.
func (m *Model) reestimate(obs []int, w *workspace) {
	clear(w.gammaSum)
	for i := range w.transNum {
		clear(w.transNum[i])
		clear(w.emitNum[i])
	}
	gamma := make([]float64, m.N)
	transFrom := make([]float64, m.N) // gamma summed over t < T-1

	last := len(obs) - 1
	for t, o := range obs {
		for i := 0; i < m.N; i++ {
			gamma[i] = w.alpha[t][i] * w.beta[t][i]
		}
		normalize(gamma)
		for i, g := range gamma {
			w.gammaSum[i] += g
			w.emitNum[i][o] += g
			if t < last {
				transFrom[i] += g
			}
		}
		if t == 0 {
			copy(m.Start, gamma)
		}
		if t == last {
			continue
		}
		next := obs[t+1]
		for i := 0; i < m.N; i++ {
			a := w.alpha[t][i] / w.scale[t+1]
			if a == 0 {
				continue
			}
			for j := 0; j < m.N; j++ {
				w.transNum[i][j] += a * m.Trans[i][j] * m.Emit[j][next] * w.beta[t+1][j]
			}
		}
	}

	for i := 0; i < m.N; i++ {
		if transFrom[i] > 0 && normalize(w.transNum[i]) {
			copy(m.Trans[i], w.transNum[i])
		}
		if w.gammaSum[i] > 0 && normalize(w.emitNum[i]) {
			copy(m.Emit[i], w.emitNum[i])
		}
	}
}
