package hmm

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput is returned for observation sequences, alphabets or
// options that no model can be fitted to.
var ErrInvalidInput = errors.New("invalid hmm input")

// Model is a categorical hidden Markov model with N hidden states over an
// alphabet of M observation codes.
type Model struct {
	N     int         `json:"states"`
	M     int         `json:"alphabet"`
	Start []float64   `json:"start"` // Start[i] is the probability of starting in state i
	Trans [][]float64 `json:"trans"` // Trans[i][j] is the probability of moving from i to j
	Emit  [][]float64 `json:"emit"`  // Emit[i][k] is the probability of observing k in state i
}

// Report describes how a fit went.
type Report struct {
	Iterations    int       `json:"iterations"`
	LogLikelihood float64   `json:"log_likelihood"`
	Converged     bool      `json:"converged"`
	History       []float64 `json:"-"` // log-likelihood of every iteration
}

// checkObservations validates obs against an alphabet of size m.
func checkObservations(obs []int, m int) error {
	if len(obs) == 0 {
		return fmt.Errorf("%w: empty observation sequence", ErrInvalidInput)
	}
	for t, o := range obs {
		if o < 0 || o >= m {
			return fmt.Errorf("%w: observation %d at position %d outside alphabet of size %d", ErrInvalidInput, o, t, m)
		}
	}
	return nil
}

// LogLikelihood returns the natural log of the probability of obs under the
// model. A sequence the model cannot produce yields -Inf.
func (m *Model) LogLikelihood(obs []int) (float64, error) {
	if err := checkObservations(obs, m.M); err != nil {
		return 0, err
	}
	alpha := newMatrix(len(obs), m.N)
	scale := make([]float64, len(obs))
	ll, ok := m.forward(obs, alpha, scale)
	if !ok {
		return math.Inf(-1), nil
	}
	return ll, nil
}

// forward runs the scaled forward pass, filling alpha with the normalized
// forward variables and scale with the normalizers. It reports false when
// some prefix of obs has zero probability.
func (m *Model) forward(obs []int, alpha [][]float64, scale []float64) (float64, bool) {
	var ll float64
	for t, o := range obs {
		var sum float64
		for j := 0; j < m.N; j++ {
			var p float64
			if t == 0 {
				p = m.Start[j]
			} else {
				for i := 0; i < m.N; i++ {
					p += alpha[t-1][i] * m.Trans[i][j]
				}
			}
			p *= m.Emit[j][o]
			alpha[t][j] = p
			sum += p
		}
		if !(sum > 0) {
			return math.Inf(-1), false
		}
		for j := range alpha[t] {
			alpha[t][j] /= sum
		}
		scale[t] = sum
		ll += math.Log(sum)
	}
	return ll, true
}

// backward runs the scaled backward pass using the normalizers of forward.
func (m *Model) backward(obs []int, beta [][]float64, scale []float64) {
	last := len(obs) - 1
	for i := range beta[last] {
		beta[last][i] = 1
	}
	for t := last - 1; t >= 0; t-- {
		o := obs[t+1]
		for i := 0; i < m.N; i++ {
			var sum float64
			for j := 0; j < m.N; j++ {
				sum += m.Trans[i][j] * m.Emit[j][o] * beta[t+1][j]
			}
			beta[t][i] = sum / scale[t+1]
		}
	}
}

func newMatrix(rows, cols int) [][]float64 {
	backing := make([]float64, rows*cols)
	mat := make([][]float64, rows)
	for i := range mat {
		mat[i] = backing[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return mat
}

func normalize(row []float64) bool {
	var sum float64
	for _, v := range row {
		sum += v
	}
	if !(sum > 0) {
		return false
	}
	for i := range row {
		row[i] /= sum
	}
	return true
}
