package hmm

import (
	"math/rand/v2"
)

// Sampler draws observations from a Model by ancestral sampling. The hidden
// state carries over between calls to Next, so consecutive observations
// follow the model's transition structure.
type Sampler struct {
	m       *Model
	r       *rand.Rand
	state   int
	started bool
}

// Sampler returns a new Sampler over m that takes its randomness from r.
func (m *Model) Sampler(r *rand.Rand) *Sampler {
	return &Sampler{m: m, r: r}
}

// Next advances the hidden process by one step and returns the new hidden
// state and the observation it emitted. The first call draws the state from
// the start distribution, later calls from the transition row of the
// previous state.
func (s *Sampler) Next() (state, obs int) {
	if s.started {
		s.state = draw(s.r, s.m.Trans[s.state])
	} else {
		s.state = draw(s.r, s.m.Start)
		s.started = true
	}
	return s.state, draw(s.r, s.m.Emit[s.state])
}

// draw returns index i with probability p[i]. The last index with positive
// probability absorbs any rounding slack.
func draw(r *rand.Rand, p []float64) int {
	u := r.Float64()
	fallback := 0
	for i, pi := range p {
		if pi <= 0 {
			continue
		}
		fallback = i
		u -= pi
		if u < 0 {
			return i
		}
	}
	return fallback
}
