package markov

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
)

// DefaultMaxSteps bounds duration-targeted generation when no WithMaxSteps
// option is given.
const DefaultMaxSteps = 100_000

// Target is the termination policy of a generation: either a fixed number of
// symbols or a cumulative duration.
type Target struct {
	count int
	limit float64
}

// ByCount stops generation once exactly n symbols were produced.
func ByCount(n int) Target {
	return Target{count: n}
}

// ByDuration stops generation once the accumulated duration of the produced
// symbols is no longer below measures * beatsPerMeasure. The last symbol may
// overshoot the limit.
func ByDuration(measures, beatsPerMeasure float64) Target {
	return Target{limit: measures * beatsPerMeasure}
}

// IsDuration reports whether the target is a duration target.
func (t Target) IsDuration() bool {
	return t.count == 0
}

// Count returns the requested symbol count of a count target.
func (t Target) Count() int {
	return t.count
}

// Limit returns the duration, in beats, of a duration target.
func (t Target) Limit() float64 {
	return t.limit
}

// Validate rejects targets that could never be reached.
func (t Target) Validate() error {
	if t.count < 0 || (t.count == 0 && !(t.limit > 0)) {
		return fmt.Errorf("%w: count %d, duration %g", ErrInvalidTarget, t.count, t.limit)
	}
	return nil
}

// Reached reports whether a sequence of the given length and accumulated
// duration satisfies the target.
func (t Target) Reached(length int, elapsed float64) bool {
	if t.IsDuration() {
		return elapsed >= t.limit
	}
	return length >= t.count
}

func (t Target) String() string {
	if t.IsDuration() {
		return fmt.Sprintf("%g beats", t.limit)
	}
	return fmt.Sprintf("%d symbols", t.count)
}

// Sequence is the result of a generation.
type Sequence[S Symbol] struct {
	Symbols []S
	// Elapsed is the summed duration of Symbols.
	Elapsed float64
	// Teleports holds the index in Symbols of every symbol that was drawn
	// after a dead end forced a jump to a random known context.
	Teleports []int
	// StepLimited is set when the step cap stopped a duration-targeted
	// generation before the target was reached.
	StepLimited bool
}

// generateOptions Is used by Generate to configure default options.
type generateOptions struct {
	rand        *rand.Rand
	temperature float64
	topK        int
	maxSteps    int
}

// GenerateOption is a function that configures generation parameters.
type GenerateOption func(*generateOptions)

// WithRand sets the random source used for every sampling decision. Passing
// a seeded source makes generation reproducible.
func WithRand(r *rand.Rand) GenerateOption {
	return func(o *generateOptions) { o.rand = r }
}

// WithTemperature adjusts the randomness of successor selection.
// A value of 1.0 is standard frequency-weighted selection.
// Values > 1.0 make less frequent successors more likely.
// Values < 1.0 make more frequent successors even more likely.
// A value of 0 or less always chooses the most frequent successor.
func WithTemperature(t float64) GenerateOption {
	return func(o *generateOptions) { o.temperature = t }
}

// WithTopK restricts successor selection to the `k` most frequent successors
// of each context. A value of 0 disables Top-K sampling.
func WithTopK(k int) GenerateOption {
	return func(o *generateOptions) { o.topK = k }
}

// WithMaxSteps caps the number of symbols drawn by a duration-targeted
// generation. A value of 0 or less disables the cap.
func WithMaxSteps(n int) GenerateOption {
	return func(o *generateOptions) { o.maxSteps = n }
}

// NewRand returns a PCG-backed random source for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Generate samples a new sequence from the chain.
//
// The output is seeded with a context chosen uniformly from the known
// contexts. Each further symbol is drawn from the successors of the last
// Order() symbols of the output. When those symbols form a context that was
// never observed, generation continues from a uniformly chosen known context
// instead; such jumps are recorded in Sequence.Teleports.
//
// A count target returns exactly Count() symbols. A duration target returns
// as many symbols as needed for the summed duration, seed included, to reach
// the limit.
func (c *Chain[S]) Generate(ctx context.Context, target Target, opts ...GenerateOption) (*Sequence[S], error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if len(c.links) == 0 {
		return nil, ErrEmptyChain
	}

	options := &generateOptions{
		temperature: 1.0,
		topK:        0,
		maxSteps:    DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(options)
	}
	r := options.rand
	if r == nil {
		r = NewRand(rand.Uint64())
	}

	start := c.links[r.IntN(len(c.links))]
	seq := &Sequence[S]{
		Symbols: append(make([]S, 0, c.order+max(target.count, 16)), start.context...),
	}
	keys := make([]string, 0, cap(seq.Symbols))
	for _, s := range start.context {
		keys = append(keys, s.Key())
		seq.Elapsed += s.Duration()
	}

	var keyBuf []byte
	steps := 0
	for !target.Reached(len(seq.Symbols), seq.Elapsed) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if target.IsDuration() && options.maxSteps > 0 && steps >= options.maxSteps {
			seq.StepLimited = true
			c.logger.WarnContext(ctx, "Generation stopped by step limit",
				slog.Int("max_steps", options.maxSteps),
				slog.Float64("elapsed", seq.Elapsed),
				slog.Float64("target", target.limit),
			)
			break
		}
		steps++

		keyBuf = appendWindowKey(keyBuf[:0], keys[len(keys)-c.order:])
		idx, ok := c.index[string(keyBuf)]
		if !ok { // Dead end in chain
			idx = r.IntN(len(c.links))
			seq.Teleports = append(seq.Teleports, len(seq.Symbols))
			c.logger.DebugContext(ctx, "Dead end, jumping to a random context",
				slog.Int("generated_length", len(seq.Symbols)),
				slog.Int("context_index", idx),
			)
		}

		next := c.links[idx].next.pick(r, options.temperature, options.topK)
		seq.Symbols = append(seq.Symbols, next)
		keys = append(keys, next.Key())
		seq.Elapsed += next.Duration()
	}

	if !target.IsDuration() && len(seq.Symbols) > target.count {
		seq.Symbols = seq.Symbols[:target.count]
		seq.Elapsed = 0
		for _, s := range seq.Symbols {
			seq.Elapsed += s.Duration()
		}
	}

	c.logger.DebugContext(ctx, "Generation finished",
		slog.String("target", target.String()),
		slog.Int("generated_length", len(seq.Symbols)),
		slog.Float64("elapsed", seq.Elapsed),
		slog.Int("teleports", len(seq.Teleports)),
	)
	return seq, nil
}
