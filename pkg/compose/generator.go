package compose

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/CTAG07/Cadence/pkg/hmm"
	"github.com/CTAG07/Cadence/pkg/markov"
	"github.com/CTAG07/Cadence/pkg/score"
)

// Generator turns observed sequences into new ones according to a Config.
// A Generator holds no per-unit state and every unit gets its own random
// source, so units can be generated in any order with the same results.
type Generator struct {
	cfg    Config
	seed   uint64
	logger *slog.Logger
}

// New validates cfg and returns a Generator. A zero Seed is replaced with a
// random one, which is logged so the batch can be reproduced. A nil logger
// discards all logs.
func New(cfg Config, logger *slog.Logger) (*Generator, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("could not apply config defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
		logger.Info("No seed configured, using a random one", slog.Uint64("seed", seed))
	}
	return &Generator{cfg: cfg, seed: seed, logger: logger}, nil
}

// Config returns the effective configuration.
func (g *Generator) Config() Config {
	return g.cfg
}

// Seed returns the seed all unit random sources derive from.
func (g *Generator) Seed() uint64 {
	return g.seed
}

// unitRand derives the random source of one unit from the batch seed and
// the unit name.
func (g *Generator) unitRand(unit string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(unit))
	return rand.New(rand.NewPCG(g.seed, h.Sum64()))
}

// Result is the outcome of generating one unit.
type Result[S markov.Symbol] struct {
	Unit    string
	Model   string
	Seed    uint64
	Symbols []S
	Elapsed float64
	// Teleports counts dead ends the Markov chain jumped over.
	Teleports   int
	StepLimited bool
	// Insufficient is set when the unit was too short to learn from. Symbols
	// is empty then.
	Insufficient bool
	// Contexts is the number of distinct contexts of the Markov chain.
	Contexts int
	// Alphabet is the number of distinct symbols in the source sequence.
	Alphabet int
	// Fit describes the HMM training run. It is nil for Markov results.
	Fit *hmm.Report
	// LogLikelihood is the log-likelihood of the source sequence under the
	// fitted HMM. It is zero for Markov results.
	LogLikelihood float64

	// Chain is the learned transition table of a Markov result and HMM the
	// fitted model of an HMM result. Both are nil for insufficient results.
	Chain *markov.Chain[S]
	HMM   *hmm.Model
}

// Generate learns the configured model from seq and samples a new sequence
// from it. A sequence too short to learn from yields a Result with
// Insufficient set rather than an error.
func Generate[S markov.Symbol](ctx context.Context, g *Generator, unit string, seq []S) (*Result[S], error) {
	logger := g.logger.With(slog.String("unit", unit), slog.String("model", g.cfg.Model))
	res := &Result[S]{Unit: unit, Model: g.cfg.Model, Seed: g.seed}
	r := g.unitRand(unit)
	target := g.cfg.Target()

	var err error
	switch g.cfg.Model {
	case ModelHMM:
		err = generateHMM(ctx, g, logger, r, target, seq, res)
	default:
		err = generateMarkov(ctx, g, logger, r, target, seq, res)
	}
	if errors.Is(err, markov.ErrInsufficientData) {
		logger.WarnContext(ctx, "Insufficient data, writing sentinel output",
			slog.Int("source_length", len(seq)),
			slog.Int("order", g.cfg.Order),
		)
		res.Insufficient = true
		res.Symbols = nil
		res.Chain = nil
		res.HMM = nil
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unit %q: %w", unit, err)
	}

	logger.InfoContext(ctx, "Sequence generated",
		slog.Int("source_length", len(seq)),
		slog.Int("generated_length", len(res.Symbols)),
		slog.Float64("elapsed", res.Elapsed),
		slog.Int("teleports", res.Teleports),
	)
	return res, nil
}

func generateMarkov[S markov.Symbol](ctx context.Context, g *Generator, logger *slog.Logger, r *rand.Rand, target markov.Target, seq []S, res *Result[S]) error {
	chain, err := markov.Build(seq, g.cfg.Order)
	if err != nil {
		return err
	}
	chain.SetLogger(logger)
	if g.cfg.PruneMinFreq > 0 {
		chain.Prune(g.cfg.PruneMinFreq)
	}
	stats := chain.Stats()
	res.Contexts = stats.Contexts
	res.Alphabet = alphabetSize(seq)

	out, err := chain.Generate(ctx, target,
		markov.WithRand(r),
		markov.WithTemperature(*g.cfg.Temperature),
		markov.WithTopK(g.cfg.TopK),
		markov.WithMaxSteps(g.cfg.MaxSteps),
	)
	if err != nil {
		return err
	}
	res.Chain = chain
	res.Symbols = out.Symbols
	res.Elapsed = out.Elapsed
	res.Teleports = len(out.Teleports)
	res.StepLimited = out.StepLimited
	return nil
}

// generateHMM fits an HMM over the encoded sequence and decodes sampled
// observations until the target is reached.
func generateHMM[S markov.Symbol](ctx context.Context, g *Generator, logger *slog.Logger, r *rand.Rand, target markov.Target, seq []S, res *Result[S]) error {
	if len(seq) == 0 {
		return fmt.Errorf("%w: empty sequence", markov.ErrInsufficientData)
	}
	if err := target.Validate(); err != nil {
		return err
	}

	enc := markov.NewEncoder[S]()
	obs, err := enc.EncodeAll(seq)
	if err != nil {
		return err
	}
	enc.Freeze()
	res.Alphabet = enc.Len()

	model, report, err := hmm.Fit(obs, enc.Len(),
		hmm.WithStates(g.cfg.States),
		hmm.WithMaxIter(g.cfg.MaxIter),
		hmm.WithTolerance(*g.cfg.Tolerance),
		hmm.WithRand(r),
		hmm.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	res.Fit = &report
	res.HMM = model
	// The report scores the parameters before the last re-estimation.
	if res.LogLikelihood, err = model.LogLikelihood(obs); err != nil {
		return err
	}
	if !report.Converged {
		logger.WarnContext(ctx, "HMM did not converge",
			slog.Int("iterations", report.Iterations),
			slog.Float64("log_likelihood", res.LogLikelihood),
		)
	}

	sampler := model.Sampler(r)
	for steps := 0; !target.Reached(len(res.Symbols), res.Elapsed); steps++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if target.IsDuration() && g.cfg.MaxSteps > 0 && steps >= g.cfg.MaxSteps {
			res.StepLimited = true
			logger.WarnContext(ctx, "Generation stopped by step limit",
				slog.Int("max_steps", g.cfg.MaxSteps),
				slog.Float64("elapsed", res.Elapsed),
				slog.Float64("target", target.Limit()),
			)
			break
		}
		_, code := sampler.Next()
		s, err := enc.Decode(code)
		if err != nil {
			return err
		}
		res.Symbols = append(res.Symbols, s)
		res.Elapsed += s.Duration()
	}
	return nil
}

func alphabetSize[S markov.Symbol](seq []S) int {
	seen := make(map[string]struct{}, len(seq))
	for _, s := range seq {
		seen[s.Key()] = struct{}{}
	}
	return len(seen)
}

// Solo generates a new part from the events of a single instrument.
func (g *Generator) Solo(ctx context.Context, unit string, events []score.Event) (*Result[score.Event], error) {
	return Generate(ctx, g, unit, events)
}

// JointResult is the outcome of generating several instruments together.
type JointResult struct {
	*Result[score.JointState]
	// Instruments names the JointState components in order.
	Instruments []string
}

// Streams splits the generated joint sequence into one stream per
// instrument.
func (r *JointResult) Streams() []score.Stream {
	return score.JointStreams(r.Instruments, r.Symbols, r.Insufficient)
}

// Joint aligns the parts into a joint sequence, padding shorter parts with
// rests, and generates a new joint sequence from it.
func (g *Generator) Joint(ctx context.Context, unit string, parts map[string][]score.Event) (*JointResult, error) {
	states, names := score.BuildJoint(parts)
	g.logger.DebugContext(ctx, "Joint sequence built",
		slog.String("unit", unit),
		slog.Int("instruments", len(names)),
		slog.Int("joint_length", len(states)),
	)
	res, err := Generate(ctx, g, unit, states)
	if err != nil {
		return nil, err
	}
	return &JointResult{Result: res, Instruments: names}, nil
}

// SoloStream wraps a solo result as the stream of instrument name.
func SoloStream(name string, res *Result[score.Event]) score.Stream {
	return score.Stream{Instrument: name, Events: res.Symbols, Insufficient: res.Insufficient}
}
