package markov

import (
	"errors"
	"io"
	"log/slog"
)

var (
	// ErrInsufficientData is returned by Build when the sequence is not
	// longer than the order, so not a single transition can be observed.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidOrder is returned by Build for an order below 1.
	ErrInvalidOrder = errors.New("order must be at least 1")
	// ErrEmptyChain is returned when generating from a chain without contexts.
	ErrEmptyChain = errors.New("chain has no contexts")
	// ErrInvalidTarget is returned for a termination target that can never be met.
	ErrInvalidTarget = errors.New("invalid generation target")
)

// link is one observed context and the symbols that followed it.
type link[S Symbol] struct {
	key     string
	context []S
	next    *Choices[S]
}

// Chain is an order-k transition table. Contexts are kept in the order they
// were first observed, so a generation driven by a seeded source is
// reproducible.
type Chain[S Symbol] struct {
	order  int
	links  []*link[S]
	index  map[string]int
	logger *slog.Logger
}

func newChain[S Symbol](order int) *Chain[S] {
	return &Chain[S]{
		order:  order,
		index:  make(map[string]int),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger for the Chain. By default, all logs are discarded.
func (c *Chain[S]) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Order returns the number of symbols in every context.
func (c *Chain[S]) Order() int {
	return c.order
}

// Len returns the number of distinct contexts.
func (c *Chain[S]) Len() int {
	return len(c.links)
}

// Contexts returns every context in first-observation order.
func (c *Chain[S]) Contexts() [][]S {
	contexts := make([][]S, len(c.links))
	for i, l := range c.links {
		contexts[i] = append([]S(nil), l.context...)
	}
	return contexts
}

// Successors returns the symbols observed after context with their counts,
// or nil if the context was never observed.
func (c *Chain[S]) Successors(context []S) []Transition[S] {
	if len(context) != c.order {
		return nil
	}
	i, ok := c.index[contextKey(context)]
	if !ok {
		return nil
	}
	return c.links[i].next.Transitions()
}

func contextKey[S Symbol](context []S) string {
	keys := make([]string, len(context))
	for i, s := range context {
		keys[i] = s.Key()
	}
	return string(appendWindowKey(nil, keys))
}

// reindex rebuilds the key index after links were removed.
func (c *Chain[S]) reindex() {
	clear(c.index)
	for i, l := range c.links {
		c.index[l.key] = i
	}
}
