package markov

import (
	"math"
	"math/rand/v2"
	"sort"
)

// Transition is one successor of a context and the number of times it was
// observed there.
type Transition[S Symbol] struct {
	Symbol S
	Freq   int
}

// Choices is a weighted set of symbols. A symbol observed n times is n times
// as likely to be drawn as a symbol observed once.
type Choices[S Symbol] struct {
	values []Transition[S]
	index  map[string]int
	total  int
}

// NewChoices returns an empty weighted set.
func NewChoices[S Symbol]() *Choices[S] {
	return &Choices[S]{index: make(map[string]int)}
}

func (c *Choices[S]) add(s S, key string, n int) {
	if i, ok := c.index[key]; ok {
		c.values[i].Freq += n
	} else {
		c.index[key] = len(c.values)
		c.values = append(c.values, Transition[S]{Symbol: s, Freq: n})
	}
	c.total += n
}

// Len returns the number of distinct symbols.
func (c *Choices[S]) Len() int {
	return len(c.values)
}

// Total returns the sum of all frequencies.
func (c *Choices[S]) Total() int {
	return c.total
}

// Transitions returns a copy of the symbols and their frequencies in
// first-observation order.
func (c *Choices[S]) Transitions() []Transition[S] {
	return append([]Transition[S](nil), c.values...)
}

// pick draws one symbol. A temperature of 1 is plain frequency weighting,
// above 1 flattens the distribution, below 1 sharpens it and 0 or less
// always returns the most frequent symbol. A positive topK restricts the
// draw to the topK most frequent symbols.
func (c *Choices[S]) pick(r *rand.Rand, temperature float64, topK int) S {
	choices := c.values
	totalFreq := c.total

	if topK > 0 && topK < len(choices) {
		choices = append([]Transition[S](nil), choices...)
		sort.SliceStable(choices, func(i, j int) bool {
			return choices[i].Freq > choices[j].Freq
		})
		choices = choices[:topK]
		totalFreq = 0
		for _, choice := range choices {
			totalFreq += choice.Freq
		}
	}

	if temperature <= 0 {
		best := 0
		for i, choice := range choices {
			if choice.Freq > choices[best].Freq {
				best = i
			}
		}
		return choices[best].Symbol
	}

	if temperature == 1.0 {
		randChoice := r.IntN(totalFreq)
		for _, choice := range choices {
			randChoice -= choice.Freq
			if randChoice < 0 {
				return choice.Symbol
			}
		}
		return choices[len(choices)-1].Symbol
	}

	logProbabilities := make([]float64, len(choices))
	epsilon := math.Inf(-1)
	for i, choice := range choices {
		lp := math.Log(float64(choice.Freq)) / temperature
		logProbabilities[i] = lp
		if lp > epsilon {
			epsilon = lp
		}
	}
	var totalWeight float64
	weights := make([]float64, len(choices))
	for i, lp := range logProbabilities {
		w := math.Exp(lp - epsilon)
		weights[i] = w
		totalWeight += w
	}
	randChoice := r.Float64() * totalWeight
	for i, choice := range choices {
		randChoice -= weights[i]
		if randChoice < 0 {
			return choice.Symbol
		}
	}
	return choices[len(choices)-1].Symbol
}
