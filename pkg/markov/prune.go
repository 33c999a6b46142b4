package markov

import (
	"log/slog"
)

// Prune removes every transition observed at most minFreq times. Contexts
// left without successors are removed as well, which can turn formerly
// reachable contexts into dead ends. It returns the number of transitions
// removed.
//
// Prune refuses to empty the chain: if no transition would survive, nothing
// is removed and 0 is returned.
func (c *Chain[S]) Prune(minFreq int) int {
	if minFreq < 1 {
		return 0
	}

	survivors := 0
	for _, l := range c.links {
		for _, t := range l.next.values {
			if t.Freq > minFreq {
				survivors++
			}
		}
	}
	if survivors == 0 {
		c.logger.Warn("Pruning would empty the chain, skipped",
			slog.Int("min_frequency", minFreq),
		)
		return 0
	}

	removed := 0
	kept := c.links[:0]
	for _, l := range c.links {
		next := NewChoices[S]()
		for _, t := range l.next.values {
			if t.Freq > minFreq {
				next.add(t.Symbol, t.Symbol.Key(), t.Freq)
			} else {
				removed++
			}
		}
		if next.Len() == 0 {
			continue
		}
		l.next = next
		kept = append(kept, l)
	}
	clear(c.links[len(kept):])
	c.links = kept
	c.reindex()

	c.logger.Info("Chain pruned",
		slog.Int("min_frequency", minFreq),
		slog.Int("transitions_removed", removed),
		slog.Int("contexts_left", len(c.links)),
	)
	return removed
}
