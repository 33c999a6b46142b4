package markov

// ChainStats holds aggregated statistics for a single chain.
type ChainStats struct {
	Order          int // The number of symbols in each context
	Contexts       int // The number of distinct contexts
	Transitions    int // The number of unique context->symbol links
	TotalFrequency int // The sum of frequencies of all links; the total number of observed transitions
	Symbols        int // The number of distinct symbols appearing as successors
}

// Stats returns a snapshot of statistics for the chain.
func (c *Chain[S]) Stats() ChainStats {
	stats := ChainStats{Order: c.order, Contexts: len(c.links)}
	seen := make(map[string]struct{})
	for _, l := range c.links {
		stats.Transitions += l.next.Len()
		stats.TotalFrequency += l.next.Total()
		for _, t := range l.next.values {
			seen[t.Symbol.Key()] = struct{}{}
		}
	}
	stats.Symbols = len(seen)
	return stats
}
