package markov

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// ExportedChain is the serializable representation of a chain, used for
// JSON-based import and export. Symbols are stored once in Vocabulary and
// referred to by index everywhere else.
type ExportedChain struct {
	Order      int            `json:"order"`
	Vocabulary []string       `json:"vocabulary"` // symbol keys, indexed by symbol id
	Contexts   [][]int        `json:"contexts"`   // symbol ids, indexed by context id
	Links      []ExportedLink `json:"links"`
}

// ExportedLink is the serializable representation of a single transition
// in a chain, used within an ExportedChain.
type ExportedLink struct {
	ContextID int `json:"context_id"`
	NextID    int `json:"next_id"`
	Frequency int `json:"frequency"`
}

// Export serializes the chain into a JSON format and writes it to w.
func (c *Chain[S]) Export(w io.Writer) error {
	exported := ExportedChain{
		Order:    c.order,
		Contexts: make([][]int, 0, len(c.links)),
	}
	vocab := make(map[string]int)
	symbolID := func(s S) int {
		key := s.Key()
		if id, ok := vocab[key]; ok {
			return id
		}
		id := len(exported.Vocabulary)
		vocab[key] = id
		exported.Vocabulary = append(exported.Vocabulary, key)
		return id
	}

	for ctxID, l := range c.links {
		ids := make([]int, len(l.context))
		for i, s := range l.context {
			ids[i] = symbolID(s)
		}
		exported.Contexts = append(exported.Contexts, ids)
		for _, t := range l.next.values {
			exported.Links = append(exported.Links, ExportedLink{
				ContextID: ctxID,
				NextID:    symbolID(t.Symbol),
				Frequency: t.Freq,
			})
		}
	}

	c.logger.Info("Chain exported",
		slog.Int("order", c.order),
		slog.Int("vocab_items_exported", len(exported.Vocabulary)),
		slog.Int("contexts_exported", len(exported.Contexts)),
		slog.Int("links_exported", len(exported.Links)),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}

// Import reads a chain written by Export. decode turns a vocabulary key back
// into a symbol; it must be the inverse of Key for the symbols involved.
// Links to the same context and successor are merged by adding frequencies.
func Import[S Symbol](r io.Reader, decode func(key string) (S, error)) (*Chain[S], error) {
	var imported ExportedChain
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return nil, fmt.Errorf("failed to decode json chain: %w", err)
	}
	if imported.Order < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidOrder, imported.Order)
	}

	symbols := make([]S, len(imported.Vocabulary))
	for i, key := range imported.Vocabulary {
		s, err := decode(key)
		if err != nil {
			return nil, fmt.Errorf("failed to decode symbol %q: %w", key, err)
		}
		if s.Key() != key {
			return nil, fmt.Errorf("decoded symbol %q does not round-trip, got key %q", key, s.Key())
		}
		symbols[i] = s
	}
	symbol := func(id int) (S, error) {
		if id < 0 || id >= len(symbols) {
			var zero S
			return zero, fmt.Errorf("import consistency error: symbol id %d not in vocabulary", id)
		}
		return symbols[id], nil
	}

	c := newChain[S](imported.Order)
	linkOf := make([]int, len(imported.Contexts)) // context id -> link index
	for ctxID, ids := range imported.Contexts {
		if len(ids) != imported.Order {
			return nil, fmt.Errorf("import consistency error: context %d has %d symbols for order %d", ctxID, len(ids), imported.Order)
		}
		context := make([]S, len(ids))
		for i, id := range ids {
			s, err := symbol(id)
			if err != nil {
				return nil, err
			}
			context[i] = s
		}
		key := contextKey(context)
		idx, ok := c.index[key]
		if !ok {
			idx = len(c.links)
			c.links = append(c.links, &link[S]{key: key, context: context, next: NewChoices[S]()})
			c.index[key] = idx
		}
		linkOf[ctxID] = idx
	}

	for _, l := range imported.Links {
		if l.ContextID < 0 || l.ContextID >= len(linkOf) {
			return nil, fmt.Errorf("import consistency error: context id %d not found", l.ContextID)
		}
		if l.Frequency < 1 {
			return nil, fmt.Errorf("import consistency error: frequency %d for context %d", l.Frequency, l.ContextID)
		}
		next, err := symbol(l.NextID)
		if err != nil {
			return nil, err
		}
		c.links[linkOf[l.ContextID]].next.add(next, next.Key(), l.Frequency)
	}

	// Contexts without a single successor would be unusable dead weight.
	kept := c.links[:0]
	for _, l := range c.links {
		if l.next.Len() > 0 {
			kept = append(kept, l)
		}
	}
	c.links = kept
	c.reindex()
	if len(c.links) == 0 {
		return nil, ErrEmptyChain
	}

	c.logger.Info("Chain imported",
		slog.Int("order", c.order),
		slog.Int("contexts_imported", len(c.links)),
		slog.Int("links_imported", len(imported.Links)),
	)
	return c, nil
}
