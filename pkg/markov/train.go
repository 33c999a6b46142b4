package markov

import (
	"fmt"
)

// Build slides a window of order symbols over seq and records, for every
// window position, the symbol that follows the window.
//
// A sequence no longer than order yields ErrInsufficientData and no chain.
func Build[S Symbol](seq []S, order int) (*Chain[S], error) {
	if order < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidOrder, order)
	}
	if len(seq) <= order {
		return nil, fmt.Errorf("%w: %d symbols for order %d", ErrInsufficientData, len(seq), order)
	}

	keys := make([]string, len(seq))
	for i, s := range seq {
		keys[i] = s.Key()
	}

	c := newChain[S](order)
	var keyBuf []byte
	for i := 0; i+order < len(seq); i++ {
		keyBuf = appendWindowKey(keyBuf[:0], keys[i:i+order])

		idx, ok := c.index[string(keyBuf)]
		if !ok {
			l := &link[S]{
				key:     string(keyBuf),
				context: append([]S(nil), seq[i:i+order]...),
				next:    NewChoices[S](),
			}
			idx = len(c.links)
			c.links = append(c.links, l)
			c.index[l.key] = idx
		}
		c.links[idx].next.add(seq[i+order], keys[i+order], 1)
	}
	return c, nil
}
