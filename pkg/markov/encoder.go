package markov

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSymbol is returned when a frozen Encoder meets a symbol it
	// has not assigned a code to.
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrUnknownCode is returned by Decode for a code outside the alphabet.
	ErrUnknownCode = errors.New("unknown code")
)

// Encoder maps symbols to dense integer codes in order of first occurrence,
// so the first distinct symbol is 0 and the n-th distinct symbol is n-1.
// Decode inverts Encode for every assigned code.
type Encoder[S Symbol] struct {
	codes   map[string]int
	symbols []S
	frozen  bool
}

// NewEncoder returns an empty, unfrozen Encoder.
func NewEncoder[S Symbol]() *Encoder[S] {
	return &Encoder[S]{codes: make(map[string]int)}
}

// Encode returns the code of s, assigning the next free code the first time
// s is seen. A frozen Encoder returns ErrUnknownSymbol instead of assigning.
func (e *Encoder[S]) Encode(s S) (int, error) {
	key := s.Key()
	if code, ok := e.codes[key]; ok {
		return code, nil
	}
	if e.frozen {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, key)
	}
	code := len(e.symbols)
	e.codes[key] = code
	e.symbols = append(e.symbols, s)
	return code, nil
}

// EncodeAll encodes every symbol of seq.
func (e *Encoder[S]) EncodeAll(seq []S) ([]int, error) {
	out := make([]int, len(seq))
	for i, s := range seq {
		code, err := e.Encode(s)
		if err != nil {
			return nil, fmt.Errorf("symbol %d: %w", i, err)
		}
		out[i] = code
	}
	return out, nil
}

// Decode returns the symbol assigned to code.
func (e *Encoder[S]) Decode(code int) (S, error) {
	if code < 0 || code >= len(e.symbols) {
		var zero S
		return zero, fmt.Errorf("%w: %d (alphabet size %d)", ErrUnknownCode, code, len(e.symbols))
	}
	return e.symbols[code], nil
}

// Len returns the alphabet size.
func (e *Encoder[S]) Len() int {
	return len(e.symbols)
}

// Symbols returns the alphabet in code order.
func (e *Encoder[S]) Symbols() []S {
	return append([]S(nil), e.symbols...)
}

// Freeze stops the Encoder from assigning new codes.
func (e *Encoder[S]) Freeze() {
	e.frozen = true
}

// Frozen reports whether Freeze was called.
func (e *Encoder[S]) Frozen() bool {
	return e.frozen
}
