package score

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseEventKey rebuilds the Event whose Key is key. The content may itself
// contain the field separator; only the first and the last three separators
// delimit fields.
func ParseEventKey(key string) (Event, error) {
	typ, rest, ok := strings.Cut(key, "|")
	if !ok {
		return Event{}, fmt.Errorf("malformed event key %q", key)
	}
	fields := make([]float64, 3)
	for i := len(fields) - 1; i >= 0; i-- {
		cut := strings.LastIndexByte(rest, '|')
		if cut < 0 {
			return Event{}, fmt.Errorf("malformed event key %q", key)
		}
		f, err := strconv.ParseFloat(rest[cut+1:], 64)
		if err != nil {
			return Event{}, fmt.Errorf("event key %q: %w", key, err)
		}
		fields[i] = f
		rest = rest[:cut]
	}
	eventType, err := ParseEventType(typ)
	if err != nil {
		return Event{}, fmt.Errorf("event key %q: %w", key, err)
	}
	return Event{Type: eventType, Content: rest, QuarterLength: fields[0], Measure: fields[1], Beat: fields[2]}, nil
}

// ParseJointKey rebuilds the JointState whose Key is key.
func ParseJointKey(key string) (JointState, error) {
	parts := strings.Split(key, jointSeparator)
	state := make(JointState, len(parts))
	for i, part := range parts {
		e, err := ParseEventKey(part)
		if err != nil {
			return nil, fmt.Errorf("component %d: %w", i, err)
		}
		state[i] = e
	}
	return state, nil
}
