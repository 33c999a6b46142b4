package score

import (
	"slices"
	"strings"
)

// jointSeparator separates the component keys of a JointState key.
const jointSeparator = "\x1f"

// JointState is one step of a parallel sequence: an event per instrument,
// ordered by the instrument list the sequence was built with.
type JointState []Event

// Key returns the canonical identity of the joint state.
func (j JointState) Key() string {
	var b strings.Builder
	for i, e := range j {
		if i > 0 {
			b.WriteString(jointSeparator)
		}
		e.appendKey(&b)
	}
	return b.String()
}

// Duration is the longest component duration. The slowest moving part
// governs how far the joint state advances time.
func (j JointState) Duration() float64 {
	var longest float64
	for _, e := range j {
		if e.QuarterLength > longest {
			longest = e.QuarterLength
		}
	}
	return longest
}

// Instruments returns the instrument names of parts in their stable order.
func Instruments(parts map[string][]Event) []string {
	names := make([]string, 0, len(parts))
	for name := range parts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// BuildJoint aligns per-instrument event sequences into one parallel
// sequence, ordering instruments by name. See buildJointOrdered.
func BuildJoint(parts map[string][]Event) ([]JointState, []string) {
	names := Instruments(parts)
	return buildJointOrdered(names, parts), names
}

// buildJointOrdered aligns the parts named in names, in that order. The
// result is as long as the longest part; shorter parts are padded with
// PadRest. Names missing from parts are treated as empty parts.
func buildJointOrdered(names []string, parts map[string][]Event) []JointState {
	var maxLen int
	for _, name := range names {
		maxLen = max(maxLen, len(parts[name]))
	}

	joint := make([]JointState, maxLen)
	for i := range joint {
		state := make(JointState, len(names))
		for j, name := range names {
			events := parts[name]
			if i < len(events) {
				state[j] = events[i]
			} else {
				state[j] = PadRest
			}
		}
		joint[i] = state
	}
	return joint
}

// Split de-interleaves a joint sequence back into one stream per
// instrument index.
func Split(states []JointState, arity int) [][]Event {
	streams := make([][]Event, arity)
	for i := range streams {
		streams[i] = make([]Event, 0, len(states))
	}
	for _, state := range states {
		for i := 0; i < arity && i < len(state); i++ {
			streams[i] = append(streams[i], state[i])
		}
	}
	return streams
}
