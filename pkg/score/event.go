package score

import (
	"fmt"
	"strconv"
	"strings"
)

// EventType classifies a single musical occurrence.
type EventType string

const (
	Note  EventType = "Note"
	Rest  EventType = "Rest"
	Chord EventType = "Chord"
)

const (
	// RestContent is the content string carried by every rest event.
	RestContent = "REST"
	// InsufficientData is the content written in place of a generated
	// sequence when the source was too short to build a model from.
	InsufficientData = "Insufficient Data"
)

// PadRest is appended to shorter parts when aligning instruments.
var PadRest = Event{Type: Rest, Content: RestContent, QuarterLength: 1.0, Measure: 1, Beat: 1}

// Event is one note, chord or rest of a single instrument part.
// QuarterLength is measured in quarter-note beats. Measure and Beat are
// positional metadata.
type Event struct {
	Type          EventType
	Content       string
	QuarterLength float64
	Measure       float64
	Beat          float64
}

// Key returns the canonical identity of the event. Two events with the same
// key are the same symbol to every model.
func (e Event) Key() string {
	var b strings.Builder
	e.appendKey(&b)
	return b.String()
}

func (e Event) appendKey(b *strings.Builder) {
	b.WriteString(string(e.Type))
	b.WriteByte('|')
	b.WriteString(e.Content)
	b.WriteByte('|')
	b.WriteString(formatFloat(e.QuarterLength))
	b.WriteByte('|')
	b.WriteString(formatFloat(e.Measure))
	b.WriteByte('|')
	b.WriteString(formatFloat(e.Beat))
}

// Duration returns the length of the event in quarter-note beats.
func (e Event) Duration() float64 {
	return e.QuarterLength
}

// IsRest reports whether the event sounds nothing.
func (e Event) IsRest() bool {
	return e.Type == Rest || e.Content == RestContent
}

// Pitches splits the content into its individual pitch names. Rests have none.
func (e Event) Pitches() []string {
	if e.IsRest() || e.Content == "" {
		return nil
	}
	return strings.Split(e.Content, ";")
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%s, %s)", e.Type, e.Content, formatFloat(e.QuarterLength))
}

// ParseEventType maps the Type column of an event row onto an EventType.
func ParseEventType(s string) (EventType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "note":
		return Note, nil
	case "rest":
		return Rest, nil
	case "chord":
		return Chord, nil
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
