package archive

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
)

// ExportedRun is the serializable representation of a run and its output,
// used for JSON-based export.
type ExportedRun struct {
	Run
	Streams []ExportedStream `json:"streams"`
}

// ExportedStream is the generated part of one instrument within an
// ExportedRun.
type ExportedStream struct {
	Instrument string          `json:"instrument"`
	Events     []ExportedEvent `json:"events"`
}

// ExportedEvent is the serializable representation of a single event.
type ExportedEvent struct {
	Type     string  `json:"type"`
	Content  string  `json:"content"`
	Duration float64 `json:"duration"`
	Measure  float64 `json:"measure"`
	Beat     float64 `json:"beat"`
}

// ExportRun serializes a run and its generated streams into a JSON format
// and writes it to w.
func (a *Archive) ExportRun(ctx context.Context, id string, w io.Writer) error {
	run, err := a.GetRun(ctx, id)
	if err != nil {
		return err
	}
	streams, err := a.Streams(ctx, id)
	if err != nil {
		return err
	}

	exported := ExportedRun{Run: run, Streams: make([]ExportedStream, 0, len(streams))}
	for _, s := range streams {
		events := make([]ExportedEvent, len(s.Events))
		for i, e := range s.Events {
			events[i] = ExportedEvent{
				Type:     string(e.Type),
				Content:  e.Content,
				Duration: e.QuarterLength,
				Measure:  e.Measure,
				Beat:     e.Beat,
			}
		}
		exported.Streams = append(exported.Streams, ExportedStream{Instrument: s.Instrument, Events: events})
	}

	a.logger.InfoContext(ctx, "Run exported",
		slog.String("run_id", id),
		slog.Int("streams_exported", len(exported.Streams)),
		slog.Int("steps_exported", run.Steps),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}
