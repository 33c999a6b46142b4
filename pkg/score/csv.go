package score

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
)

// Column names of event rows, as produced by the notation extractor.
const (
	ColumnStep     = "Sequence_Step"
	ColumnType     = "Type"
	ColumnContent  = "Pitch/Content"
	ColumnDuration = "Duration_QuarterNotes"
	ColumnMeasure  = "Measure"
	ColumnBeat     = "Beat"
)

// RequiredColumns must be present in the header of every event file.
// Measure and Beat are optional and default to 1.
var RequiredColumns = []string{ColumnType, ColumnContent, ColumnDuration}

// ErrNonPositiveDuration is wrapped by the RowError of an event that does
// not last at least some fraction of a beat.
var ErrNonPositiveDuration = errors.New("duration must be positive")

var outputHeader = []string{ColumnStep, ColumnType, ColumnContent, ColumnDuration, ColumnMeasure, ColumnBeat}

// MissingColumnError reports a required column absent from an input unit.
type MissingColumnError struct {
	Unit   string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: missing required column %q", e.Unit, e.Column)
}

// RowError reports a malformed field in an event row.
type RowError struct {
	Unit   string
	Line   int
	Column string
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s:%d: column %q: %v", e.Unit, e.Line, e.Column, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// ReadEvents parses event rows from r. The header is validated before any
// row is read, so a file missing a required column yields no events at all.
// unit names the input in errors. Insufficient-data sentinel rows are
// skipped.
func ReadEvents(r io.Reader, unit string) ([]Event, error) {
	events, _, err := readEvents(r, unit)
	return events, err
}

func readEvents(r io.Reader, unit string) ([]Event, bool, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, false, &MissingColumnError{Unit: unit, Column: RequiredColumns[0]}
		}
		return nil, false, fmt.Errorf("%s: could not read header: %w", unit, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			return nil, false, &MissingColumnError{Unit: unit, Column: col}
		}
	}

	field := func(record []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var events []Event
	var sentinel bool
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, false, fmt.Errorf("%s:%d: %w", unit, line, err)
		}
		if field(record, ColumnContent) == InsufficientData && field(record, ColumnType) == "" {
			sentinel = true
			continue
		}

		eventType, err := ParseEventType(field(record, ColumnType))
		if err != nil {
			return nil, false, &RowError{Unit: unit, Line: line, Column: ColumnType, Err: err}
		}
		duration, err := parseQuarterLength(field(record, ColumnDuration))
		if err != nil {
			return nil, false, &RowError{Unit: unit, Line: line, Column: ColumnDuration, Err: err}
		}
		if !(duration > 0) {
			return nil, false, &RowError{Unit: unit, Line: line, Column: ColumnDuration, Err: ErrNonPositiveDuration}
		}
		measure, err := parseOptional(field(record, ColumnMeasure))
		if err != nil {
			return nil, false, &RowError{Unit: unit, Line: line, Column: ColumnMeasure, Err: err}
		}
		beat, err := parseOptional(field(record, ColumnBeat))
		if err != nil {
			return nil, false, &RowError{Unit: unit, Line: line, Column: ColumnBeat, Err: err}
		}

		content := field(record, ColumnContent)
		if content == "" && eventType == Rest {
			content = RestContent
		}

		events = append(events, Event{
			Type:          eventType,
			Content:       content,
			QuarterLength: duration,
			Measure:       measure,
			Beat:          beat,
		})
	}
	return events, sentinel, nil
}

// ReadEventsFile reads one instrument part from a CSV file.
func ReadEventsFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	return ReadEvents(f, filepath.Base(path))
}

// ReadStreamFile reads a generated stream back from a CSV file. The
// instrument is named after the file, without a gen_ prefix.
func ReadStreamFile(path string) (Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stream{}, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	events, sentinel, err := readEvents(f, filepath.Base(path))
	if err != nil {
		return Stream{}, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Stream{
		Instrument:   strings.TrimPrefix(name, "gen_"),
		Events:       events,
		Insufficient: sentinel && len(events) == 0,
	}, nil
}

// ReadStreamDir reads every CSV file of a directory as a stream, in file
// name order.
func ReadStreamDir(dir string) ([]Stream, error) {
	paths, err := ListCSV(dir)
	if err != nil {
		return nil, err
	}
	streams := make([]Stream, 0, len(paths))
	for _, path := range paths {
		s, err := ReadStreamFile(path)
		if err != nil {
			return nil, err
		}
		streams = append(streams, s)
	}
	return streams, nil
}

// ListCSV lists the CSV files of dir in name order. The extension is
// matched case-insensitively.
func ListCSV(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}

// ReadDir reads every CSV file of a directory as an instrument part, keyed
// by the file name without its extension.
func ReadDir(dir string) (map[string][]Event, error) {
	paths, err := ListCSV(dir)
	if err != nil {
		return nil, err
	}
	parts := make(map[string][]Event, len(paths))
	for _, path := range paths {
		events, err := ReadEventsFile(path)
		if err != nil {
			return nil, err
		}
		name := filepath.Base(path)
		parts[strings.TrimSuffix(name, filepath.Ext(name))] = events
	}
	return parts, nil
}

// parseQuarterLength accepts decimal numbers and the a/b fractions music21
// writes for tuplet durations.
func parseQuarterLength(s string) (float64, error) {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
		if err != nil {
			return 0, err
		}
		d, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err != nil {
			return 0, err
		}
		if d == 0 {
			return 0, errors.New("zero denominator")
		}
		return n / d, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseOptional(s string) (float64, error) {
	if s == "" || strings.EqualFold(s, "none") {
		return 1, nil
	}
	return parseQuarterLength(s)
}

// Stream is the generated output of one instrument.
type Stream struct {
	Instrument   string
	Events       []Event
	Insufficient bool
}

// JointStreams de-interleaves a joint sequence into per-instrument streams.
func JointStreams(names []string, states []JointState, insufficient bool) []Stream {
	split := Split(states, len(names))
	streams := make([]Stream, len(names))
	for i, name := range names {
		streams[i] = Stream{Instrument: name, Events: split[i], Insufficient: insufficient}
	}
	return streams
}

// WriteStream writes one instrument stream as CSV, one record per step.
// An insufficient stream is written as a single sentinel record.
func WriteStream(w io.Writer, s Stream) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(outputHeader); err != nil {
		return err
	}
	if s.Insufficient {
		if err := cw.Write([]string{"0", "", InsufficientData, "", "", ""}); err != nil {
			return err
		}
	} else {
		for step, e := range s.Events {
			record := []string{
				strconv.Itoa(step),
				string(e.Type),
				e.Content,
				formatFloat(e.QuarterLength),
				formatFloat(e.Measure),
				formatFloat(e.Beat),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteStreams writes every stream to dir as gen_<instrument>.csv. Files are
// replaced atomically so an interrupted batch never leaves half a stream.
func WriteStreams(dir string, streams []Stream) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create output directory: %w", err)
	}
	var buf bytes.Buffer
	for _, s := range streams {
		buf.Reset()
		if err := WriteStream(&buf, s); err != nil {
			return fmt.Errorf("could not encode stream %q: %w", s.Instrument, err)
		}
		path := filepath.Join(dir, "gen_"+s.Instrument+".csv")
		if err := atomic.WriteFile(path, bytes.NewReader(buf.Bytes())); err != nil {
			return fmt.Errorf("could not write stream %q: %w", s.Instrument, err)
		}
	}
	return nil
}
