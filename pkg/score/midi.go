package score

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/natefinch/atomic"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// TicksPerQuarter is the resolution of rendered MIDI files.
const TicksPerQuarter = 480

const defaultVelocity = 90

var pitchClasses = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// MIDIKey converts a pitch name in scientific notation ("C4", "F#3", "B-2",
// "Eb5") into a MIDI key number. A missing octave means octave 4.
func MIDIKey(name string) (uint8, error) {
	if name == "" {
		return 0, fmt.Errorf("empty pitch name")
	}
	pc, ok := pitchClasses[name[0]]
	if !ok {
		return 0, fmt.Errorf("invalid pitch name %q", name)
	}
	i := 1
accidentals:
	for ; i < len(name); i++ {
		switch name[i] {
		case '#':
			pc++
		case '-', 'b':
			pc--
		default:
			break accidentals
		}
	}
	oct := 4
	if i < len(name) {
		n, err := strconv.Atoi(name[i:])
		if err != nil {
			return 0, fmt.Errorf("invalid octave in pitch name %q", name)
		}
		oct = n
	}
	key := (oct+1)*12 + pc
	if key < 0 || key > 127 {
		return 0, fmt.Errorf("pitch %q outside the MIDI range", name)
	}
	return uint8(key), nil
}

// midiChannel spreads instruments over the melodic channels, skipping the
// General MIDI percussion channel.
func midiChannel(i int) uint8 {
	ch := i % 15
	if ch >= 9 {
		ch++
	}
	return uint8(ch)
}

// RenderMIDI writes streams as a type 1 standard MIDI file, one named track
// per instrument. Rests advance time; chord tones sound together.
func RenderMIDI(w io.Writer, streams []Stream, bpm float64) error {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(TicksPerQuarter)

	var tempo smf.Track
	tempo.Add(0, smf.MetaTempo(bpm))
	tempo.Close(0)
	if err := s.Add(tempo); err != nil {
		return err
	}

	for i, stream := range streams {
		track, err := renderTrack(stream, midiChannel(i))
		if err != nil {
			return fmt.Errorf("instrument %q: %w", stream.Instrument, err)
		}
		if err = s.Add(track); err != nil {
			return err
		}
	}

	_, err := s.WriteTo(w)
	return err
}

// RenderMIDIFile renders streams to path, replacing any existing file.
func RenderMIDIFile(path string, streams []Stream, bpm float64) error {
	var buf bytes.Buffer
	if err := RenderMIDI(&buf, streams, bpm); err != nil {
		return err
	}
	return atomic.WriteFile(path, &buf)
}

func renderTrack(stream Stream, channel uint8) (smf.Track, error) {
	var track smf.Track
	track.Add(0, smf.MetaTrackSequenceName(stream.Instrument))
	if stream.Insufficient {
		track.Close(0)
		return track, nil
	}

	var pending uint32
	for _, e := range stream.Events {
		ticks := uint32(math.Round(e.QuarterLength * TicksPerQuarter))
		pitches := e.Pitches()
		if len(pitches) == 0 {
			pending += ticks
			continue
		}

		keys := make([]uint8, 0, len(pitches))
		for _, p := range pitches {
			key, err := MIDIKey(p)
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}

		for j, key := range keys {
			delta := uint32(0)
			if j == 0 {
				delta = pending
			}
			track.Add(delta, midi.NoteOn(channel, key, defaultVelocity))
		}
		for j, key := range keys {
			delta := uint32(0)
			if j == 0 {
				delta = ticks
			}
			track.Add(delta, midi.NoteOff(channel, key))
		}
		pending = 0
	}
	track.Close(pending)
	return track, nil
}
