package score

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2/smf"
)

func TestMIDIKey(t *testing.T) {
	testCases := []struct {
		name string
		want uint8
	}{
		{"C4", 60},
		{"A4", 69},
		{"C#4", 61},
		{"B-3", 58},
		{"Eb5", 75},
		{"G", 67},
		{"F##2", 43},
		// '-' is always a flat, never an octave sign
		{"C-1", 23},
	}
	for _, tc := range testCases {
		got, err := MIDIKey(tc.name)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}

	for _, bad := range []string{"", "H4", "C4x", "C12"} {
		_, err := MIDIKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestMIDIChannelSkipsPercussion(t *testing.T) {
	for i := 0; i < 40; i++ {
		assert.NotEqual(t, uint8(9), midiChannel(i))
		assert.Less(t, midiChannel(i), uint8(16))
	}
}

func TestRenderMIDI(t *testing.T) {
	streams := []Stream{
		{Instrument: "Piano", Events: []Event{
			{Type: Note, Content: "C4", QuarterLength: 1},
			{Type: Rest, Content: RestContent, QuarterLength: 1},
			{Type: Chord, Content: "C4;E4;G4", QuarterLength: 2},
		}},
		{Instrument: "Bass", Insufficient: true},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderMIDI(&buf, streams, 120))

	parsed, err := smf.ReadFrom(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, parsed.Tracks, 3, "tempo track plus one track per instrument")

	var channel, key, velocity uint8
	var onTicks []int64
	var keys []uint8
	var abs int64
	for _, ev := range parsed.Tracks[1] {
		abs += int64(ev.Delta)
		if ev.Message.GetNoteOn(&channel, &key, &velocity) {
			onTicks = append(onTicks, abs)
			keys = append(keys, key)
		}
	}
	assert.Equal(t, []uint8{60, 60, 64, 67}, keys)
	assert.Equal(t, []int64{0, 2 * TicksPerQuarter, 2 * TicksPerQuarter, 2 * TicksPerQuarter}, onTicks)

	for _, ev := range parsed.Tracks[2] {
		assert.False(t, ev.Message.GetNoteOn(&channel, &key, &velocity))
	}
}

func TestRenderMIDIRejectsBadPitch(t *testing.T) {
	streams := []Stream{{Instrument: "Snare", Events: []Event{{Type: Note, Content: "X9", QuarterLength: 1}}}}

	err := RenderMIDI(&bytes.Buffer{}, streams, 120)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Snare")
}
