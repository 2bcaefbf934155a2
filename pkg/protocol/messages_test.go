// ABOUTME: Tests for Lavalink node message payloads
// ABOUTME: Verifies the wire shape of player commands and inbound decoding
package protocol

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayPayloadShape(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(NewPlay("42", "QAAAjQIAJVJpY2sgQXN0bGV5", 1500, 0, 100, true, false))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"op": "play",
		"guildId": "42",
		"track": "QAAAjQIAJVJpY2sgQXN0bGV5",
		"startTime": "1500",
		"volume": "100",
		"noReplace": true,
		"pause": false
	}`, string(data))
}

func TestPlayPayloadWithEndTime(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(NewPlay("42", "QA", 0, 90000, 50, false, true))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "90000", decoded["endTime"])
	assert.Equal(t, "0", decoded["startTime"])
	assert.Equal(t, true, decoded["pause"])
}

func TestCommandPayloadShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{"stop", NewStop("1"), `{"op":"stop","guildId":"1"}`},
		{"destroy", NewDestroy("1"), `{"op":"destroy","guildId":"1"}`},
		{"pause", NewPause("1", true), `{"op":"pause","guildId":"1","pause":true}`},
		{"resume", NewPause("1", false), `{"op":"pause","guildId":"1","pause":false}`},
		{"seek", NewSeek("1", 30000), `{"op":"seek","guildId":"1","position":30000}`},
		{"volume", NewVolume("1", 250), `{"op":"volume","guildId":"1","volume":250}`},
		{
			"equalizer",
			NewEqualizer("1", []Band{{Band: 0, Gain: 0.25}, {Band: 14, Gain: -0.25}}),
			`{"op":"equalizer","guildId":"1","bands":[{"band":0,"gain":0.25},{"band":14,"gain":-0.25}]}`,
		},
		{
			"voiceUpdate",
			NewVoiceUpdate("1", "abc", json.RawMessage(`{"token":"t","endpoint":"e"}`)),
			`{"op":"voiceUpdate","guildId":"1","sessionId":"abc","event":{"token":"t","endpoint":"e"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, err := json.Marshal(tt.payload)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestEventDecoding(t *testing.T) {
	t.Parallel()

	raw := `{
		"op": "event",
		"type": "TrackExceptionEvent",
		"guildId": "9",
		"track": "QA",
		"exception": {"message": "blocked", "severity": "COMMON", "cause": "geo"}
	}`

	var event Event
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	assert.Equal(t, TrackExceptionEvent, event.Type)
	require.NotNil(t, event.Exception)
	assert.Equal(t, "blocked", event.Exception.Message)
	assert.Equal(t, "COMMON", event.Exception.Severity)
	assert.False(t, event.MayStartNext())
}

func TestMayStartNext(t *testing.T) {
	t.Parallel()

	assert.True(t, Event{Type: TrackEndEvent, Reason: "FINISHED"}.MayStartNext())
	assert.True(t, Event{Type: TrackEndEvent, Reason: "LOAD_FAILED"}.MayStartNext())
	assert.False(t, Event{Type: TrackEndEvent, Reason: "REPLACED"}.MayStartNext())
	assert.False(t, Event{Type: TrackEndEvent, Reason: "STOPPED"}.MayStartNext())
	assert.False(t, Event{Type: TrackStartEvent}.MayStartNext())
}
