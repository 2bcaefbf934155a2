// ABOUTME: Lavalink node message type definitions
// ABOUTME: Outbound player commands and inbound playerUpdate/stats/event payloads
package protocol

import (
	"strconv"

	"github.com/goccy/go-json"
)

// Op names the operation carried by a frame.
type Op string

const (
	OpVoiceUpdate  Op = "voiceUpdate"
	OpPlay         Op = "play"
	OpStop         Op = "stop"
	OpPause        Op = "pause"
	OpSeek         Op = "seek"
	OpVolume       Op = "volume"
	OpEqualizer    Op = "equalizer"
	OpDestroy      Op = "destroy"
	OpPlayerUpdate Op = "playerUpdate"
	OpStats        Op = "stats"
	OpEvent        Op = "event"
)

// VoiceUpdate forwards the voice session of a guild to the node.
type VoiceUpdate struct {
	Op        Op              `json:"op"`
	GuildID   string          `json:"guildId"`
	SessionID string          `json:"sessionId"`
	Event     json.RawMessage `json:"event"` // raw VOICE_SERVER_UPDATE payload
}

// Play starts a track on a guild's player.
// Start, end and volume travel as strings, which is what the node expects.
type Play struct {
	Op        Op     `json:"op"`
	GuildID   string `json:"guildId"`
	Track     string `json:"track"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime,omitempty"`
	Volume    string `json:"volume"`
	NoReplace bool   `json:"noReplace"`
	Pause     bool   `json:"pause"`
}

// GuildOp is a command that only needs the guild, such as stop or destroy.
type GuildOp struct {
	Op      Op     `json:"op"`
	GuildID string `json:"guildId"`
}

// Pause toggles the paused state.
type Pause struct {
	Op      Op     `json:"op"`
	GuildID string `json:"guildId"`
	Pause   bool   `json:"pause"`
}

// Seek moves playback to Position milliseconds.
type Seek struct {
	Op       Op     `json:"op"`
	GuildID  string `json:"guildId"`
	Position int64  `json:"position"`
}

// Volume sets the player volume (0-1000).
type Volume struct {
	Op      Op     `json:"op"`
	GuildID string `json:"guildId"`
	Volume  int    `json:"volume"`
}

// Band is a single equalizer band adjustment.
type Band struct {
	Band int     `json:"band"`
	Gain float64 `json:"gain"`
}

// Equalizer replaces all equalizer bands.
type Equalizer struct {
	Op      Op     `json:"op"`
	GuildID string `json:"guildId"`
	Bands   []Band `json:"bands"`
}

// NewVoiceUpdate builds a voiceUpdate command.
func NewVoiceUpdate(guildID, sessionID string, event json.RawMessage) VoiceUpdate {
	return VoiceUpdate{Op: OpVoiceUpdate, GuildID: guildID, SessionID: sessionID, Event: event}
}

// NewPlay builds a play command. Times are in milliseconds; an endMs of 0
// plays to the end of the track.
func NewPlay(guildID, track string, startMs, endMs int64, volume int, noReplace, pause bool) Play {
	p := Play{
		Op:        OpPlay,
		GuildID:   guildID,
		Track:     track,
		StartTime: strconv.FormatInt(startMs, 10),
		Volume:    strconv.Itoa(volume),
		NoReplace: noReplace,
		Pause:     pause,
	}
	if endMs > 0 {
		p.EndTime = strconv.FormatInt(endMs, 10)
	}
	return p
}

// NewStop builds a stop command.
func NewStop(guildID string) GuildOp {
	return GuildOp{Op: OpStop, GuildID: guildID}
}

// NewDestroy builds a destroy command.
func NewDestroy(guildID string) GuildOp {
	return GuildOp{Op: OpDestroy, GuildID: guildID}
}

// NewPause builds a pause command.
func NewPause(guildID string, pause bool) Pause {
	return Pause{Op: OpPause, GuildID: guildID, Pause: pause}
}

// NewSeek builds a seek command.
func NewSeek(guildID string, positionMs int64) Seek {
	return Seek{Op: OpSeek, GuildID: guildID, Position: positionMs}
}

// NewVolume builds a volume command.
func NewVolume(guildID string, volume int) Volume {
	return Volume{Op: OpVolume, GuildID: guildID, Volume: volume}
}

// NewEqualizer builds an equalizer command.
func NewEqualizer(guildID string, bands []Band) Equalizer {
	return Equalizer{Op: OpEqualizer, GuildID: guildID, Bands: bands}
}

// PlayerUpdate is the periodic position report for a guild's player.
type PlayerUpdate struct {
	Op      Op          `json:"op"`
	GuildID string      `json:"guildId"`
	State   PlayerState `json:"state"`
}

// PlayerState is the node's view of a player at Time (unix millis).
type PlayerState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
}

// EventType names the kind of an event frame.
type EventType string

const (
	TrackStartEvent      EventType = "TrackStartEvent"
	TrackEndEvent        EventType = "TrackEndEvent"
	TrackExceptionEvent  EventType = "TrackExceptionEvent"
	TrackStuckEvent      EventType = "TrackStuckEvent"
	WebSocketClosedEvent EventType = "WebSocketClosedEvent"
)

// Event is a player event emitted by the node.
type Event struct {
	Op          Op              `json:"op"`
	Type        EventType       `json:"type"`
	GuildID     string          `json:"guildId"`
	Track       string          `json:"track,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Exception   *TrackException `json:"exception,omitempty"`
	ThresholdMs int64           `json:"thresholdMs,omitempty"`
	Code        int             `json:"code,omitempty"`
	ByRemote    bool            `json:"byRemote,omitempty"`
}

// TrackException describes why a track failed.
type TrackException struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

// MayStartNext reports whether a TrackEndEvent leaves the player free to
// start the next queued track.
func (e Event) MayStartNext() bool {
	if e.Type != TrackEndEvent {
		return false
	}
	return e.Reason == "FINISHED" || e.Reason == "LOAD_FAILED"
}
