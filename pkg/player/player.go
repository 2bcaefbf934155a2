// ABOUTME: Per-guild player driving playback on a node
// ABOUTME: Sends player commands and tracks position from node updates
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/lavago/lavago/pkg/node"
	"github.com/lavago/lavago/pkg/protocol"
	"github.com/lavago/lavago/pkg/track"
)

const (
	DefaultVolume = 100
	MaxVolume     = 1000

	advanceTimeout = 10 * time.Second
)

var (
	ErrNoTrack        = errors.New("player: no track")
	ErrSeekOutOfRange = errors.New("player: seek position beyond track length")
)

// Config holds player configuration
type Config struct {
	// AutoAdvance plays the next queued track when one finishes.
	AutoAdvance bool

	// OnStateChange is called after every state change
	OnStateChange func(State)

	// OnEvent is called for every event addressed to this player
	OnEvent func(node.Event)

	// OnError is called when a background operation fails
	OnError func(error)

	Logger zerolog.Logger
}

// State describes the current state
type State struct {
	Track     *track.Track
	Paused    bool
	Volume    int
	Position  time.Duration
	Equalizer string
	Connected bool // voice session forwarded to the node
}

// PlayOptions tunes a Play call. The zero value plays from the start at the
// current volume, replacing the current track.
type PlayOptions struct {
	Start     time.Duration
	End       time.Duration // zero plays to the end
	Volume    int           // zero keeps the current volume
	NoReplace bool          // do nothing when a track is already playing
	Paused    bool
}

// Player controls playback for one guild on one node.
type Player struct {
	config  Config
	node    *node.Node
	guildID string
	logger  zerolog.Logger

	// Queue holds tracks for AutoAdvance and callers.
	Queue *Queue

	mu           sync.RWMutex
	track        *track.Track
	paused       bool
	volume       int
	equalizer    *Equalizer
	lastPosition time.Duration
	lastUpdate   time.Time
	sessionID    string
	voiceEvent   json.RawMessage
	connected    bool

	now func() time.Time
}

// New creates a player for guildID and attaches it to n.
func New(n *node.Node, guildID string, config Config) *Player {
	p := &Player{
		config:    config,
		node:      n,
		guildID:   guildID,
		logger:    config.Logger.With().Str("guild_id", guildID).Logger(),
		Queue:     NewQueue(),
		volume:    DefaultVolume,
		equalizer: Flat(),
		now:       time.Now,
	}
	n.Attach(guildID, p)
	return p
}

// GuildID returns the guild this player belongs to.
func (p *Player) GuildID() string {
	return p.guildID
}

// Node returns the node this player runs on.
func (p *Player) Node() *node.Node {
	return p.node
}

// Track returns the current track, or nil.
func (p *Player) Track() *track.Track {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.track
}

// IsPlaying reports whether a track is loaded.
func (p *Player) IsPlaying() bool {
	return p.Track() != nil
}

func (p *Player) IsPaused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

func (p *Player) Volume() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.volume
}

func (p *Player) Equalizer() *Equalizer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.equalizer
}

// IsConnected reports whether a voice session has been forwarded.
func (p *Player) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Position returns the playback position, extrapolated from the last node
// update and capped at the track length.
func (p *Player) Position() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() time.Duration {
	if p.track == nil {
		return 0
	}
	pos := p.lastPosition
	if !p.paused && !p.lastUpdate.IsZero() {
		pos += p.now().Sub(p.lastUpdate)
	}
	return min(pos, p.track.Length())
}

// Status returns a snapshot of the player.
func (p *Player) Status() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return State{
		Track:     p.track,
		Paused:    p.paused,
		Volume:    p.volume,
		Position:  p.positionLocked(),
		Equalizer: p.equalizer.Name(),
		Connected: p.connected,
	}
}

// Play starts t on the node.
func (p *Player) Play(ctx context.Context, t *track.Track, opts PlayOptions) error {
	if t == nil {
		return ErrNoTrack
	}
	if opts.NoReplace && p.IsPlaying() {
		return nil
	}

	volume := opts.Volume
	if volume == 0 {
		volume = p.Volume()
	}
	volume = clampVolume(volume)

	payload := protocol.NewPlay(p.guildID, t.ID(), opts.Start.Milliseconds(), opts.End.Milliseconds(), volume, opts.NoReplace, opts.Paused)
	if err := p.node.Send(ctx, payload); err != nil {
		return fmt.Errorf("failed to play %q: %w", t.Title(), err)
	}

	p.mu.Lock()
	p.track = t
	p.volume = volume
	p.paused = opts.Paused
	p.lastPosition = opts.Start
	p.lastUpdate = p.now()
	p.mu.Unlock()

	p.logger.Debug().Str("track", t.Title()).Msg("Playing")
	p.notifyStateChange()
	return nil
}

// PlayResult plays the first track of a search result, resolving partial
// resources on the player's node first.
func (p *Player) PlayResult(ctx context.Context, res track.Result, opts PlayOptions) error {
	if res.Type == track.ResultPartial {
		resolved, err := res.Partial.Resolve(ctx, p.node, true)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", res.Partial, err)
		}
		res = resolved
	}
	t, ok := res.First()
	if !ok {
		return ErrNoTrack
	}
	return p.Play(ctx, t, opts)
}

// Stop stops the current track.
func (p *Player) Stop(ctx context.Context) error {
	if err := p.node.Send(ctx, protocol.NewStop(p.guildID)); err != nil {
		return fmt.Errorf("failed to stop: %w", err)
	}

	p.mu.Lock()
	p.track = nil
	p.lastPosition = 0
	p.mu.Unlock()

	p.notifyStateChange()
	return nil
}

// Pause pauses playback.
func (p *Player) Pause(ctx context.Context) error {
	return p.setPaused(ctx, true)
}

// Resume resumes paused playback.
func (p *Player) Resume(ctx context.Context) error {
	return p.setPaused(ctx, false)
}

func (p *Player) setPaused(ctx context.Context, paused bool) error {
	if err := p.node.Send(ctx, protocol.NewPause(p.guildID, paused)); err != nil {
		return fmt.Errorf("failed to set pause: %w", err)
	}

	p.mu.Lock()
	// freeze or restart the position clock
	p.lastPosition = p.positionLocked()
	p.lastUpdate = p.now()
	p.paused = paused
	p.mu.Unlock()

	p.notifyStateChange()
	return nil
}

// Seek moves playback of the current track to pos.
func (p *Player) Seek(ctx context.Context, pos time.Duration) error {
	t := p.Track()
	if t == nil {
		return ErrNoTrack
	}
	if pos < 0 || pos > t.Length() {
		return fmt.Errorf("%w: %s > %s", ErrSeekOutOfRange, pos, t.Length())
	}

	if err := p.node.Send(ctx, protocol.NewSeek(p.guildID, pos.Milliseconds())); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	p.mu.Lock()
	p.lastPosition = pos
	p.lastUpdate = p.now()
	p.mu.Unlock()

	p.notifyStateChange()
	return nil
}

// SetVolume sets the volume, clamped to 0-1000.
func (p *Player) SetVolume(ctx context.Context, volume int) error {
	volume = clampVolume(volume)
	if err := p.node.Send(ctx, protocol.NewVolume(p.guildID, volume)); err != nil {
		return fmt.Errorf("failed to set volume: %w", err)
	}

	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()

	p.notifyStateChange()
	return nil
}

func clampVolume(v int) int {
	return max(0, min(v, MaxVolume))
}

// SetEqualizer applies eq to the player.
func (p *Player) SetEqualizer(ctx context.Context, eq *Equalizer) error {
	if eq == nil {
		eq = Flat()
	}
	if err := p.node.Send(ctx, protocol.NewEqualizer(p.guildID, eq.Bands())); err != nil {
		return fmt.Errorf("failed to set equalizer: %w", err)
	}

	p.mu.Lock()
	p.equalizer = eq
	p.mu.Unlock()

	p.notifyStateChange()
	return nil
}

// UpdateVoiceState records the voice session id. A nil channel means the
// bot left voice and clears the stored voice state.
func (p *Player) UpdateVoiceState(ctx context.Context, sessionID string, channelID *string) error {
	p.mu.Lock()
	if channelID == nil {
		p.sessionID = ""
		p.voiceEvent = nil
		p.connected = false
		p.mu.Unlock()
		p.notifyStateChange()
		return nil
	}
	p.sessionID = sessionID
	p.mu.Unlock()

	return p.sendVoiceUpdate(ctx)
}

// UpdateVoiceServer records the raw voice server event.
func (p *Player) UpdateVoiceServer(ctx context.Context, event json.RawMessage) error {
	p.mu.Lock()
	p.voiceEvent = event
	p.mu.Unlock()

	return p.sendVoiceUpdate(ctx)
}

// sendVoiceUpdate forwards the voice state once both halves are known.
func (p *Player) sendVoiceUpdate(ctx context.Context) error {
	p.mu.RLock()
	sessionID, event := p.sessionID, p.voiceEvent
	p.mu.RUnlock()

	if sessionID == "" || event == nil {
		return nil
	}
	if err := p.node.Send(ctx, protocol.NewVoiceUpdate(p.guildID, sessionID, event)); err != nil {
		return fmt.Errorf("failed to send voice update: %w", err)
	}

	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()

	p.logger.Debug().Msg("Voice update sent")
	p.notifyStateChange()
	return nil
}

// Destroy removes the player from the node.
func (p *Player) Destroy(ctx context.Context) error {
	defer p.node.Detach(p.guildID)

	if err := p.node.Send(ctx, protocol.NewDestroy(p.guildID)); err != nil {
		return fmt.Errorf("failed to destroy player: %w", err)
	}

	p.mu.Lock()
	p.track = nil
	p.connected = false
	p.mu.Unlock()

	p.Queue.Clear()
	return nil
}

// HandlePlayerUpdate implements node.Listener.
func (p *Player) HandlePlayerUpdate(update protocol.PlayerUpdate) {
	p.mu.Lock()
	p.lastPosition = time.Duration(update.State.Position) * time.Millisecond
	if update.State.Time > 0 {
		p.lastUpdate = time.UnixMilli(update.State.Time)
	} else {
		p.lastUpdate = p.now()
	}
	p.mu.Unlock()
}

// HandleEvent implements node.Listener.
func (p *Player) HandleEvent(event node.Event) {
	switch event.Type {
	case protocol.TrackEndEvent:
		if event.Reason != "REPLACED" {
			p.mu.Lock()
			p.track = nil
			p.lastPosition = 0
			p.mu.Unlock()
			p.notifyStateChange()
		}
		if p.config.AutoAdvance && event.MayStartNext() {
			p.advance()
		}

	case protocol.TrackExceptionEvent:
		if event.Exception != nil {
			p.logger.Warn().Str("severity", event.Exception.Severity).Str("cause", event.Exception.Cause).Msg(event.Exception.Message)
		}

	case protocol.TrackStuckEvent:
		p.logger.Warn().Int64("threshold_ms", event.ThresholdMs).Msg("Track stuck")

	case protocol.WebSocketClosedEvent:
		p.logger.Warn().Int("code", event.Code).Bool("by_remote", event.ByRemote).Str("reason", event.Reason).Msg("Voice connection closed")
		p.mu.Lock()
		p.connected = false
		p.mu.Unlock()
		p.notifyStateChange()
	}

	if p.config.OnEvent != nil {
		p.config.OnEvent(event)
	}
}

func (p *Player) advance() {
	next, err := p.Queue.Next()
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), advanceTimeout)
	defer cancel()
	if err := p.Play(ctx, next, PlayOptions{}); err != nil {
		p.notifyError(err)
	}
}

func (p *Player) notifyStateChange() {
	if p.config.OnStateChange != nil {
		p.config.OnStateChange(p.Status())
	}
}

func (p *Player) notifyError(err error) {
	p.logger.Error().Err(err).Msg("Player error")
	if p.config.OnError != nil {
		p.config.OnError(err)
	}
}
