package player_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/lavago/lavago/internal/fakenode"
	"github.com/lavago/lavago/pkg/node"
	"github.com/lavago/lavago/pkg/player"
	"github.com/lavago/lavago/pkg/protocol"
	"github.com/lavago/lavago/pkg/track"
)

const password = "youshallnotpass"

const info = `{"identifier":"%[1]s","isSeekable":true,"author":"Artist","length":180000,"isStream":false,"sourceName":"youtube","title":"Song %[1]s","uri":"https://youtu.be/%[1]s"}`

func newTrack(t *testing.T, id string) *track.Track {
	t.Helper()
	tr, err := track.Decode(track.KindYouTube, "enc-"+id, []byte(fmt.Sprintf(info, id)))
	require.NoError(t, err)
	return tr
}

type harness struct {
	fake *fakenode.Server
	node *node.Node
}

func setup(t *testing.T) *harness {
	t.Helper()

	fake := fakenode.Start(password)
	t.Cleanup(fake.Close)

	n := node.New(node.Config{
		Identifier: "main",
		Host:       fake.Host(),
		Port:       fake.Port(),
		Password:   password,
		UserID:     "1",
	})
	t.Cleanup(func() { n.Close() })

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	require.NoError(t, n.WaitConnected(ctx))
	<-fake.Accepted()

	return &harness{fake: fake, node: n}
}

// next returns the next frame the node received.
func (h *harness) next(t *testing.T) gjson.Result {
	t.Helper()
	select {
	case data := <-h.fake.Received():
		return gjson.ParseBytes(data)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
		return gjson.Result{}
	}
}

func TestPlay(t *testing.T) {
	t.Parallel()

	h := setup(t)
	p := player.New(h.node, "42", player.Config{})

	require.NoError(t, p.Play(t.Context(), newTrack(t, "a"), player.PlayOptions{Start: 1500 * time.Millisecond}))

	frame := h.next(t)
	assert.Equal(t, "play", frame.Get("op").String())
	assert.Equal(t, "42", frame.Get("guildId").String())
	assert.Equal(t, "enc-a", frame.Get("track").String())
	assert.Equal(t, "1500", frame.Get("startTime").String())
	assert.Equal(t, "100", frame.Get("volume").String())
	assert.False(t, frame.Get("endTime").Exists())

	assert.True(t, p.IsPlaying())
	assert.Equal(t, "Song a", p.Track().Title())
	assert.GreaterOrEqual(t, p.Position(), 1500*time.Millisecond)
}

func TestPlayNoReplace(t *testing.T) {
	t.Parallel()

	h := setup(t)
	p := player.New(h.node, "42", player.Config{})

	require.NoError(t, p.Play(t.Context(), newTrack(t, "a"), player.PlayOptions{}))
	require.NoError(t, p.Play(t.Context(), newTrack(t, "b"), player.PlayOptions{NoReplace: true}))
	require.NoError(t, p.Pause(t.Context()))

	assert.Equal(t, "enc-a", h.next(t).Get("track").String())
	// the second play was skipped, so the pause is the next frame
	assert.Equal(t, "pause", h.next(t).Get("op").String())
	assert.Equal(t, "Song a", p.Track().Title())
}

func TestPlayNilTrack(t *testing.T) {
	t.Parallel()

	h := setup(t)
	p := player.New(h.node, "42", player.Config{})

	assert.ErrorIs(t, p.Play(t.Context(), nil, player.PlayOptions{}), player.ErrNoTrack)
}

func TestPlayResult(t *testing.T) {
	t.Parallel()

	h := setup(t)
	h.fake.SetLoadResult("ytsearch:song", `{"loadType":"SEARCH_RESULT","playlistInfo":{},"tracks":[`+
		`{"track":"enc-x","info":`+fmt.Sprintf(info, "x")+`},`+
		`{"track":"enc-y","info":`+fmt.Sprintf(info, "y")+`}]}`)
	p := player.New(h.node, "42", player.Config{})

	res, err := track.Search(t.Context(), track.KindYouTube, "song", h.node, track.SearchOptions{UseQuery: true, Partial: true})
	require.NoError(t, err)
	require.Equal(t, track.ResultPartial, res.Type)

	require.NoError(t, p.PlayResult(t.Context(), res, player.PlayOptions{}))
	assert.Equal(t, "enc-x", h.next(t).Get("track").String())

	assert.ErrorIs(t, p.PlayResult(t.Context(), track.Result{}, player.PlayOptions{}), player.ErrNoTrack)
}

func TestStopPauseResume(t *testing.T) {
	t.Parallel()

	h := setup(t)
	p := player.New(h.node, "42", player.Config{})

	require.NoError(t, p.Play(t.Context(), newTrack(t, "a"), player.PlayOptions{}))
	h.next(t)

	require.NoError(t, p.Pause(t.Context()))
	frame := h.next(t)
	assert.Equal(t, "pause", frame.Get("op").String())
	assert.True(t, frame.Get("pause").Bool())
	assert.True(t, p.IsPaused())

	require.NoError(t, p.Resume(t.Context()))
	assert.False(t, h.next(t).Get("pause").Bool())
	assert.False(t, p.IsPaused())

	require.NoError(t, p.Stop(t.Context()))
	assert.Equal(t, "stop", h.next(t).Get("op").String())
	assert.False(t, p.IsPlaying())
	assert.Zero(t, p.Position())
}

func TestSeek(t *testing.T) {
	t.Parallel()

	h := setup(t)
	p := player.New(h.node, "42", player.Config{})

	assert.ErrorIs(t, p.Seek(t.Context(), time.Second), player.ErrNoTrack)

	require.NoError(t, p.Play(t.Context(), newTrack(t, "a"), player.PlayOptions{}))
	h.next(t)

	assert.ErrorIs(t, p.Seek(t.Context(), 4*time.Minute), player.ErrSeekOutOfRange)

	require.NoError(t, p.Seek(t.Context(), time.Minute))
	frame := h.next(t)
	assert.Equal(t, "seek", frame.Get("op").String())
	assert.Equal(t, int64(60000), frame.Get("position").Int())
}

func TestSetVolumeClamps(t *testing.T) {
	t.Parallel()

	h := setup(t)
	p := player.New(h.node, "42", player.Config{})

	require.NoError(t, p.SetVolume(t.Context(), 5000))
	assert.Equal(t, int64(player.MaxVolume), h.next(t).Get("volume").Int())
	assert.Equal(t, player.MaxVolume, p.Volume())

	require.NoError(t, p.SetVolume(t.Context(), -3))
	assert.Equal(t, int64(0), h.next(t).Get("volume").Int())
	assert.Equal(t, 0, p.Volume())
}

func TestSetEqualizer(t *testing.T) {
	t.Parallel()

	h := setup(t)
	p := player.New(h.node, "42", player.Config{})

	eq, err := player.NewEqualizer("Boost", protocol.Band{Band: 0, Gain: 0.5})
	require.NoError(t, err)
	require.NoError(t, p.SetEqualizer(t.Context(), eq))

	frame := h.next(t)
	assert.Equal(t, "equalizer", frame.Get("op").String())
	assert.Len(t, frame.Get("bands").Array(), player.BandCount)
	assert.Equal(t, 0.5, frame.Get("bands.0.gain").Float())
	assert.Equal(t, "Boost", p.Equalizer().Name())
}

func TestVoiceUpdateWaitsForBothHalves(t *testing.T) {
	t.Parallel()

	h := setup(t)
	p := player.New(h.node, "42", player.Config{})

	channel := "123"
	require.NoError(t, p.UpdateVoiceState(t.Context(), "session-1", &channel))
	assert.False(t, p.IsConnected())

	event := json.RawMessage(`{"token":"abc","guild_id":"42","endpoint":"voice.example"}`)
	require.NoError(t, p.UpdateVoiceServer(t.Context(), event))

	frame := h.next(t)
	assert.Equal(t, "voiceUpdate", frame.Get("op").String())
	assert.Equal(t, "session-1", frame.Get("sessionId").String())
	assert.Equal(t, "abc", frame.Get("event.token").String())
	assert.True(t, p.IsConnected())

	require.NoError(t, p.UpdateVoiceState(t.Context(), "", nil))
	assert.False(t, p.IsConnected())
}

func TestAutoAdvance(t *testing.T) {
	t.Parallel()

	h := setup(t)
	states := make(chan player.State, 16)
	p := player.New(h.node, "42", player.Config{
		AutoAdvance:   true,
		OnStateChange: func(s player.State) { states <- s },
	})
	p.Queue.Add(newTrack(t, "b"))

	require.NoError(t, p.Play(t.Context(), newTrack(t, "a"), player.PlayOptions{}))
	h.next(t)

	require.NoError(t, h.fake.PushRaw([]byte(`{"op":"event","type":"TrackEndEvent","guildId":"42","track":"enc-a","reason":"FINISHED"}`)))

	frame := h.next(t)
	assert.Equal(t, "play", frame.Get("op").String())
	assert.Equal(t, "enc-b", frame.Get("track").String())
	assert.True(t, p.Queue.IsEmpty())

	require.Eventually(t, func() bool {
		tr := p.Track()
		return tr != nil && tr.ID() == "enc-b"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReplacedEndKeepsTrack(t *testing.T) {
	t.Parallel()

	h := setup(t)
	events := make(chan node.Event, 1)
	p := player.New(h.node, "42", player.Config{
		AutoAdvance: true,
		OnEvent:     func(e node.Event) { events <- e },
	})
	p.Queue.Add(newTrack(t, "b"))

	require.NoError(t, p.Play(t.Context(), newTrack(t, "a"), player.PlayOptions{}))
	h.next(t)

	require.NoError(t, h.fake.PushRaw([]byte(`{"op":"event","type":"TrackEndEvent","guildId":"42","track":"enc-a","reason":"REPLACED"}`)))

	select {
	case e := <-events:
		assert.Equal(t, "REPLACED", e.Reason)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	assert.Equal(t, "enc-a", p.Track().ID())
	assert.Equal(t, 1, p.Queue.Len())
}

func TestDestroyDetaches(t *testing.T) {
	t.Parallel()

	h := setup(t)
	p := player.New(h.node, "42", player.Config{})
	assert.Equal(t, 1, h.node.PlayerCount())

	require.NoError(t, p.Destroy(t.Context()))
	assert.Equal(t, "destroy", h.next(t).Get("op").String())
	assert.Equal(t, 0, h.node.PlayerCount())
}
