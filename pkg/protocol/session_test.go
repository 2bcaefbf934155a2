// ABOUTME: Tests for the node session lifecycle
// ABOUTME: Runs against an in-process fake node over a real WebSocket
package protocol_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/lavago/lavago/internal/fakenode"
	"github.com/lavago/lavago/pkg/protocol"
)

const password = "youshallnotpass"

func testConfig(fake *fakenode.Server) protocol.Config {
	return protocol.Config{
		Host:       fake.Host(),
		Port:       fake.Port(),
		Password:   password,
		UserID:     "184405311681986560",
		ClientName: "lavago-test",
		Backoff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(10 * time.Millisecond)
		},
	}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func receive(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case data := <-ch:
		return data
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestSessionPresentsHeaders(t *testing.T) {
	t.Parallel()

	fake := fakenode.Start(password)
	defer fake.Close()

	session := protocol.NewSession(testConfig(fake))
	defer session.Close()

	require.NoError(t, session.WaitConnected(waitCtx(t)))
	assert.Equal(t, protocol.StateConnected, session.State())

	select {
	case header := <-fake.Accepted():
		assert.Equal(t, password, header.Get("Authorization"))
		assert.Equal(t, "184405311681986560", header.Get("User-Id"))
		assert.Equal(t, "lavago-test", header.Get("Client-Name"))
	case <-time.After(5 * time.Second):
		t.Fatal("handshake headers never arrived")
	}
}

func TestSessionURLs(t *testing.T) {
	t.Parallel()

	session := protocol.NewSession(protocol.Config{Host: "127.0.0.1", Port: 1, Secure: true})
	defer session.Close()

	assert.Equal(t, "wss://127.0.0.1:1", session.WebSocketURL())
	assert.Equal(t, "https://127.0.0.1:1", session.RESTURL())
	assert.Equal(t, protocol.DefaultClientName, session.Headers().Get("Client-Name"))
}

func TestSendBeforeConnected(t *testing.T) {
	t.Parallel()

	fake := fakenode.Start(password)
	defer fake.Close()
	fake.Hold()

	session := protocol.NewSession(testConfig(fake))
	defer session.Close()

	err := session.Send(t.Context(), protocol.NewStop("1"))
	require.ErrorIs(t, err, protocol.ErrNotConnected)
	assert.NotEqual(t, protocol.StateConnected, session.State())

	fake.Release()
	require.NoError(t, session.WaitConnected(waitCtx(t)))

	select {
	case data := <-fake.Received():
		t.Fatalf("unexpected frame written: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSendPreservesOrder(t *testing.T) {
	t.Parallel()

	fake := fakenode.Start(password)
	defer fake.Close()

	session := protocol.NewSession(testConfig(fake))
	defer session.Close()
	require.NoError(t, session.WaitConnected(waitCtx(t)))

	for i := range 10 {
		require.NoError(t, session.Send(t.Context(), protocol.NewSeek("1", int64(i))))
	}
	for i := range 10 {
		data := receive(t, fake.Received())
		assert.Equal(t, "seek", gjson.GetBytes(data, "op").String())
		assert.Equal(t, int64(i), gjson.GetBytes(data, "position").Int())
	}
}

func TestConcurrentSends(t *testing.T) {
	t.Parallel()

	fake := fakenode.Start(password)
	defer fake.Close()

	session := protocol.NewSession(testConfig(fake))
	defer session.Close()
	require.NoError(t, session.WaitConnected(waitCtx(t)))

	const senders = 50
	var g errgroup.Group
	for i := range senders {
		g.Go(func() error {
			return session.Send(t.Context(), protocol.NewSeek("1", int64(i)))
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[int64]bool, senders)
	for range senders {
		data := receive(t, fake.Received())
		require.True(t, gjson.ValidBytes(data), "interleaved frame: %s", data)
		assert.Equal(t, "seek", gjson.GetBytes(data, "op").String())
		seen[gjson.GetBytes(data, "position").Int()] = true
	}
	assert.Len(t, seen, senders)
}

func TestSendAfterDrop(t *testing.T) {
	t.Parallel()

	fake := fakenode.Start(password)
	defer fake.Close()

	session := protocol.NewSession(testConfig(fake))
	defer session.Close()
	require.NoError(t, session.WaitConnected(waitCtx(t)))
	<-fake.Accepted()

	fake.DropConnections()

	require.Eventually(t, func() bool {
		return session.State() == protocol.StateDisconnected
	}, 5*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, session.Send(t.Context(), protocol.NewStop("1")), protocol.ErrNotConnected)

	select {
	case data := <-fake.Received():
		t.Fatalf("unexpected frame written: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSendVerbatimPayload(t *testing.T) {
	t.Parallel()

	fake := fakenode.Start(password)
	defer fake.Close()

	session := protocol.NewSession(testConfig(fake))
	defer session.Close()
	require.NoError(t, session.WaitConnected(waitCtx(t)))

	payload := map[string]any{"op": "custom", "value": []int{1, 2, 3}}
	require.NoError(t, session.Send(t.Context(), payload))

	data := receive(t, fake.Received())
	assert.JSONEq(t, `{"op":"custom","value":[1,2,3]}`, string(data))
}

func TestConnectFailureIsObservable(t *testing.T) {
	t.Parallel()

	fake := fakenode.Start(password)
	defer fake.Close()

	config := testConfig(fake)
	config.Password = "wrong"
	session := protocol.NewSession(config)
	defer session.Close()

	err := session.WaitConnected(waitCtx(t))
	require.Error(t, err)

	var te *protocol.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "connect", te.Op)
	assert.Equal(t, http.StatusUnauthorized, te.StatusCode)
	assert.Equal(t, protocol.StateDisconnected, session.State())
	assert.Equal(t, err, session.Err())

	require.ErrorIs(t, session.Send(t.Context(), protocol.NewStop("1")), protocol.ErrNotConnected)
}

func TestSessionReconnects(t *testing.T) {
	t.Parallel()

	fake := fakenode.Start(password)
	defer fake.Close()

	config := testConfig(fake)
	config.Reconnect = true
	session := protocol.NewSession(config)
	defer session.Close()

	require.NoError(t, session.WaitConnected(waitCtx(t)))
	<-fake.Accepted()

	fake.DropConnections()

	select {
	case <-fake.Accepted():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not reconnect")
	}
	require.Eventually(t, session.IsConnected, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, session.Send(t.Context(), protocol.NewStop("1")))
	assert.Equal(t, "stop", gjson.GetBytes(receive(t, fake.Received()), "op").String())
}

func TestSessionRoutesInbound(t *testing.T) {
	t.Parallel()

	fake := fakenode.Start(password)
	defer fake.Close()

	session := protocol.NewSession(testConfig(fake))
	defer session.Close()
	require.NoError(t, session.WaitConnected(waitCtx(t)))
	<-fake.Accepted()

	require.NoError(t, fake.PushRaw([]byte(`{"op":"stats","players":3}`)))
	require.NoError(t, fake.PushRaw([]byte(`{"op":"playerUpdate","guildId":"7","state":{"time":1500,"position":4200}}`)))
	require.NoError(t, fake.PushRaw([]byte(`{"op":"event","type":"TrackEndEvent","guildId":"7","track":"QAA","reason":"FINISHED"}`)))

	assert.Equal(t, int64(3), gjson.GetBytes(receive(t, session.Stats), "players").Int())

	select {
	case update := <-session.PlayerUpdates:
		assert.Equal(t, "7", update.GuildID)
		assert.Equal(t, int64(4200), update.State.Position)
		assert.Equal(t, int64(1500), update.State.Time)
	case <-time.After(5 * time.Second):
		t.Fatal("no player update")
	}

	select {
	case event := <-session.Events:
		assert.Equal(t, protocol.TrackEndEvent, event.Type)
		assert.Equal(t, "QAA", event.Track)
		assert.True(t, event.MayStartNext())
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
	}
}

func TestGetIsIndependentOfSocket(t *testing.T) {
	t.Parallel()

	fake := fakenode.Start(password)
	defer fake.Close()
	fake.Hold()

	session := protocol.NewSession(testConfig(fake))
	defer session.Close()

	header := http.Header{}
	header.Set("Authorization", password)
	resp, err := session.Get(t.Context(), session.RESTURL()+"/loadtracks?identifier=nothing", header)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, fakenode.NoMatches, string(body))
}

func TestGetTransportFailure(t *testing.T) {
	t.Parallel()

	session := protocol.NewSession(protocol.Config{Host: "127.0.0.1", Port: 1})
	defer session.Close()

	_, err := session.Get(t.Context(), "http://127.0.0.1:1/loadtracks", nil)
	require.Error(t, err)
	assert.True(t, protocol.IsTransportError(err))
}

func TestSessionClose(t *testing.T) {
	t.Parallel()

	fake := fakenode.Start(password)
	defer fake.Close()

	session := protocol.NewSession(testConfig(fake))
	require.NoError(t, session.WaitConnected(waitCtx(t)))
	require.NoError(t, session.Close())

	assert.Equal(t, protocol.StateDisconnected, session.State())
	require.ErrorIs(t, session.Send(t.Context(), protocol.NewStop("1")), protocol.ErrSessionClosed)
	require.ErrorIs(t, session.WaitConnected(t.Context()), protocol.ErrSessionClosed)
	require.NoError(t, session.Close())
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "disconnected", protocol.StateDisconnected.String())
	assert.Equal(t, "connecting", protocol.StateConnecting.String())
	assert.Equal(t, "connected", protocol.StateConnected.String())
	assert.Equal(t, "unknown", protocol.State(42).String())
}
