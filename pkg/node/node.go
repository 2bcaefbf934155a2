// ABOUTME: A single Lavalink node: session, REST lookups and event routing
// ABOUTME: Implements track.Loader and dispatches inbound frames to guild listeners
package node

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lavago/lavago/pkg/protocol"
	"github.com/lavago/lavago/pkg/track"
)

const (
	DefaultCacheSize      = 500
	DefaultCacheTTL       = 10 * time.Minute
	DefaultRequestTimeout = 10 * time.Second

	eventBuffer = 256
)

// Config holds node configuration
type Config struct {
	Identifier string
	Host       string
	Port       int
	Password   string
	UserID     string
	ClientName string
	Secure     bool

	Heartbeat time.Duration
	Reconnect bool
	Backoff   func() backoff.BackOff

	// RequestsPerSecond limits REST lookups; zero means unlimited.
	RequestsPerSecond float64
	// CacheSize and CacheTTL configure the lookup cache; a negative value
	// for either disables it.
	CacheSize      int64
	CacheTTL       time.Duration
	RequestTimeout time.Duration

	OnStats func(*Stats)
	OnEvent func(Event)

	HTTPClient *http.Client
	Logger     zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.CacheSize == 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// Listener receives the frames addressed to one guild.
type Listener interface {
	HandlePlayerUpdate(protocol.PlayerUpdate)
	HandleEvent(Event)
}

// Event is a player event with its track resolved when possible.
type Event struct {
	protocol.Event
	Node  *Node
	Track *track.Track // nil when the event carries no track or it could not be decoded
}

// StatusError is returned when a REST lookup answers with a non-200 status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("node: %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Node is one audio node. It owns a protocol.Session.
type Node struct {
	config  Config
	logger  zerolog.Logger
	session *protocol.Session
	limiter *rate.Limiter

	loads   *lookupCache[track.Result]
	decoded *lookupCache[*track.Track]

	mu        sync.RWMutex
	stats     *Stats
	listeners map[string]Listener

	events chan protocol.Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a node and starts connecting to it in the background.
func New(config Config) *Node {
	config = config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	logger := config.Logger.With().Str("node_id", config.Identifier).Logger()

	limit := rate.Inf
	burst := 0
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
		burst = max(1, int(config.RequestsPerSecond))
	}

	n := &Node{
		config: config,
		logger: logger,
		session: protocol.NewSession(protocol.Config{
			Host:       config.Host,
			Port:       config.Port,
			Password:   config.Password,
			UserID:     config.UserID,
			ClientName: config.ClientName,
			Secure:     config.Secure,
			Heartbeat:  config.Heartbeat,
			Reconnect:  config.Reconnect,
			Backoff:    config.Backoff,
			HTTPClient: config.HTTPClient,
			Logger:     logger,
		}),
		limiter:   rate.NewLimiter(limit, burst),
		loads:     newLookupCache[track.Result](config.CacheSize, config.CacheTTL),
		decoded:   newLookupCache[*track.Track](config.CacheSize, config.CacheTTL),
		listeners: make(map[string]Listener),
		events:    make(chan protocol.Event, eventBuffer),
		ctx:       ctx,
		cancel:    cancel,
	}

	n.wg.Add(2)
	go n.dispatch()
	go n.deliverEvents()

	return n
}

// Identifier returns the node's name within a pool.
func (n *Node) Identifier() string {
	return n.config.Identifier
}

// Address returns host:port of the node.
func (n *Node) Address() string {
	return net.JoinHostPort(n.config.Host, strconv.Itoa(n.config.Port))
}

// State returns the session's connection state.
func (n *Node) State() protocol.State {
	return n.session.State()
}

// IsConnected returns connection status
func (n *Node) IsConnected() bool {
	return n.session.IsConnected()
}

// WaitConnected blocks until the node's session is connected.
func (n *Node) WaitConnected(ctx context.Context) error {
	return n.session.WaitConnected(ctx)
}

// Send writes a payload to the node.
func (n *Node) Send(ctx context.Context, payload any) error {
	return n.session.Send(ctx, payload)
}

// Stats returns the latest snapshot, or nil before the first report.
func (n *Node) Stats() *Stats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats
}

// PlayerCount returns how many players are attached to this node.
func (n *Node) PlayerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// Attach routes frames for guildID to l, replacing any previous listener.
func (n *Node) Attach(guildID string, l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners[guildID] = l
}

// Detach stops routing frames for guildID.
func (n *Node) Detach(guildID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.listeners, guildID)
}

func (n *Node) listener(guildID string) Listener {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.listeners[guildID]
}

// LoadTracks looks up query on the node. The query is sent as given.
func (n *Node) LoadTracks(ctx context.Context, kind track.Kind, query string) (track.Result, error) {
	return n.loads.Fetch(ctx, string(kind)+"\x00"+query, func(ctx context.Context) (track.Result, error) {
		body, err := n.get(ctx, "/loadtracks", url.Values{"identifier": {query}})
		if err != nil {
			return track.Result{}, err
		}
		return track.DecodeLoadResult(kind, body)
	})
}

// DecodeTrack rebuilds a track from its encoded id.
func (n *Node) DecodeTrack(ctx context.Context, encoded string) (*track.Track, error) {
	return n.decoded.Fetch(ctx, encoded, func(ctx context.Context) (*track.Track, error) {
		body, err := n.get(ctx, "/decodetrack", url.Values{"track": {encoded}})
		if err != nil {
			return nil, err
		}
		source, err := sourceOf(body)
		if err != nil {
			return nil, err
		}
		return track.Decode(track.KindFromSource(source), encoded, body)
	})
}

func sourceOf(info []byte) (string, error) {
	f, err := protocol.ParseFields(info)
	if err != nil {
		return "", err
	}
	source := f.String("sourceName")
	return source, f.Err()
}

// get bounds the whole request, limiter wait included, by RequestTimeout.
func (n *Node) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, n.config.RequestTimeout)
	defer cancel()

	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", n.config.Password)

	destination := n.session.RESTURL() + endpoint + "?" + query.Encode()
	resp, err := n.session.Get(ctx, destination, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &protocol.TransportError{Op: "get", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// dispatch consumes the session's inbound frames until the node is closed.
func (n *Node) dispatch() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			return

		case data := <-n.session.Stats:
			stats, err := DecodeStats(n, data)
			if err != nil {
				n.logger.Warn().Err(err).Msg("Dropping malformed stats")
				continue
			}
			n.mu.Lock()
			n.stats = stats
			n.mu.Unlock()
			if n.config.OnStats != nil {
				n.config.OnStats(stats)
			}

		case update := <-n.session.PlayerUpdates:
			if l := n.listener(update.GuildID); l != nil {
				l.HandlePlayerUpdate(update)
			}

		case e := <-n.session.Events:
			// track decoding is slow, so events queue up apart from stats and updates
			select {
			case n.events <- e:
			case <-n.ctx.Done():
				return
			}
		}
	}
}

// deliverEvents resolves event tracks and hands events out in arrival order.
func (n *Node) deliverEvents() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			return
		case e := <-n.events:
			n.deliverEvent(e)
		}
	}
}

func (n *Node) deliverEvent(e protocol.Event) {
	event := Event{Event: e, Node: n}
	if e.Track != "" {
		t, err := n.DecodeTrack(n.ctx, e.Track)
		if err != nil {
			n.logger.Debug().Err(err).Str("event", string(e.Type)).Msg("Could not decode event track")
		}
		event.Track = t
	}
	n.logger.Debug().Str("event", string(e.Type)).Str("guild_id", e.GuildID).Msg("Event")
	if l := n.listener(e.GuildID); l != nil {
		l.HandleEvent(event)
	}
	if n.config.OnEvent != nil {
		n.config.OnEvent(event)
	}
}

// Close closes the session and stops event dispatch.
func (n *Node) Close() error {
	n.cancel()
	err := n.session.Close()
	n.wg.Wait()
	n.loads.Stop()
	n.decoded.Stop()
	return err
}

func (n *Node) String() string {
	return fmt.Sprintf("%s (%s, %s)", n.config.Identifier, n.Address(), n.State())
}
