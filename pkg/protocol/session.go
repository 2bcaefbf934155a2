// ABOUTME: WebSocket session with a Lavalink node
// ABOUTME: Background connect, keepalive, serialized sends, REST gets and frame routing
package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// DefaultHeartbeat is the keepalive interval used when Config.Heartbeat is zero.
	DefaultHeartbeat = 60 * time.Second

	// DefaultHandshakeTimeout bounds a single connect attempt.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultClientName is sent in the Client-Name header when none is configured.
	DefaultClientName = "lavago"

	controlWriteWait = 5 * time.Second
	deliverTimeout   = 100 * time.Millisecond
)

// State is the connection state of a Session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Config holds session configuration
type Config struct {
	Host       string
	Port       int
	Password   string
	UserID     string
	ClientName string
	Secure     bool // use wss:// and https://

	Heartbeat        time.Duration
	HandshakeTimeout time.Duration

	// Reconnect re-dials after a failed attempt or a dropped connection.
	Reconnect bool
	// Backoff supplies reconnect delays. Defaults to exponential backoff
	// capped at one minute.
	Backoff func() backoff.BackOff

	HTTPClient *http.Client
	Logger     zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.ClientName == "" {
		c.ClientName = DefaultClientName
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = DefaultHeartbeat
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Backoff == nil {
		c.Backoff = defaultBackoff
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	return b
}

// Session is a connection to one node. It owns the WebSocket exclusively;
// all writes go through Send.
type Session struct {
	config Config
	logger zerolog.Logger
	dialer *websocket.Dialer

	mu       sync.RWMutex
	conn     *websocket.Conn
	state    State
	lastErr  error
	finished bool
	changed  chan struct{}

	writeMu sync.Mutex

	// Inbound frames, routed by op
	Stats         chan []byte
	PlayerUpdates chan PlayerUpdate
	Events        chan Event

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession creates a session and starts connecting in the background.
// It returns before the connection exists.
func NewSession(config Config) *Session {
	config = config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		config: config,
		logger: config.Logger.With().Str("node", net.JoinHostPort(config.Host, strconv.Itoa(config.Port))).Logger(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
		changed:       make(chan struct{}),
		Stats:         make(chan []byte, 4),
		PlayerUpdates: make(chan PlayerUpdate, 32),
		Events:        make(chan Event, 32),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}

	go s.run()

	return s
}

// WebSocketURL returns the address the session dials.
func (s *Session) WebSocketURL() string {
	scheme := "ws"
	if s.config.Secure {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))}
	return u.String()
}

// RESTURL returns the base address for HTTP lookups on the same node.
func (s *Session) RESTURL() string {
	scheme := "http"
	if s.config.Secure {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))}
	return u.String()
}

// Headers returns the headers presented when opening the connection.
func (s *Session) Headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", s.config.Password)
	h.Set("User-Id", s.config.UserID)
	h.Set("Client-Name", s.config.ClientName)
	return h
}

// Password returns the node password, used for REST authorization.
func (s *Session) Password() string {
	return s.config.Password
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsConnected returns connection status
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// Err returns the most recent connection failure, or nil.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// WaitConnected blocks until the session is connected. It returns the last
// connection error once the session stops trying, or ctx's error.
func (s *Session) WaitConnected(ctx context.Context) error {
	for {
		s.mu.RLock()
		state, changed, finished, lastErr := s.state, s.changed, s.finished, s.lastErr
		s.mu.RUnlock()

		if state == StateConnected {
			return nil
		}
		if finished {
			if lastErr != nil {
				return lastErr
			}
			return ErrSessionClosed
		}

		select {
		case <-changed:
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			}
			return ctx.Err()
		}
	}
}

// setState must be called without s.mu held.
func (s *Session) setState(state State, conn *websocket.Conn, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.conn = conn
	if err != nil {
		s.lastErr = err
	}
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateDisconnected
	s.conn = nil
	s.finished = true
	close(s.changed)
	s.changed = make(chan struct{})
}

// run dials, serves the connection until it drops, and re-dials when
// reconnection is enabled.
func (s *Session) run() {
	defer close(s.done)
	defer s.finish()

	b := s.config.Backoff()
	for {
		conn, err := s.connect()
		if err == nil {
			b.Reset()
			s.setState(StateConnected, conn, nil)
			s.logger.Info().Msg("Connected to node")
			err = s.serve(conn)
		}

		if s.ctx.Err() != nil {
			return
		}

		s.setState(StateDisconnected, nil, err)
		s.logger.Warn().Err(err).Msg("Node connection lost")

		if !s.config.Reconnect {
			return
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return
		}
		s.logger.Debug().Dur("wait", wait).Msg("Reconnecting")
		select {
		case <-time.After(wait):
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) connect() (*websocket.Conn, error) {
	s.setState(StateConnecting, nil, nil)
	s.logger.Debug().Str("url", s.WebSocketURL()).Msg("Connecting")

	ctx, cancel := context.WithTimeout(s.ctx, s.config.HandshakeTimeout)
	defer cancel()

	conn, resp, err := s.dialer.DialContext(ctx, s.WebSocketURL(), s.Headers())
	if err != nil {
		te := &TransportError{Op: "connect", Err: err}
		if resp != nil {
			te.StatusCode = resp.StatusCode
		}
		return nil, te
	}
	return conn, nil
}

// serve runs the keepalive and read loops for one connection and returns
// when the connection fails or the session is closed.
func (s *Session) serve(conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)

	readWait := 2 * s.config.Heartbeat
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	go func() {
		ticker := time.NewTicker(s.config.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait)); err != nil {
					conn.Close()
					return
				}
			case <-s.ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(controlWriteWait))
				conn.Close()
				return
			case <-stop:
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			if s.ctx.Err() != nil {
				return ErrSessionClosed
			}
			return &TransportError{Op: "read", Err: err}
		}
		if messageType != websocket.TextMessage {
			s.logger.Debug().Int("type", messageType).Msg("Ignoring non-text frame")
			continue
		}
		s.route(data)
	}
}

// route dispatches an inbound frame by its op.
func (s *Session) route(data []byte) {
	if !gjson.ValidBytes(data) {
		s.logger.Warn().Msg("Dropping invalid JSON frame")
		return
	}

	switch op := Op(gjson.GetBytes(data, "op").String()); op {
	case OpStats:
		// a newer snapshot supersedes this one, so drop when the consumer lags
		select {
		case s.Stats <- data:
		case <-time.After(deliverTimeout):
			s.logger.Debug().Msg("Stats channel full, dropping snapshot")
		}

	case OpPlayerUpdate:
		var update PlayerUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to parse playerUpdate")
			return
		}
		select {
		case s.PlayerUpdates <- update:
		case <-s.ctx.Done():
		}

	case OpEvent:
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to parse event")
			return
		}
		select {
		case s.Events <- event:
		case <-s.ctx.Done():
		}

	default:
		s.logger.Debug().Str("op", string(op)).Msg("Unknown op")
	}
}

// Send encodes payload as JSON and writes it as one text frame.
// It fails with ErrNotConnected, without writing, unless the session is connected.
func (s *Session) Send(ctx context.Context, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	conn, state := s.conn, s.state
	s.mu.RUnlock()

	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("protocol: failed to encode payload: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// the read loop notices the closed socket and moves to disconnected
		conn.Close()
		return &TransportError{Op: "send", Err: err}
	}

	s.logger.Trace().RawJSON("payload", data).Msg("Sent")
	return nil
}

// Get performs an HTTP GET against destination with the given headers using
// the session's shared HTTP client. It does not depend on the socket state.
// The caller must close the response body.
func (s *Session) Get(ctx context.Context, destination string, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("protocol: invalid request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.config.HTTPClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "get", Err: err}
	}
	return resp, nil
}

// Close tears down the connection and stops reconnecting. It blocks until
// the background goroutines have exited.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
	})
	<-s.done
	return nil
}

// Done is closed once the session has stopped for good.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// IsTransportError reports whether err came from the connection or an HTTP request.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
