// ABOUTME: In-process fake Lavalink node for tests and local development
// ABOUTME: Accepts WebSocket sessions, records frames and serves canned REST lookups
package fakenode

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// NoMatches is the body served for unknown identifiers.
const NoMatches = `{"loadType":"NO_MATCHES","playlistInfo":{},"tracks":[]}`

// Server is a fake node. The zero value is not usable; call New.
type Server struct {
	ID       string
	password string
	logger   zerolog.Logger

	upgrader websocket.Upgrader
	mux      *http.ServeMux
	ts       *httptest.Server

	mu        sync.Mutex
	conns     map[*websocket.Conn]struct{}
	loads     map[string]string
	decodes   map[string]string
	loadCount int
	gate      chan struct{}
	delay     time.Duration

	writeMu  sync.Mutex
	received chan []byte
	accepted chan http.Header
}

// New creates a fake node that requires password in the Authorization header.
func New(password string, logger zerolog.Logger) *Server {
	s := &Server{
		ID:       uuid.New().String(),
		password: password,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux:      http.NewServeMux(),
		conns:    make(map[*websocket.Conn]struct{}),
		loads:    make(map[string]string),
		decodes:  make(map[string]string),
		received: make(chan []byte, 64),
		accepted: make(chan http.Header, 16),
	}
	s.mux.HandleFunc("/", s.handleWebSocket)
	s.mux.HandleFunc("/loadtracks", s.handleLoadTracks)
	s.mux.HandleFunc("/decodetrack", s.handleDecodeTrack)
	return s
}

// Start creates a fake node listening on a random loopback port.
func Start(password string) *Server {
	s := New(password, zerolog.Nop())
	s.ts = httptest.NewServer(s.mux)
	return s
}

// Handler returns the HTTP handler serving both the socket and REST routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Host returns the listening host of a started server.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.ts.Listener.Addr().String())
	return host
}

// Port returns the listening port of a started server.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.ts.Listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return p
}

// Close drops every connection and stops a started server.
func (s *Server) Close() {
	s.Release()
	s.DropConnections()
	if s.ts != nil {
		s.ts.Close()
	}
}

// SetLoadResult registers the /loadtracks body served for identifier.
func (s *Server) SetLoadResult(identifier, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads[identifier] = body
}

// SetDecodeResult registers the /decodetrack body served for an encoded track.
func (s *Server) SetDecodeResult(encoded, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decodes[encoded] = body
}

// LoadCount returns how many /loadtracks requests were served.
func (s *Server) LoadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadCount
}

// Hold makes new WebSocket handshakes wait until Release.
func (s *Server) Hold() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate == nil {
		s.gate = make(chan struct{})
	}
}

// Release lets held handshakes complete.
func (s *Server) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
}

// SetDelay makes every REST lookup wait d before answering.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// stall applies the configured delay; it reports false when the client gave up.
func (s *Server) stall(r *http.Request) bool {
	s.mu.Lock()
	d := s.delay
	s.mu.Unlock()
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-r.Context().Done():
		return false
	}
}

// Received delivers every text frame read from clients, in order.
func (s *Server) Received() <-chan []byte {
	return s.received
}

// Accepted delivers the request headers of each completed handshake.
func (s *Server) Accepted() <-chan http.Header {
	return s.accepted
}

// Connections returns the number of open client connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Push writes a JSON value to every connected client.
func (s *Server) Push(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.PushRaw(data)
}

// PushRaw writes raw bytes as a text frame to every connected client.
func (s *Server) PushRaw(data []byte) error {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}

// DropConnections closes every client connection without a close frame.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
		delete(s.conns, c)
	}
}

// RunStats pushes a synthetic stats frame every interval until ctx ends.
func (s *Server) RunStats(ctx context.Context, interval time.Duration) {
	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			players := s.Connections()
			stats := map[string]any{
				"op":             "stats",
				"uptime":         time.Since(start).Milliseconds(),
				"players":        players,
				"playingPlayers": 0,
				"memory": map[string]int64{
					"reservable": 1 << 30,
					"used":       64 << 20,
					"free":       32 << 20,
					"allocated":  96 << 20,
				},
				"cpu": map[string]any{
					"cores":        4,
					"systemLoad":   0.1,
					"lavalinkLoad": 0.01,
				},
			}
			if err := s.Push(stats); err != nil {
				s.logger.Debug().Err(err).Msg("Failed to push stats")
			}
		}
	}
}

func (s *Server) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == s.password
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.NotFound(w, r)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	select {
	case s.accepted <- r.Header.Clone():
	default:
	}
	s.logger.Info().Str("user_id", r.Header.Get("User-Id")).Str("client", r.Header.Get("Client-Name")).Msg("Client connected")

	s.readLoop(conn)
}

func (s *Server) readLoop(conn *websocket.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.logger.Debug().RawJSON("frame", data).Msg("Received")
		select {
		case s.received <- data:
		default:
			s.logger.Warn().Msg("Received buffer full, dropping frame")
		}
	}
}

func (s *Server) handleLoadTracks(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	identifier := r.URL.Query().Get("identifier")
	s.mu.Lock()
	s.loadCount++
	body, ok := s.loads[identifier]
	s.mu.Unlock()
	if !s.stall(r) {
		return
	}
	if !ok {
		body = NoMatches
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleDecodeTrack(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	body, ok := s.decodes[r.URL.Query().Get("track")]
	s.mu.Unlock()
	if !s.stall(r) {
		return
	}
	if !ok {
		http.Error(w, `{"message":"unknown track"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}
