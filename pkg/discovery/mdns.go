// ABOUTME: mDNS discovery of audio nodes on the local network
// ABOUTME: Browses for advertised nodes and advertises local ones
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	// ServiceType is the mDNS service nodes are advertised under.
	ServiceType = "_lavalink._tcp"

	DefaultQueryTimeout = 3 * time.Second
)

// Config holds discovery configuration
type Config struct {
	ServiceName  string // instance name when advertising
	Port         int    // port when advertising
	QueryTimeout time.Duration
	Logger       zerolog.Logger
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	nodes  chan *NodeInfo
}

// NodeInfo describes a discovered node
type NodeInfo struct {
	Name string
	Host string
	Port int
}

// Address returns host:port.
func (n *NodeInfo) Address() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = DefaultQueryTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config: config,
		logger: config.Logger,
		ctx:    ctx,
		cancel: cancel,
		nodes:  make(chan *NodeInfo, 10),
	}
}

// Advertise announces a node on this host until Stop is called.
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"version=3"},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.logger.Info().Str("name", m.config.ServiceName).Int("port", m.config.Port).Msg("Advertising node")

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for nodes until Stop is called. Results arrive on Nodes.
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		for _, node := range m.query() {
			m.logger.Debug().Str("name", node.Name).Str("address", node.Address()).Msg("Discovered node")
			select {
			case m.nodes <- node:
			case <-m.ctx.Done():
				return
			}
		}
	}
}

// query runs one mDNS query round.
func (m *Manager) query() []*NodeInfo {
	entries := make(chan *mdns.ServiceEntry, 10)
	var found []*NodeInfo
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			if node := nodeFromEntry(entry); node != nil {
				found = append(found, node)
			}
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Timeout = m.config.QueryTimeout
	params.Entries = entries
	params.DisableIPv6 = true
	if err := mdns.Query(params); err != nil {
		m.logger.Warn().Err(err).Msg("mDNS query failed")
	}
	close(entries)
	<-done

	return found
}

// Discover runs a single query round and returns each node once.
func (m *Manager) Discover() []*NodeInfo {
	return lo.UniqBy(m.query(), func(n *NodeInfo) string { return n.Address() })
}

// Nodes returns the channel of discovered nodes
func (m *Manager) Nodes() <-chan *NodeInfo {
	return m.nodes
}

// Stop stops browsing and advertising
func (m *Manager) Stop() {
	m.cancel()
}

func nodeFromEntry(entry *mdns.ServiceEntry) *NodeInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}
	return &NodeInfo{
		Name: entry.Name,
		Host: entry.AddrV4.String(),
		Port: entry.Port,
	}
}

// getLocalIPs returns the host's non-loopback IPv4 addresses
func getLocalIPs() ([]net.IP, error) {
	ips := []net.IP{}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	return ips, nil
}
