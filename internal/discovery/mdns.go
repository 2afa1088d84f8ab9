// ABOUTME: mDNS advertisement and lookup for seqplay hosts
// ABOUTME: Hosts advertise _seqplay._tcp; producers browse for them
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/mdns"
)

const (
	// ServiceType is the DNS-SD service type hosts advertise
	ServiceType = "_seqplay._tcp"

	// DefaultBrowseTimeout bounds a single mDNS query
	DefaultBrowseTimeout = 3 * time.Second
)

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string
	Logger      *log.Logger
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	logger  *log.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *HostInfo
}

// HostInfo describes a discovered host
type HostInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// Addr returns host:port
func (h *HostInfo) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	logger := config.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("mdns")
	}
	if config.Path == "" {
		config.Path = "/seqplay"
	}

	return &Manager{
		config:  config,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *HostInfo, 10),
	}
}

// Advertise announces this host until Stop is called
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
		[]string{"path=" + m.config.Path},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.logger.Info("Advertising", "name", m.config.ServiceName, "port", m.config.Port, "type", ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for hosts in the background; results arrive on Servers
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

		m.query(DefaultBrowseTimeout, func(h *HostInfo) bool {
			select {
			case m.servers <- h:
				return true
			case <-m.ctx.Done():
				return false
			}
		})
	}
}

// query runs one mDNS lookup, handing each usable entry to found until it returns false
func (m *Manager) query(timeout time.Duration, found func(*HostInfo) bool) {
	entries := make(chan *mdns.ServiceEntry, 10)
	done := make(chan struct{})

	go func() {
		defer close(done)
		wanted := true
		for entry := range entries {
			if !wanted {
				continue
			}
			h := hostFromEntry(entry)
			if h == nil {
				continue
			}
			m.logger.Debug("Discovered host", "name", h.Name, "addr", h.Addr())
			wanted = found(h)
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	if err := mdns.Query(params); err != nil {
		m.logger.Debug("mDNS query failed", "err", err)
	}
	close(entries)
	<-done
}

// Lookup returns the first host answering within timeout
func (m *Manager) Lookup(timeout time.Duration) (*HostInfo, error) {
	var first *HostInfo
	m.query(timeout, func(h *HostInfo) bool {
		first = h
		return false
	})
	if first == nil {
		return nil, fmt.Errorf("no %s host found within %s", ServiceType, timeout)
	}
	return first, nil
}

// Servers returns the channel of discovered hosts
func (m *Manager) Servers() <-chan *HostInfo {
	return m.servers
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

func hostFromEntry(entry *mdns.ServiceEntry) *HostInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}
	h := &HostInfo{
		Name: entry.Name,
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Path: "/seqplay",
	}
	for _, field := range entry.InfoFields {
		if len(field) > len("path=") && field[:len("path=")] == "path=" {
			h.Path = field[len("path="):]
		}
	}
	return h
}

// getLocalIPs returns non-loopback IPv4 addresses of interfaces that are up
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

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
