// Package discovery listens for field host beacons on every viable interface
// and publishes the deduplicated host list once per collection window.
package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"fieldsync/internal/beacon"
	"fieldsync/internal/mcast"
	"fieldsync/internal/netif"
	"fieldsync/internal/task"
)

const (
	DefaultPort    = 11000
	DefaultWindow  = 3 * time.Second
	DefaultRefresh = 3 * time.Second

	readBufferSize     = 64 * 1024
	malformedWarnEvery = time.Minute
	packetQueue        = 64
)

var (
	DefaultGroupV4 = netip.MustParseAddr("239.1.1.1")
	// "ERForce" in hex
	DefaultGroupV6 = netip.MustParseAddr("ff15::45:5246:6f72:6365:1")
)

// Config holds discovery settings.
type Config struct {
	Port      int
	GroupV4   netip.Addr
	GroupV6   netip.Addr
	Window    time.Duration
	Refresh   time.Duration
	EmitOnNew bool
}

// DefaultConfig returns the default discovery settings.
func DefaultConfig() Config {
	return Config{
		Port:    DefaultPort,
		GroupV4: DefaultGroupV4,
		GroupV6: DefaultGroupV6,
		Window:  DefaultWindow,
		Refresh: DefaultRefresh,
	}
}

// Handle is the owner side of a running discovery task.
type Handle = task.Handle[[]Host, struct{}]

type sockKey struct {
	index int
	v6    bool
}

type ifaceSocket struct {
	iface netif.Interface
	sock  *mcast.Socket
}

type datagram struct {
	data    []byte
	src     netip.AddrPort
	ifIndex int
}

// Discoverer owns the discovery sockets. It is used by a single task.
type Discoverer struct {
	cfg     Config
	log     zerolog.Logger
	list    func() ([]netif.Interface, error)
	sockets map[sockKey]*ifaceSocket
	packets chan datagram
	warned  *task.WarnLimiter

	lastRefresh time.Time
}

// New creates a discoverer.
func New(cfg Config, log zerolog.Logger) *Discoverer {
	return &Discoverer{
		cfg:     cfg,
		log:     log.With().Str("component", "discovery").Logger(),
		list:    netif.List,
		sockets: make(map[sockKey]*ifaceSocket),
		packets: make(chan datagram, packetQueue),
		warned:  task.NewWarnLimiter(256, malformedWarnEvery),
	}
}

// Spawn runs the discoverer as a task.
func Spawn(ctx context.Context, cfg Config, log zerolog.Logger) *Handle {
	d := New(cfg, log)
	return task.Spawn(ctx, task.Options{Name: "discovery", OutBuffer: 4, Log: log}, d.Run)
}

// Run refreshes interfaces and collects beacons until ctx is cancelled or the
// owner stops listening. A bind failure on the first refresh is fatal.
func (d *Discoverer) Run(ctx context.Context, out *task.Sender[[]Host], _ <-chan struct{}) error {
	defer d.closeAll()

	if err := d.refresh(ctx, true); err != nil {
		return err
	}

	d.log.Info().
		Int("port", d.cfg.Port).
		Str("group_v4", d.cfg.GroupV4.String()).
		Str("group_v6", d.cfg.GroupV6.String()).
		Dur("window", d.cfg.Window).
		Msg("Host discovery started")

	var col collector
	for {
		if err := d.collect(ctx, out, &col); err != nil {
			return err
		}

		hosts := col.snapshot()
		col.reset()
		d.log.Debug().Int("hosts", len(hosts)).Msg("Collection window closed")
		if !out.TrySend(hosts) {
			d.log.Info().Msg("Host list consumer gone, stopping discovery")
			return nil
		}

		if time.Since(d.lastRefresh) >= d.cfg.Refresh {
			if err := d.refresh(ctx, false); err != nil {
				return err
			}
		}
	}
}

// collect merges beacons into col until the window timer fires. The timer is
// always checked before packets so a busy network cannot starve it.
func (d *Discoverer) collect(ctx context.Context, out *task.Sender[[]Host], col *collector) error {
	window := time.NewTimer(d.cfg.Window)
	defer window.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-window.C:
			return nil
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-window.C:
			return nil
		case dg := <-d.packets:
			if d.handle(dg, col) && d.cfg.EmitOnNew {
				if !out.TrySend(col.snapshot()) {
					return ctx.Err()
				}
			}
		}
	}
}

// handle decodes one beacon and reports whether it introduced a new host.
func (d *Discoverer) handle(dg datagram, col *collector) bool {
	adv, err := beacon.Decode(dg.data)
	if err != nil {
		ev := d.log.Debug()
		if d.warned.Allow(dg.src.Addr().String()) {
			ev = d.log.Warn()
		}
		ev.Err(err).
			Str("src", dg.src.String()).
			Int("if_index", dg.ifIndex).
			Msg("Invalid host advertisement")
		return false
	}

	isNew := col.add(dg.src, dg.ifIndex, adv)
	if isNew {
		d.log.Debug().
			Str("src", dg.src.String()).
			Str("hostname", adv.Name()).
			Int("if_index", dg.ifIndex).
			Msg("Host advertisement received")
	}
	return isNew
}

// refresh closes sockets of vanished interfaces and binds sockets on new
// viable ones.
func (d *Discoverer) refresh(ctx context.Context, first bool) error {
	d.lastRefresh = time.Now()

	ifaces, err := d.list()
	if err != nil {
		if first {
			return fmt.Errorf("listing interfaces: %w", err)
		}
		d.log.Error().Err(err).Msg("Failed to list interfaces, skipping refresh")
		return nil
	}

	want := make(map[sockKey]netif.Interface)
	for _, iface := range ifaces {
		if !iface.Viable() {
			continue
		}
		if iface.HasIPv4() {
			want[sockKey{index: iface.Index}] = iface
		}
		if iface.HasIPv6() {
			want[sockKey{index: iface.Index, v6: true}] = iface
		}
	}

	for key, s := range d.sockets {
		if iface, ok := want[key]; ok && iface.Same(s.iface) {
			continue
		}
		d.log.Info().Str("interface", s.iface.Name).Bool("ipv6", key.v6).Msg("Interface gone, closing discovery socket")
		s.sock.Close()
		delete(d.sockets, key)
	}

	for key, iface := range want {
		if _, ok := d.sockets[key]; ok {
			continue
		}
		s, err := d.bind(ctx, key, iface)
		if err != nil {
			if first && errors.Is(err, mcast.ErrNoViableAddress) {
				return err
			}
			d.log.Warn().Err(err).Str("interface", iface.Name).Msg("Failed to open discovery socket, retrying on next refresh")
			continue
		}
		d.sockets[key] = s
		go d.receive(ctx, s)
	}
	return nil
}

func (d *Discoverer) bind(ctx context.Context, key sockKey, iface netif.Interface) (*ifaceSocket, error) {
	network, group := "udp4", d.cfg.GroupV4
	if key.v6 {
		network, group = "udp6", d.cfg.GroupV6
	}

	sock, err := mcast.Bind(ctx, network, net.JoinHostPort("", strconv.Itoa(d.cfg.Port)))
	if err != nil {
		return nil, err
	}
	if err := sock.SetReadBuffer(readBufferSize); err != nil {
		d.log.Warn().Err(err).Msg("Failed to set read buffer")
	}

	ifi, err := net.InterfaceByIndex(iface.Index)
	if err != nil {
		sock.Close()
		return nil, fmt.Errorf("looking up interface %s: %w", iface.Name, err)
	}
	if err := sock.JoinGroup(group, ifi); err != nil {
		sock.Close()
		return nil, err
	}

	d.log.Info().
		Str("interface", iface.Name).
		Int("if_index", iface.Index).
		Str("group", group.String()).
		Msg("Listening for host advertisements")
	return &ifaceSocket{iface: iface, sock: sock}, nil
}

func (d *Discoverer) receive(ctx context.Context, s *ifaceSocket) {
	// One spare byte detects oversized beacons
	buf := make([]byte, beacon.MaxSize+1)
	for {
		n, ifIndex, src, err := s.sock.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			d.log.Debug().Err(err).Str("interface", s.iface.Name).Msg("Discovery receive failed")
			continue
		}
		if ifIndex == 0 {
			ifIndex = s.iface.Index
		}

		dg := datagram{data: bytes.Clone(buf[:n]), src: src, ifIndex: ifIndex}
		select {
		case d.packets <- dg:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Discoverer) closeAll() {
	for key, s := range d.sockets {
		s.sock.Close()
		delete(d.sockets, key)
	}
}
