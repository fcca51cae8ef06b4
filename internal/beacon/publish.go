package beacon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"fieldsync/internal/mcast"
	"fieldsync/internal/netif"
	"fieldsync/internal/wire"
)

// PublisherConfig configures the test publisher.
type PublisherConfig struct {
	DiscoveryPort int
	GroupV4       netip.Addr
	GroupV6       netip.Addr

	DataPort      int
	VisPort       int
	StreamGroupV4 netip.Addr
	StreamGroupV6 netip.Addr

	// Interval between beacons.
	Interval time.Duration
	// Rate of status packets per second.
	Rate int
}

const refreshEvery = 10

// sender sends to one multicast destination out of one interface.
type sender struct {
	sock  *mcast.Socket
	dst   netip.AddrPort
	iface string
}

type publisher struct {
	log     zerolog.Logger
	list    func() ([]netif.Interface, error)
	senders []sender
}

// open binds one sending socket per viable interface and family. Groups that
// are not valid are skipped.
func (p *publisher) open(ctx context.Context, groupV4, groupV6 netip.Addr, port int) error {
	p.close()

	ifaces, err := p.list()
	if err != nil {
		return fmt.Errorf("listing interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if !iface.Viable() {
			continue
		}
		if iface.HasIPv4() && groupV4.IsValid() {
			p.add(ctx, iface, "udp4", netip.AddrPortFrom(groupV4, uint16(port)))
		}
		if iface.HasIPv6() && groupV6.IsValid() {
			p.add(ctx, iface, "udp6", netip.AddrPortFrom(groupV6, uint16(port)))
		}
	}

	if len(p.senders) == 0 {
		return errors.New("no viable multicast interface")
	}
	return nil
}

func (p *publisher) add(ctx context.Context, iface netif.Interface, network string, dst netip.AddrPort) {
	sock, err := mcast.Bind(ctx, network, ":0")
	if err != nil {
		p.log.Warn().Err(err).Str("interface", iface.Name).Msg("Failed to bind sending socket")
		return
	}
	ifi, err := net.InterfaceByIndex(iface.Index)
	if err == nil {
		err = sock.SetMulticastInterface(ifi)
	}
	if err != nil {
		p.log.Warn().Err(err).Str("interface", iface.Name).Msg("Failed to set multicast interface")
		sock.Close()
		return
	}
	p.senders = append(p.senders, sender{sock: sock, dst: dst, iface: iface.Name})
}

func (p *publisher) send(data []byte) {
	for _, s := range p.senders {
		if _, err := s.sock.WriteTo(data, s.dst); err != nil {
			p.log.Debug().Err(err).Str("interface", s.iface).Str("target", s.dst.String()).Msg("Send failed")
		}
	}
}

func (p *publisher) close() {
	for _, s := range p.senders {
		s.sock.Close()
	}
	p.senders = nil
}

// Announce multicasts adv on every viable interface at cfg.Interval until ctx
// is cancelled.
func Announce(ctx context.Context, cfg PublisherConfig, adv HostAdvertisement, log zerolog.Logger) error {
	data, err := Encode(adv)
	if err != nil {
		return err
	}

	p := &publisher{log: log, list: netif.List}
	defer p.close()
	if err := p.open(ctx, cfg.GroupV4, cfg.GroupV6, cfg.DiscoveryPort); err != nil {
		return err
	}

	log.Info().
		Str("hostname", adv.Name()).
		Int("port", cfg.DiscoveryPort).
		Int("interfaces", len(p.senders)).
		Dur("interval", cfg.Interval).
		Msg("Beacon started")

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	p.send(data)
	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if tick%refreshEvery == 0 {
			if err := p.open(ctx, cfg.GroupV4, cfg.GroupV6, cfg.DiscoveryPort); err != nil {
				log.Warn().Err(err).Msg("Interface refresh failed")
				continue
			}
		}
		p.send(data)
		log.Debug().Int("bytes", len(data)).Msg("Beacon sent")
	}
}

// PublishStatus streams synthetic telemetry and overlays to the stream group
// and advertises the overlay names on the visualization port. Data requests
// sent back by clients select which overlays are generated.
func PublishStatus(ctx context.Context, cfg PublisherConfig, log zerolog.Logger) error {
	p := &publisher{log: log, list: netif.List}
	defer p.close()
	if err := p.open(ctx, cfg.StreamGroupV4, cfg.StreamGroupV6, cfg.DataPort); err != nil {
		return err
	}

	var selected atomic.Pointer[[]uint32]
	go receiveDataRequests(ctx, cfg.VisPort, &selected, log)

	mappings, err := wire.EncodePacket(synthMappings())
	if err != nil {
		return err
	}

	rate := cfg.Rate
	if rate <= 0 {
		rate = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	log.Info().
		Int("data_port", cfg.DataPort).
		Int("rate", rate).
		Int("interfaces", len(p.senders)).
		Msg("Publishing synthetic telemetry")

	start := time.Now()
	for frame := 0; ; frame++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		ts := time.Since(start).Microseconds()
		status := synthStatus(ts, frame%rate == 0)
		if data, err := wire.EncodePacket(&status); err == nil {
			p.send(data)
		} else {
			log.Error().Err(err).Msg("Encoding status failed")
		}

		var ids []uint32
		if sel := selected.Load(); sel != nil {
			ids = *sel
		}
		update := synthVisualization(frame, ids)
		if data, err := wire.EncodePacket(&update); err == nil {
			p.send(data)
		}

		if frame%rate == 0 {
			p.sendVis(mappings, cfg.VisPort)
		}
	}
}

// sendVis sends data to the visualization port of every stream group.
func (p *publisher) sendVis(data []byte, port int) {
	for _, s := range p.senders {
		dst := netip.AddrPortFrom(s.dst.Addr(), uint16(port))
		if _, err := s.sock.WriteTo(data, dst); err != nil {
			p.log.Debug().Err(err).Str("target", dst.String()).Msg("Send failed")
		}
	}
}

func receiveDataRequests(ctx context.Context, port int, selected *atomic.Pointer[[]uint32], log zerolog.Logger) {
	sock, err := mcast.Bind(ctx, "udp", fmt.Sprintf(":%d", port))
	if err != nil {
		log.Warn().Err(err).Msg("Data requests unavailable")
		return
	}
	go func() {
		<-ctx.Done()
		sock.Close()
	}()

	buf := make([]byte, wire.MaxDatagramSize)
	for {
		n, _, src, err := sock.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		req, err := wire.DecodeDataRequest(buf[:n])
		if err != nil {
			log.Debug().Err(err).Str("src", src.String()).Msg("Invalid data request")
			continue
		}
		ids := req.VisualizationIDs
		selected.Store(&ids)
		log.Info().Str("src", src.String()).Uints32("ids", ids).Msg("Data request received")
	}
}
