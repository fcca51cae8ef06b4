package stream

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"fieldsync/internal/discovery"
	"fieldsync/internal/mcast"
	"fieldsync/internal/task"
	"fieldsync/internal/wire"
)

// multicastSession receives telemetry on the data port and overlay
// advertisements on the visualization port, both joined source-specifically.
type multicastSession struct {
	host    discovery.Host
	cfg     Config
	group   netip.Addr
	log     zerolog.Logger
	data    *mcast.Socket
	vis     *mcast.Socket
	joined  [2]bool
	request wire.DataRequest

	// joinSource defaults to (*mcast.Socket).JoinSourceGroup.
	joinSource func(sock *mcast.Socket, group, source netip.Addr, ifIndex int) error
}

func runMulticast(ctx context.Context, host discovery.Host, cfg Config, log zerolog.Logger,
	out *task.Sender[wire.Packet], requests <-chan wire.Request) error {

	group, err := streamGroup(host, cfg)
	if err != nil {
		return err
	}

	network := familyOf(host.Addr.Addr())
	data, err := mcast.Bind(ctx, network, net.JoinHostPort("", strconv.Itoa(cfg.DataPort)))
	if err != nil {
		return fmt.Errorf("binding data socket: %w", err)
	}
	defer data.Close()

	vis, err := mcast.Bind(ctx, network, net.JoinHostPort("", strconv.Itoa(cfg.VisPort)))
	if err != nil {
		return fmt.Errorf("binding visualization socket: %w", err)
	}
	defer vis.Close()

	if err := data.SetReadBuffer(readBufferSize); err != nil {
		log.Warn().Err(err).Msg("Failed to set read buffer")
	}

	s := &multicastSession{
		host:  host,
		cfg:   cfg,
		group: group,
		log:   log,
		data:  data,
		vis:   vis,
	}
	s.join()

	log.Info().
		Str("group", group.String()).
		Str("source", host.Addr.Addr().String()).
		Int("if_index", host.Interface()).
		Msg("Multicast stream started")

	return s.serve(ctx, out, requests)
}

// join subscribes both sockets to the host's traffic. Failures are logged;
// the caller retries on the next rejoin tick.
func (s *multicastSession) join() bool {
	source := s.host.Addr.Addr()
	for i, sock := range []*mcast.Socket{s.data, s.vis} {
		if s.joined[i] {
			continue
		}
		joinSource := s.joinSource
		if joinSource == nil {
			joinSource = (*mcast.Socket).JoinSourceGroup
		}
		if err := joinSource(sock, s.group, source, s.host.Interface()); err != nil {
			s.log.Warn().Err(err).Msg("Source-specific join failed, retrying")
			continue
		}
		s.joined[i] = true
	}
	return s.joined[0] && s.joined[1]
}

func (s *multicastSession) serve(ctx context.Context, out *task.Sender[wire.Packet], requests <-chan wire.Request) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := task.NewWarnLimiter(4, decodeWarnEvery)
	packets := make(chan wire.Packet, 64)
	mappings := make(chan wire.Packet, 4)
	errc := make(chan error, 2)

	go (&reader{name: "data", sock: s.data, log: s.log, limiter: limiter}).run(ctx, packets, errc)
	go (&reader{name: "vis", sock: s.vis, log: s.log, limiter: limiter}).run(ctx, mappings, errc)

	var rejoin <-chan time.Time
	if !s.joined[0] || !s.joined[1] {
		ticker := time.NewTicker(s.cfg.Rejoin)
		defer ticker.Stop()
		rejoin = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-errc:
			return err

		case <-rejoin:
			if s.join() {
				s.log.Info().Msg("Source-specific join succeeded")
				rejoin = nil
			}

		case req := <-requests:
			s.handleRequest(req)

		case pkt := <-packets:
			if !out.TrySend(pkt) {
				return nil
			}

		case pkt := <-mappings:
			if _, ok := pkt.(*wire.VisMappings); !ok {
				s.log.Debug().Stringer("kind", pkt.Kind()).Msg("Unexpected packet on visualization port")
				continue
			}
			if !out.TrySend(pkt) {
				return nil
			}
			s.sendDataRequest()
		}
	}
}

// handleRequest applies control requests. Multicast hosts publish every
// stream unconditionally, so only the overlay selection matters.
func (s *multicastSession) handleRequest(req wire.Request) {
	switch r := req.(type) {
	case *wire.VisFilter:
		s.request.VisualizationIDs = append([]uint32(nil), r.IDs...)
		s.sendDataRequest()
	case *wire.StreamRequest, *wire.UDPStreamRequest:
	default:
		s.log.Debug().Msg("Ignoring unknown request")
	}
}

// sendDataRequest unicasts the current overlay selection to the host.
func (s *multicastSession) sendDataRequest() {
	data, err := wire.EncodeDataRequest(s.request)
	if err != nil {
		s.log.Error().Err(err).Msg("Encoding data request failed")
		return
	}
	dst := netip.AddrPortFrom(s.host.Addr.Addr(), uint16(s.cfg.VisPort))
	if _, err := s.vis.WriteTo(data, dst); err != nil {
		s.log.Debug().Err(err).Str("target", dst.String()).Msg("Sending data request failed")
	}
}
