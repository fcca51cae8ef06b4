// Package stream receives telemetry from one field host, either through
// source-specific multicast or through a WebSocket control channel with
// unicast UDP data.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/rs/zerolog"

	"fieldsync/internal/discovery"
	"fieldsync/internal/mcast"
	"fieldsync/internal/task"
	"fieldsync/internal/wire"
)

// ErrTimeout is returned when a host stays silent for longer than the
// inactivity timeout.
var ErrTimeout = errors.New("stream inactive")

// Transport selects how telemetry is received.
type Transport string

const (
	Multicast Transport = "multicast"
	WebSocket Transport = "websocket"
)

const (
	DefaultDataPort = 11001
	DefaultVisPort  = 11002
	DefaultTimeout  = 1500 * time.Millisecond
	DefaultRejoin   = 3 * time.Second

	decodeWarnEvery = 5 * time.Second
	readBufferSize  = 1 << 20
)

var (
	DefaultGroupV4 = netip.MustParseAddr("232.1.1.1")
	DefaultGroupV6 = netip.MustParseAddr("ff15::45:5246:6f72:6365")
)

// Config holds transport settings.
type Config struct {
	Transport Transport
	DataPort  int
	VisPort   int
	GroupV4   netip.Addr
	GroupV6   netip.Addr
	Timeout   time.Duration
	Rejoin    time.Duration
}

// DefaultConfig returns the default transport settings.
func DefaultConfig() Config {
	return Config{
		Transport: WebSocket,
		DataPort:  DefaultDataPort,
		VisPort:   DefaultVisPort,
		GroupV4:   DefaultGroupV4,
		GroupV6:   DefaultGroupV6,
		Timeout:   DefaultTimeout,
		Rejoin:    DefaultRejoin,
	}
}

// Handle is the owner side of a running stream task.
type Handle = task.Handle[wire.Packet, wire.Request]

// Spawn starts the transport task for host.
func Spawn(ctx context.Context, host discovery.Host, cfg Config, log zerolog.Logger) (*Handle, error) {
	var fn task.Func[wire.Packet, wire.Request]
	switch cfg.Transport {
	case Multicast:
		fn = func(ctx context.Context, out *task.Sender[wire.Packet], requests <-chan wire.Request) error {
			return runMulticast(ctx, host, cfg, log, out, requests)
		}
	case WebSocket, "":
		fn = func(ctx context.Context, out *task.Sender[wire.Packet], requests <-chan wire.Request) error {
			return runWebSocket(ctx, host, cfg, log, out, requests)
		}
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}

	return task.Spawn(ctx, task.Options{Name: "stream " + host.Name(), OutBuffer: 64, Log: log}, fn), nil
}

// streamGroup returns the advertised group or the default for the host's
// address family.
func streamGroup(host discovery.Host, cfg Config) (netip.Addr, error) {
	if host.StreamGroup != "" {
		g, err := netip.ParseAddr(host.StreamGroup)
		if err != nil {
			return netip.Addr{}, fmt.Errorf("parsing stream group %q: %w", host.StreamGroup, err)
		}
		return g, nil
	}
	if host.Addr.Addr().Is4() {
		return cfg.GroupV4, nil
	}
	return cfg.GroupV6, nil
}

func familyOf(addr netip.Addr) string {
	if addr.Unmap().Is4() {
		return "udp4"
	}
	return "udp6"
}

// reader decodes datagrams from one socket on its own goroutine.
type reader struct {
	name    string
	sock    *mcast.Socket
	log     zerolog.Logger
	limiter *task.WarnLimiter
}

func (r *reader) run(ctx context.Context, packets chan<- wire.Packet, errc chan<- error) {
	buf := make([]byte, wire.MaxDatagramSize)
	for {
		n, _, src, err := r.sock.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				sendErr(ctx, errc, fmt.Errorf("%s socket: %w", r.name, err))
				return
			}
			r.log.Debug().Err(err).Str("socket", r.name).Msg("Receive failed")
			continue
		}

		pkt, err := wire.DecodePacket(buf[:n])
		if err != nil {
			logDecodeError(r.log, r.limiter, r.name, src.String(), err)
			continue
		}

		select {
		case packets <- pkt:
		case <-ctx.Done():
			return
		}
	}
}

func sendErr(ctx context.Context, errc chan<- error, err error) {
	select {
	case errc <- err:
	case <-ctx.Done():
	}
}

func logDecodeError(log zerolog.Logger, limiter *task.WarnLimiter, channel, src string, err error) {
	ev := log.Debug()
	if limiter.Allow(channel) {
		ev = log.Warn()
	}
	ev.Err(err).Str("channel", channel).Str("src", src).Msg("Dropping undecodable packet")
}
