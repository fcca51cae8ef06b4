// Package mcast binds UDP sockets for multicast reception and joins
// any-source and source-specific multicast groups.
package mcast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// ErrNoViableAddress is returned by Bind when no candidate local address
// could be bound.
var ErrNoViableAddress = errors.New("no viable local address")

// Socket is a UDP socket bound with address reuse, wrapped with the
// per-family packet conn used for group membership and control messages.
type Socket struct {
	conn    *net.UDPConn
	p4      *ipv4.PacketConn
	p6      *ipv6.PacketConn
	ifIndex int
}

// Bind resolves every candidate local address for address and returns the
// first one that binds. network is "udp", "udp4" or "udp6".
func Bind(ctx context.Context, network, address string) (*Socket, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("splitting %s: %w", address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("parsing port %s: %w", portStr, err)
	}

	candidates, err := resolve(ctx, network, host)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", host, err)
	}

	lc := net.ListenConfig{Control: reuseControl}
	var lastErr error
	for _, ip := range candidates {
		laddr := netip.AddrPortFrom(ip, uint16(port))
		pc, err := lc.ListenPacket(ctx, familyNetwork(ip), laddr.String())
		if err != nil {
			lastErr = err
			continue
		}
		return newSocket(pc.(*net.UDPConn), ip.Is4()), nil
	}

	if lastErr == nil {
		return nil, fmt.Errorf("binding %s: %w", address, ErrNoViableAddress)
	}
	return nil, fmt.Errorf("binding %s: %w: %w", address, ErrNoViableAddress, lastErr)
}

func resolve(ctx context.Context, network, host string) ([]netip.Addr, error) {
	if host == "" {
		switch network {
		case "udp4":
			return []netip.Addr{netip.IPv4Unspecified()}, nil
		case "udp6":
			return []netip.Addr{netip.IPv6Unspecified()}, nil
		default:
			return []netip.Addr{netip.IPv6Unspecified(), netip.IPv4Unspecified()}, nil
		}
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{ip.Unmap()}, nil
	}

	ipNetwork := "ip"
	switch network {
	case "udp4":
		ipNetwork = "ip4"
	case "udp6":
		ipNetwork = "ip6"
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, ipNetwork, host)
	if err != nil {
		return nil, err
	}
	for i := range addrs {
		addrs[i] = addrs[i].Unmap()
	}
	return addrs, nil
}

func familyNetwork(ip netip.Addr) string {
	if ip.Is4() {
		return "udp4"
	}
	return "udp6"
}

func newSocket(conn *net.UDPConn, v4 bool) *Socket {
	s := &Socket{conn: conn}
	if v4 {
		s.p4 = ipv4.NewPacketConn(conn)
		// Not supported everywhere, ReadFrom falls back to the joined interface
		_ = s.p4.SetControlMessage(ipv4.FlagInterface, true)
	} else {
		s.p6 = ipv6.NewPacketConn(conn)
		_ = s.p6.SetControlMessage(ipv6.FlagInterface, true)
	}
	return s
}

// JoinGroup joins group on ifi for traffic from any source. Used for the
// shared discovery beacon group.
func (s *Socket) JoinGroup(group netip.Addr, ifi *net.Interface) error {
	g := &net.UDPAddr{IP: group.AsSlice()}
	var err error
	if s.p4 != nil {
		err = s.p4.JoinGroup(ifi, g)
	} else {
		err = s.p6.JoinGroup(ifi, g)
	}
	if err != nil {
		return fmt.Errorf("joining %s: %w", group, err)
	}
	if ifi != nil {
		s.ifIndex = ifi.Index
	}
	return nil
}

// JoinSourceGroup subscribes to group traffic originating only from source,
// scoped to the interface with index ifIndex.
func (s *Socket) JoinSourceGroup(group, source netip.Addr, ifIndex int) error {
	var ifi *net.Interface
	if ifIndex != 0 {
		var err error
		ifi, err = net.InterfaceByIndex(ifIndex)
		if err != nil {
			return fmt.Errorf("looking up interface %d: %w", ifIndex, err)
		}
	}

	g := &net.UDPAddr{IP: group.AsSlice()}
	src := &net.UDPAddr{IP: source.WithZone("").AsSlice()}
	var err error
	if s.p4 != nil {
		err = s.p4.JoinSourceSpecificGroup(ifi, g, src)
	} else {
		err = s.p6.JoinSourceSpecificGroup(ifi, g, src)
	}
	if err != nil {
		return fmt.Errorf("joining %s from %s on interface %d: %w", group, source, ifIndex, err)
	}
	s.ifIndex = ifIndex
	return nil
}

// SetMulticastInterface selects the outgoing interface for multicast sends.
func (s *Socket) SetMulticastInterface(ifi *net.Interface) error {
	if s.p4 != nil {
		if err := s.p4.SetMulticastTTL(1); err != nil {
			return err
		}
		return s.p4.SetMulticastInterface(ifi)
	}
	return s.p6.SetMulticastInterface(ifi)
}

// ReadFrom reads one datagram and reports the interface it arrived on.
func (s *Socket) ReadFrom(b []byte) (n int, ifIndex int, src netip.AddrPort, err error) {
	var addr net.Addr
	ifIndex = s.ifIndex
	if s.p4 != nil {
		var cm *ipv4.ControlMessage
		n, cm, addr, err = s.p4.ReadFrom(b)
		if cm != nil && cm.IfIndex != 0 {
			ifIndex = cm.IfIndex
		}
	} else {
		var cm *ipv6.ControlMessage
		n, cm, addr, err = s.p6.ReadFrom(b)
		if cm != nil && cm.IfIndex != 0 {
			ifIndex = cm.IfIndex
		}
	}
	if err != nil {
		return 0, 0, netip.AddrPort{}, err
	}
	if ua, ok := addr.(*net.UDPAddr); ok {
		src = ua.AddrPort()
		src = netip.AddrPortFrom(src.Addr().Unmap(), src.Port())
	}
	return n, ifIndex, src, nil
}

// WriteTo sends b to dst.
func (s *Socket) WriteTo(b []byte, dst netip.AddrPort) (int, error) {
	return s.conn.WriteToUDPAddrPort(b, dst)
}

// SetReadBuffer sets the kernel receive buffer size.
func (s *Socket) SetReadBuffer(bytes int) error {
	return s.conn.SetReadBuffer(bytes)
}

// SetReadDeadline sets the deadline for pending and future reads.
func (s *Socket) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// LocalAddr returns the bound local address.
func (s *Socket) LocalAddr() netip.AddrPort {
	ap := s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// Close closes the socket; pending reads return net.ErrClosed.
func (s *Socket) Close() error {
	return s.conn.Close()
}
