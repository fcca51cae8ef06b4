// Package netif enumerates local network interfaces and reports their live
// multicast and link state.
package netif

import (
	"fmt"
	"net/netip"
	"sort"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// Interface is a read-only snapshot of one local network interface.
type Interface struct {
	Index int
	Name  string
	Addrs []netip.Prefix
}

// List enumerates the local interfaces ordered by index. On a platform query
// failure it returns whatever could be collected together with the error;
// callers treat an error as "no interface change this cycle".
func List() ([]Interface, error) {
	stats, err := psnet.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}

	ifaces := make([]Interface, 0, len(stats))
	for _, st := range stats {
		iface := Interface{Index: st.Index, Name: st.Name}
		for _, a := range st.Addrs {
			p, err := netip.ParsePrefix(a.Addr)
			if err != nil {
				// Some platforms report bare addresses
				addr, aerr := netip.ParseAddr(a.Addr)
				if aerr != nil {
					continue
				}
				p = netip.PrefixFrom(addr, addr.BitLen())
			}
			iface.Addrs = append(iface.Addrs, p)
		}
		ifaces = append(ifaces, iface)
	}

	sort.Slice(ifaces, func(i, j int) bool { return ifaces[i].Index < ifaces[j].Index })
	return ifaces, nil
}

// HasIPv4 reports whether any IPv4 address is bound to the interface.
func (i Interface) HasIPv4() bool {
	for _, p := range i.Addrs {
		if p.Addr().Unmap().Is4() {
			return true
		}
	}
	return false
}

// HasIPv6 reports whether any IPv6 address is bound to the interface.
func (i Interface) HasIPv6() bool {
	for _, p := range i.Addrs {
		if p.Addr().Is6() && !p.Addr().Is4In6() {
			return true
		}
	}
	return false
}

// Viable reports whether discovery sockets should be bound on the interface.
func (i Interface) Viable() bool {
	return i.IsMulticast() && i.IsUp()
}

// IsMulticast queries whether the interface currently supports multicast.
// Query failure is reported as false.
func (i Interface) IsMulticast() bool {
	f, err := queryFlags(i)
	return err == nil && f.multicast
}

// IsUp queries whether the interface is operationally up.
// Query failure is reported as false.
func (i Interface) IsUp() bool {
	f, err := queryFlags(i)
	return err == nil && f.up
}

// Same reports whether two snapshots describe the same interface.
func (i Interface) Same(o Interface) bool {
	return i.Index == o.Index && i.Name == o.Name
}

type linkFlags struct {
	multicast bool
	up        bool
}
