package discovery

import (
	"cmp"
	"net/netip"
	"slices"

	"fieldsync/internal/beacon"
)

// Host is one field host seen during a collection window.
type Host struct {
	// Addr is the beacon source address, zoned for IPv6 link-local.
	Addr netip.AddrPort
	// Interfaces lists every interface index the host was seen on,
	// ascending. The first entry is the preferred interface.
	Interfaces  []int
	Hostname    string
	InstanceID  *uint32
	ControlPort uint16
	StreamGroup string
}

// Interface returns the preferred (lowest index) interface.
func (h Host) Interface() int {
	if len(h.Interfaces) == 0 {
		return 0
	}
	return h.Interfaces[0]
}

// ControlAddr returns the WebSocket control endpoint of the host.
func (h Host) ControlAddr() netip.AddrPort {
	return netip.AddrPortFrom(h.Addr.Addr(), h.ControlPort)
}

// Name returns the hostname, or the source address when none was advertised.
func (h Host) Name() string {
	if h.Hostname != "" {
		return h.Hostname
	}
	return h.Addr.Addr().WithZone("").String()
}

func (h Host) sameAs(src netip.AddrPort, adv beacon.HostAdvertisement) bool {
	if unzoned(h.Addr) == unzoned(src) {
		return true
	}
	if name := adv.Name(); name != "" && h.Hostname == name && h.Addr.Port() == src.Port() {
		return true
	}
	return adv.InstanceID != nil && h.InstanceID != nil && *adv.InstanceID == *h.InstanceID
}

func unzoned(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().WithZone(""), ap.Port())
}

func compareHosts(a, b Host) int {
	if c := cmp.Compare(a.Hostname, b.Hostname); c != 0 {
		return c
	}
	return a.Addr.Compare(b.Addr)
}

// collector merges the beacons of one collection window.
type collector struct {
	hosts []Host
}

// add merges one observation and reports whether it was a new host.
func (c *collector) add(src netip.AddrPort, ifIndex int, adv beacon.HostAdvertisement) bool {
	for i := range c.hosts {
		h := &c.hosts[i]
		if !h.sameAs(src, adv) {
			continue
		}

		if ifIndex < h.Interface() {
			h.Addr = src
		}
		if !slices.Contains(h.Interfaces, ifIndex) {
			h.Interfaces = append(h.Interfaces, ifIndex)
			slices.Sort(h.Interfaces)
		}
		h.ControlPort = adv.ControlPort
		h.StreamGroup = adv.StreamGroup
		if adv.InstanceID != nil {
			h.InstanceID = adv.InstanceID
		}
		return false
	}

	c.hosts = append(c.hosts, Host{
		Addr:        src,
		Interfaces:  []int{ifIndex},
		Hostname:    adv.Name(),
		InstanceID:  adv.InstanceID,
		ControlPort: adv.ControlPort,
		StreamGroup: adv.StreamGroup,
	})
	return true
}

// snapshot returns a sorted copy safe to hand to another goroutine.
func (c *collector) snapshot() []Host {
	out := make([]Host, len(c.hosts))
	for i, h := range c.hosts {
		h.Interfaces = slices.Clone(h.Interfaces)
		out[i] = h
	}
	slices.SortStableFunc(out, compareHosts)
	return out
}

func (c *collector) reset() {
	c.hosts = nil
}

// Registry is the consumer-side host list.
type Registry struct {
	hosts []Host
}

// Update replaces the host list and reports whether it changed as a set.
// Interface lists are not compared.
func (r *Registry) Update(hosts []Host) bool {
	if sameHosts(r.hosts, hosts) {
		return false
	}
	r.hosts = slices.Clone(hosts)
	slices.SortStableFunc(r.hosts, compareHosts)
	return true
}

// Hosts returns the current list.
func (r *Registry) Hosts() []Host {
	return slices.Clone(r.hosts)
}

// Lookup finds a host by hostname or address.
func (r *Registry) Lookup(name string) (Host, bool) {
	for _, h := range r.hosts {
		if h.Hostname == name || h.Addr.Addr().WithZone("").String() == name || h.Addr.String() == name {
			return h, true
		}
	}
	return Host{}, false
}

type hostKey struct {
	addr        netip.AddrPort
	hostname    string
	controlPort uint16
	streamGroup string
}

func keyOf(h Host) hostKey {
	return hostKey{
		addr:        unzoned(h.Addr),
		hostname:    h.Hostname,
		controlPort: h.ControlPort,
		streamGroup: h.StreamGroup,
	}
}

func sameHosts(a, b []Host) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[hostKey]int, len(a))
	for _, h := range a {
		set[keyOf(h)]++
	}
	for _, h := range b {
		k := keyOf(h)
		if set[k] == 0 {
			return false
		}
		set[k]--
	}
	return true
}
