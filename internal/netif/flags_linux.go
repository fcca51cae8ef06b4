package netif

import (
	"net"

	"github.com/vishvananda/netlink"
)

func queryFlags(i Interface) (linkFlags, error) {
	link, err := netlink.LinkByIndex(i.Index)
	if err != nil {
		return linkFlags{}, err
	}
	attrs := link.Attrs()

	// Loopback and some virtual links never report an operstate
	up := attrs.OperState == netlink.OperUp ||
		(attrs.OperState == netlink.OperUnknown && attrs.Flags&net.FlagUp != 0)

	return linkFlags{
		multicast: attrs.Flags&net.FlagMulticast != 0,
		up:        up,
	}, nil
}
