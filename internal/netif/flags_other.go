//go:build !linux

package netif

import "net"

func queryFlags(i Interface) (linkFlags, error) {
	ifi, err := net.InterfaceByIndex(i.Index)
	if err != nil {
		return linkFlags{}, err
	}
	return linkFlags{
		multicast: ifi.Flags&net.FlagMulticast != 0,
		up:        ifi.Flags&net.FlagUp != 0,
	}, nil
}
