//go:build !unix && !windows

package mcast

import "syscall"

func reuseControl(network, address string, c syscall.RawConn) error {
	return nil
}
