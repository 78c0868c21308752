//go:build !unix

package sockopt

import (
	"net"
	"syscall"
)

// Control is a no-op on this platform.
func Control(network, address string, c syscall.RawConn) error {
	return nil
}

// TuneConn is a no-op on this platform.
func TuneConn(conn net.Conn) error {
	return nil
}
