//go:build unix

// Package sockopt sets the socket options the engine relies on.
package sockopt

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// Control enables SO_REUSEADDR on a listening socket. It matches the
// net.ListenConfig.Control signature.
func Control(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// TuneConn disables Nagle's algorithm on an accepted TCP connection.
// Connections without a raw descriptor are left alone.
func TuneConn(conn net.Conn) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	err = raw.Control(func(fd uintptr) {
		// TCP_NODELAY: responses go out in a single write
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
