//go:build !windows

package adapters

import (
	"net"

	"golang.org/x/sys/unix"
)

// raiseRecvBuffer sets SO_RCVBUF on conn's underlying file descriptor via
// golang.org/x/sys/unix, the same package the rest of the retrieval pack
// pulls in transitively for low-level socket/descriptor access. The kernel
// doubles whatever value is requested, so callers ask for half their target.
func raiseRecvBuffer(conn *net.UDPConn, bytes int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bytes)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}
