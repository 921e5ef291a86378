//go:build windows

package adapters

import "net"

// raiseRecvBuffer is a no-op on windows, where golang.org/x/sys/unix does
// not apply; SO_RCVBUF tuning is left to the platform default.
func raiseRecvBuffer(conn *net.UDPConn, bytes int) error {
	return nil
}
