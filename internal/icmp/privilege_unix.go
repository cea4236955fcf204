//go:build unix

package icmp

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Privileged reports whether the process may open raw sockets without
// further configuration.
func Privileged() bool {
	return unix.Geteuid() == 0
}

func isNoBufs(err error) bool {
	return errors.Is(err, unix.ENOBUFS)
}
