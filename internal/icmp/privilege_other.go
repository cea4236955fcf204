//go:build !unix

package icmp

// Privileged always reports true; datagram ICMP sockets are unavailable here
// and opening a raw socket is the only option.
func Privileged() bool {
	return true
}

func isNoBufs(err error) bool {
	return false
}
