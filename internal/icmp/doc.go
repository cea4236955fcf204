// Package icmp provides the ICMPv4 echo codec and the raw channels used to
// exchange echo messages with a remote host.
//
// # Codec
//
// The codec is pure and does no I/O. EncodeRequest serializes an Echo Request
// (type 8, code 0) in network byte order:
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|     Type      |     Code      |          Checksum             |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|           Identifier          |        Sequence Number        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                      Timestamp (optional)                     |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|     Payload ...
//	+-+-+-+-+-
//
// DecodeReply parses a received datagram after skipping a caller supplied
// number of leading IP header bytes. Use IPv4HeaderLen to read that length
// from the IHL field instead of assuming 20 bytes.
//
// # Channels
//
// Two channel implementations are available:
//
//   - RawChannel opens an "ip4:icmp" socket with IP_HDRINCL. It requires
//     CAP_NET_RAW (or root) and delivers whole IPv4 datagrams.
//   - DatagramChannel opens an unprivileged "udp4" ICMP socket. On Linux this
//     requires the ping_group_range sysctl:
//
//	sysctl -w net.ipv4.ping_group_range="0 65535"
//
// The kernel rewrites the echo identifier of datagram sockets to the local
// port, see DatagramChannel.BoundIdentifier.
package icmp
