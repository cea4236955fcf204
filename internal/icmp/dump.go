package icmp

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Describe returns a one-line summary of a received datagram for debug
// logging. It never fails; undecodable input is reported as such.
func Describe(d Datagram) string {
	first := gopacket.LayerType(layers.LayerTypeICMPv4)
	if d.HeaderIncluded {
		first = layers.LayerTypeIPv4
	}

	p := gopacket.NewPacket(d.Data, first, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	var prefix string
	if l, ok := p.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
		prefix = fmt.Sprintf("%s > %s ttl=%d ihl=%d ", l.SrcIP, l.DstIP, l.TTL, int(l.IHL)*4)
	}

	if m, ok := p.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4); ok {
		return fmt.Sprintf("%s%s id=%d seq=%d len=%d", prefix, m.TypeCode, m.Id, m.Seq, len(d.Data))
	}
	if el := p.ErrorLayer(); el != nil {
		return fmt.Sprintf("%sundecodable (%d bytes): %v", prefix, len(d.Data), el.Error())
	}
	return fmt.Sprintf("%sunknown (%d bytes)", prefix, len(d.Data))
}
