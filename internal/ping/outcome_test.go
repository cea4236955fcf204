package ping

import (
	"errors"
	"testing"
	"time"

	"github.com/postalsys/muti-ping/internal/icmp"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{StatusSuccess, "success"},
		{StatusTimeout, "timeout"},
		{StatusUnreachable, "unreachable"},
		{StatusTTLExpired, "ttl-expired"},
		{StatusOtherICMP, "other-icmp"},
		{StatusTransportError, "transport-error"},
		{Status(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}

func TestOutcome_String(t *testing.T) {
	tests := []struct {
		name string
		o    Outcome
		want string
	}{
		{
			name: "success",
			o:    Outcome{Seq: 1, Status: StatusSuccess, From: testDst, Bytes: 32, RTT: 12340 * time.Microsecond, TTL: 57},
			want: "Reply from 192.0.2.1: seq=1 bytes=32 time=12.34ms TTL=57",
		},
		{
			name: "sub-millisecond",
			o:    Outcome{Seq: 2, Status: StatusSuccess, From: testDst, Bytes: 32, RTT: 250 * time.Microsecond, TTL: 64},
			want: "Reply from 192.0.2.1: seq=2 bytes=32 time=0.250ms TTL=64",
		},
		{
			name: "timeout",
			o:    Outcome{Seq: 3, Status: StatusTimeout},
			want: "Request timed out: seq=3",
		},
		{
			name: "unreachable",
			o:    Outcome{Seq: 4, Status: StatusUnreachable, From: testRouter, Type: icmp.TypeDestUnreach, Code: 1},
			want: "Reply from 198.51.100.254: seq=4 destination host unreachable",
		},
		{
			name: "ttl expired",
			o:    Outcome{Seq: 5, Status: StatusTTLExpired, From: testRouter},
			want: "Reply from 198.51.100.254: seq=5 TTL expired in transit",
		},
		{
			name: "other",
			o:    Outcome{Seq: 6, Status: StatusOtherICMP, From: testRouter, Type: icmp.TypeParamProblem},
			want: "Reply from 198.51.100.254: seq=6 parameter-problem code 0",
		},
		{
			name: "transport error",
			o:    Outcome{Seq: 7, Status: StatusTransportError, Err: errors.New("sendto: no route to host")},
			want: "Transmit failed: seq=7: sendto: no route to host",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.o.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
