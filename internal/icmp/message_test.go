package icmp

import "testing"

func TestType_String(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{TypeEchoReply, "echo-reply"},
		{TypeDestUnreach, "destination-unreachable"},
		{TypeTimeExceeded, "time-exceeded"},
		{TypeEchoRequest, "echo-request"},
		{Type(42), "type-42"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("Type(%d).String() = %q, want %q", uint8(tt.typ), got, tt.want)
		}
	}
}

func TestUnreachableCode_String(t *testing.T) {
	if got := HostUnreachable.String(); got != "host unreachable" {
		t.Errorf("HostUnreachable.String() = %q", got)
	}
	if got := PrecedenceCutoff.String(); got != "precedence cutoff in effect" {
		t.Errorf("PrecedenceCutoff.String() = %q", got)
	}
	if got := UnreachableCode(16).String(); got != "unreachable code 16" {
		t.Errorf("UnreachableCode(16).String() = %q", got)
	}
}

func TestProtocolNumber(t *testing.T) {
	if ProtocolNumber != 1 {
		t.Errorf("ProtocolNumber = %d, want 1", ProtocolNumber)
	}
}
