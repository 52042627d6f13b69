package conv

import (
	"math"
	"testing"
)

func TestItoa(t *testing.T) {
	cases := map[int64]string{
		0:             "0",
		7:             "7",
		-273150:       "-273150",
		math.MaxInt64: "9223372036854775807",
		math.MinInt64: "-9223372036854775808",
	}
	for n, want := range cases {
		var buf [20]byte
		if got := string(Itoa(buf[:], n)); got != want {
			t.Errorf("Itoa(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestUtoa(t *testing.T) {
	var buf [20]byte
	if got := string(Utoa(buf[:], math.MaxUint64)); got != "18446744073709551615" {
		t.Fatalf("got %q", got)
	}
	if got := Utoa(nil, 5); len(got) != 0 {
		t.Fatalf("empty buf: %q", got)
	}
}

func TestU32Hex(t *testing.T) {
	var buf [8]byte
	if got := string(U32Hex(buf[:], 0x3f)); got != "0000003F" {
		t.Fatalf("got %q", got)
	}
	if got := U32Hex(buf[:4], 1); len(got) != 0 {
		t.Fatalf("short buf: %q", got)
	}
}
