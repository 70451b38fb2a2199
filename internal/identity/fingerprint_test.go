package identity

import (
	"errors"
	"strings"
	"testing"

	"github.com/tbourn/go-comment-moderation/internal/config"
)

func TestFingerprint_StableAndOneWay(t *testing.T) {
	f := NewFingerprinter(config.IdentityConfig{Secret: "s3cret", Mode: config.FingerprintAddress, IPv6PrefixBits: 64})

	a, err := f.Fingerprint("203.0.113.7", "")
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	b, _ := f.Fingerprint("203.0.113.7:51234", "ignored")
	if a != b {
		t.Fatalf("port or token changed fingerprint in address mode: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("len = %d; want 64 hex chars", len(a))
	}
	if strings.Contains(a, "203.0.113.7") {
		t.Fatalf("fingerprint leaks the address")
	}
	c, _ := f.Fingerprint("203.0.113.8", "")
	if a == c {
		t.Fatalf("different addresses produced the same fingerprint")
	}
}

func TestFingerprint_SecretChangesOutput(t *testing.T) {
	keyed := NewFingerprinter(config.IdentityConfig{Secret: "k1"})
	other := NewFingerprinter(config.IdentityConfig{Secret: "k2"})
	plain := NewFingerprinter(config.IdentityConfig{})

	x, _ := keyed.Fingerprint("198.51.100.1", "")
	y, _ := other.Fingerprint("198.51.100.1", "")
	z, _ := plain.Fingerprint("198.51.100.1", "")
	if x == y || x == z || y == z {
		t.Fatalf("expected distinct fingerprints per secret: %s %s %s", x, y, z)
	}
	if plain.Keyed() || !keyed.Keyed() {
		t.Fatalf("Keyed() mismatch")
	}
}

func TestFingerprint_IPv6PrefixAndMapped(t *testing.T) {
	f := NewFingerprinter(config.IdentityConfig{Secret: "k", IPv6PrefixBits: 64})

	a, _ := f.Fingerprint("2001:db8:1:2::1", "")
	b, _ := f.Fingerprint("[2001:db8:1:2:ffff::9]:443", "")
	if a != b {
		t.Fatalf("addresses within one /64 must share a fingerprint")
	}
	c, _ := f.Fingerprint("2001:db8:1:3::1", "")
	if a == c {
		t.Fatalf("different /64 prefixes must differ")
	}

	v4, _ := f.Fingerprint("192.0.2.10", "")
	mapped, _ := f.Fingerprint("::ffff:192.0.2.10", "")
	if v4 != mapped {
		t.Fatalf("IPv4-mapped IPv6 must equal the IPv4 fingerprint")
	}
}

func TestFingerprint_TokenMode(t *testing.T) {
	f := NewFingerprinter(config.IdentityConfig{Secret: "k", Mode: config.FingerprintAddressAndToken})

	a, _ := f.Fingerprint("192.0.2.1", "tok-a")
	b, _ := f.Fingerprint("192.0.2.1", "tok-b")
	none, _ := f.Fingerprint("192.0.2.1", "")
	if a == b || a == none {
		t.Fatalf("token must contribute in address+token mode")
	}
}

func TestFingerprint_BadAddress(t *testing.T) {
	f := NewFingerprinter(config.IdentityConfig{})
	for _, in := range []string{"", "   ", "not-an-ip", "999.1.1.1"} {
		if _, err := f.Fingerprint(in, ""); !errors.Is(err, ErrNoAddress) {
			t.Errorf("Fingerprint(%q) err = %v; want ErrNoAddress", in, err)
		}
	}
}

func TestShort(t *testing.T) {
	if Short("abc") != "abc" {
		t.Fatal("short input must pass through")
	}
	if got := Short(strings.Repeat("f", 64)); len(got) != 12 {
		t.Fatalf("Short len = %d; want 12", len(got))
	}
}
