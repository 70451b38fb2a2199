// Package identity derives submitter fingerprints and gates admission so a
// fingerprint holds at most one pending or approved comment.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"net/netip"
	"strings"

	"github.com/tbourn/go-comment-moderation/internal/config"
)

// ErrNoAddress is returned when the client address cannot be parsed.
var ErrNoAddress = errors.New("identity: unusable client address")

// Fingerprinter maps a client network address to a one-way token.
//
// With a secret the token is HMAC-SHA256(secret, address); without one it is
// plain SHA-256, which is reversible by enumerating the IPv4 space and should
// only be used in development. IPv6 addresses are masked to a prefix so a
// single host cannot rotate through its /64 to evade the gate.
type Fingerprinter struct {
	secret    []byte
	withToken bool
	v6Prefix  int
}

// NewFingerprinter builds a Fingerprinter from identity settings.
func NewFingerprinter(cfg config.IdentityConfig) *Fingerprinter {
	bits := cfg.IPv6PrefixBits
	if bits <= 0 || bits > 128 {
		bits = 128
	}
	return &Fingerprinter{
		secret:    []byte(cfg.Secret),
		withToken: cfg.Mode == config.FingerprintAddressAndToken,
		v6Prefix:  bits,
	}
}

// MixesToken reports whether client tokens take part in fingerprints
// (address+token mode).
func (f *Fingerprinter) MixesToken() bool { return f.withToken }

// Keyed reports whether fingerprints are HMAC-keyed.
func (f *Fingerprinter) Keyed() bool { return len(f.secret) > 0 }

// Fingerprint returns the hex token for addr. addr may carry a port. token is
// the client-supplied identity token and only contributes in address+token
// mode.
func (f *Fingerprinter) Fingerprint(addr, token string) (string, error) {
	ip, err := normalizeAddr(addr, f.v6Prefix)
	if err != nil {
		return "", err
	}

	var h hash.Hash
	if f.Keyed() {
		h = hmac.New(sha256.New, f.secret)
	} else {
		h = sha256.New()
	}
	h.Write([]byte(ip))
	if f.withToken {
		if t := strings.TrimSpace(token); t != "" {
			h.Write([]byte{0})
			h.Write([]byte(t))
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Short returns a log-safe prefix of a fingerprint.
func Short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func normalizeAddr(raw string, v6Prefix int) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNoAddress
	}
	ip, err := netip.ParseAddr(strings.Trim(raw, "[]"))
	if err != nil {
		ap, perr := netip.ParseAddrPort(raw)
		if perr != nil {
			return "", ErrNoAddress
		}
		ip = ap.Addr()
	}
	ip = ip.Unmap().WithZone("")
	if ip.Is6() && v6Prefix < 128 {
		p, err := ip.Prefix(v6Prefix)
		if err != nil {
			return "", ErrNoAddress
		}
		return p.String(), nil
	}
	return ip.String(), nil
}
