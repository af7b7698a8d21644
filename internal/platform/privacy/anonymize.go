// Package privacy holds the primitives used to strip identifying data:
// IP truncation for stored evidence and the placeholder values written over
// a subject's identity when it is anonymized.
package privacy

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/netip"
	"strings"
)

const (
	// AnonymizedNamePrefix marks a name field overwritten by anonymization.
	AnonymizedNamePrefix = "ANONYMIZED_"
	// AnonymizedEmailDomain is the reserved domain for anonymized addresses.
	AnonymizedEmailDomain = "anonymized.local"

	tokenBytes = 8
)

// AnonymizeIP truncates an address to its /24 (IPv4) or /48 (IPv6) network.
// Returns "unknown" for empty input and "invalid" for unparseable input.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()
	if addr.Is4() {
		b := addr.As4()
		return fmt.Sprintf("%d.%d.%d.0", b[0], b[1], b[2])
	}
	b := addr.As16()
	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::", b[0], b[1], b[2], b[3], b[4], b[5])
}

// NewToken returns a random hex token that links nothing back to the subject.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate anonymization token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// AnonymizedName is the placeholder written over a subject's name.
func AnonymizedName(token string) string {
	return AnonymizedNamePrefix + token
}

// AnonymizedEmail is the placeholder written over a subject's email.
func AnonymizedEmail(token string) string {
	return token + "@" + AnonymizedEmailDomain
}

// LooksAnonymized reports whether name or email carry the placeholder shapes.
// Records anonymized before anonymized_at existed only have these markers.
func LooksAnonymized(name, email string) bool {
	return strings.HasPrefix(name, AnonymizedNamePrefix) ||
		strings.Contains(email, "@"+AnonymizedEmailDomain)
}
