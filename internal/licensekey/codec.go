// Package licensekey provides signed license key generation and verification for Subkey.
package licensekey

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// SignatureLength is the number of hex characters kept from the HMAC digest.
const SignatureLength = 8

// keyPattern matches the canonical key format: a UUID-shaped token (five
// dash-separated groups) followed by an 8-character signature group.
var keyPattern = regexp.MustCompile(`^[A-Z0-9]{8}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{12}-[A-Z0-9]{8}$`)

// Codec generates and verifies license keys using an HMAC-SHA256 signature
// bound to the purchase that issued the key. Verification here is a fast-path
// convenience; the license ledger remains the system of record.
type Codec struct {
	secret []byte
}

// NewCodec creates a Codec with the given signing secret.
func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret}
}

// Generate creates a new signed license key for a purchase.
// Format: XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX-SSSSSSSS where the first five
// groups are a random identifier and the last group is the truncated signature.
func (c *Codec) Generate(transactionID, email string, timestampMs int64) string {
	token := strings.ToUpper(uuid.New().String())
	return token + "-" + c.sign(token, transactionID, email, timestampMs)
}

// Verify checks that a license key was issued for the given purchase facts.
// It returns false on any structural mismatch and never returns an error.
func (c *Codec) Verify(key, transactionID, email string, timestampMs int64) bool {
	parts := strings.Split(key, "-")
	if len(parts) != 6 {
		return false
	}

	token := strings.Join(parts[:5], "-")
	provided := parts[5]

	expected := c.sign(token, transactionID, email, timestampMs)
	return hmac.Equal([]byte(provided), []byte(expected))
}

// sign computes the truncated uppercase hex HMAC over the canonical data string.
func (c *Codec) sign(token, transactionID, email string, timestampMs int64) string {
	mac := hmac.New(sha256.New, c.secret)
	fmt.Fprintf(mac, "%s:%s:%s:%d", token, transactionID, email, timestampMs)
	digest := hex.EncodeToString(mac.Sum(nil))
	return strings.ToUpper(digest[:SignatureLength])
}

// IsWellFormed reports whether the key matches the six-group structural
// pattern. It carries no cryptographic guarantee.
func IsWellFormed(key string) bool {
	return keyPattern.MatchString(key)
}
