package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"
)

// SignatureHeader carries "sha256=<hex>" on provider deliveries.
const SignatureHeader = "BTCPay-Sig"

// Verifier authenticates webhook bodies with HMAC-SHA256 over the exact raw bytes.
type Verifier struct {
	secret  []byte
	newHash func() hash.Hash
	equal   func(a, b []byte) bool
}

// NewVerifier creates a verifier for the shared webhook secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret:  []byte(secret),
		newHash: sha256.New,
		equal:   hmac.Equal,
	}
}

// Verify reports whether signatureHex is the hex HMAC of body. An empty signature
// is rejected before any hashing; a non-hex signature is a mismatch.
func (v *Verifier) Verify(body []byte, signatureHex string) bool {
	if signatureHex == "" {
		return false
	}
	provided, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	mac := hmac.New(v.newHash, v.secret)
	mac.Write(body)
	return v.equal(mac.Sum(nil), provided)
}

// Verify is a convenience wrapper for one-off checks.
func Verify(body []byte, signatureHex, secret string) bool {
	return NewVerifier(secret).Verify(body, signatureHex)
}

// Sign returns the hex HMAC-SHA256 of body, as the provider computes it.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureFromHeader extracts the hex digest from a "sha256=<hex>" header value.
// Values without the prefix are returned trimmed.
func SignatureFromHeader(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > len("sha256=") && strings.EqualFold(value[:len("sha256=")], "sha256=") {
		return value[len("sha256="):]
	}
	return value
}
