// Package signature verifies the authenticity of inbound webhook deliveries
// using the svix signing scheme: an HMAC-SHA256 over "{id}.{timestamp}.{body}"
// keyed by a shared secret, carried base64-encoded in the svix-signature
// header after a version tag.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// secretPrefix marks secrets whose remainder is base64-encoded raw key bytes.
// Secrets without the prefix are used verbatim.
const secretPrefix = "whsec_"

// Headers carries the three svix headers attached to a webhook delivery.
type Headers struct {
	ID        string
	Timestamp string
	Signature string
}

// Verify reports whether the delivery signature matches the HMAC recomputed
// from the raw body and headers. It fails closed: missing or malformed
// headers, an undecodable secret, or any mismatch all return false. The
// digest comparison is constant-time.
func Verify(rawBody []byte, hdr Headers, secret string) bool {
	if hdr.ID == "" || hdr.Timestamp == "" || hdr.Signature == "" {
		return false
	}
	key, ok := keyBytes(secret)
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(hdr.ID))
	mac.Write([]byte("."))
	mac.Write([]byte(hdr.Timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	// Header format is "v1,<base64>"; everything after the first comma is
	// the candidate digest.
	idx := strings.Index(hdr.Signature, ",")
	if idx < 0 {
		return false
	}
	candidate := hdr.Signature[idx+1:]

	return hmac.Equal([]byte(expected), []byte(candidate))
}

// keyBytes derives the HMAC key from the shared secret. A whsec_-prefixed
// secret holds base64-encoded key bytes after the prefix; any other format is
// used as-is.
func keyBytes(secret string) ([]byte, bool) {
	if strings.HasPrefix(secret, secretPrefix) {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
		if err != nil {
			return nil, false
		}
		return decoded, true
	}
	return []byte(secret), true
}
