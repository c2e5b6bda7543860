package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the hex-encoded HMAC-SHA256 digest of payload under key.
// The same symmetric key signs outbound redirect-processor requests and
// verifies their inbound confirmation callbacks.
func Sign(payload, key []byte) string {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the expected signature for payload and compares it to the
// supplied hex-encoded value in constant time. Malformed encodings fail closed.
func Verify(payload, key []byte, supplied string) bool {
	decoded, err := hex.DecodeString(supplied)
	if err != nil || len(decoded) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(payload)
	return hmac.Equal(decoded, mac.Sum(nil))
}
