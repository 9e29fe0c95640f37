package paddle

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// VerifySignature reports whether signature is a valid HMAC-SHA256 hex
// digest of payload under secret. The comparison is constant-time so timing
// differences cannot leak signature bytes; any mismatch, including a length
// mismatch, returns false.
func VerifySignature(payload []byte, signature string, secret []byte) bool {
	if len(secret) == 0 || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	if _, err := mac.Write(payload); err != nil {
		return false
	}
	expected := hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}
