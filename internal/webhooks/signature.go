package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifyHMAC reports whether provided is a valid hex HMAC-SHA256 of body
// under the subscription secret. Receivers use it to authenticate the
// X-Signature header on deliveries.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(mac.Sum(nil), want)
}

// SignHMAC produces the hex signature the worker puts in X-Signature.
func SignHMAC(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
