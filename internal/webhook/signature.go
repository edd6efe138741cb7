package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event"

	signaturePrefix = "sha256="
)

// Sign returns the header value "sha256=<hex hmac>" for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against body in constant time. The
// "sha256=" prefix is optional. An empty secret never verifies.
func VerifySignature(body []byte, signature, secret string) bool {
	if secret == "" {
		return false
	}

	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), signaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
