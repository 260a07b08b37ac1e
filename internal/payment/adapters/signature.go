package adapters

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	paymentdomain "github.com/rmateo1203/AdminiRed-sub000/internal/payment/domain"
)

// ParseSignatureHeader splits a "k1=v1,k2=v2" signature header into its parts.
// Unparseable segments are skipped rather than failing the whole header.
func ParseSignatureHeader(value string) map[string]string {
	segments := strings.Split(value, ",")
	parts := make(map[string]string, len(segments))
	for _, segment := range segments {
		key, val, ok := strings.Cut(strings.TrimSpace(segment), "=")
		if !ok {
			continue
		}
		parts[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	return parts
}

// SignHMAC computes the hex HMAC-SHA256 of message under secret.
func SignHMAC(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks a hex-encoded HMAC-SHA256 signature in constant time.
// A missing secret always fails; unsigned webhooks are never trusted.
func VerifyHMAC(secret, message, signatureHex string) error {
	if secret == "" || signatureHex == "" {
		return paymentdomain.ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(strings.TrimSpace(signatureHex))
	if err != nil || !hmac.Equal(expected, provided) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

// FormatAmount renders integer cents as a two-decimal string for providers
// that take decimal amounts on the wire.
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
