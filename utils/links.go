package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Unsubscribe tokens are "payload.signature" where payload is
// base64url("tenantID:category") and signature is hex(HMAC-SHA256(payload)).
// The route that processes clicks verifies by recomputing the HMAC, so
// a token cannot be forged without the server-held secret.

var ErrInvalidToken = errors.New("invalid unsubscribe token")

// GenerateUnsubscribeToken signs (tenantID, category) with the secret
func GenerateUnsubscribeToken(secret string, tenantID uint, category string) string {
	payload := base64.URLEncoding.EncodeToString([]byte(fmt.Sprintf("%d:%s", tenantID, category)))
	return payload + "." + signPayload(secret, payload)
}

// GenerateUnsubscribeURL builds the full link embedded in outbound messages
func GenerateUnsubscribeURL(baseURL, secret string, tenantID uint, category string) string {
	return fmt.Sprintf("%s/unsubscribe?token=%s", baseURL, GenerateUnsubscribeToken(secret, tenantID, category))
}

// VerifyUnsubscribeToken recomputes the HMAC and decodes the payload
func VerifyUnsubscribeToken(secret, token string) (uint, string, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return 0, "", ErrInvalidToken
	}

	payload, sig := parts[0], parts[1]
	if !hmac.Equal([]byte(sig), []byte(signPayload(secret, payload))) {
		return 0, "", ErrInvalidToken
	}

	decoded, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return 0, "", ErrInvalidToken
	}

	fields := strings.SplitN(string(decoded), ":", 2)
	if len(fields) != 2 {
		return 0, "", ErrInvalidToken
	}

	tenantID, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil || tenantID == 0 {
		return 0, "", ErrInvalidToken
	}

	return uint(tenantID), fields[1], nil
}

func signPayload(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
