package marketplace

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"hash"
	"strings"

	"go.uber.org/zap"
)

// SignatureHeader is the request header carrying the webhook signature
const SignatureHeader = "X-Signature"

var signatureAlgorithms = map[string]func() hash.Hash{
	"sha256": sha256.New,
	"sha1":   sha1.New,
	"sha512": sha512.New,
}

// WebhookVerifier checks the HMAC signature of inbound webhooks.
// The signature header has the form "<algorithm>=<hex digest>" and is computed
// over the exact raw request body.
type WebhookVerifier struct {
	secret   []byte
	insecure bool
	logger   *zap.Logger
}

// NewWebhookVerifier creates a verifier. With an empty secret every webhook is rejected
// unless insecure is true, in which case every webhook is accepted unverified.
func NewWebhookVerifier(secret string, insecure bool, logger *zap.Logger) *WebhookVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookVerifier{
		secret:   []byte(secret),
		insecure: insecure,
		logger:   logger,
	}
}

// HasSecret reports whether signatures are actually checked
func (v *WebhookVerifier) HasSecret() bool {
	return len(v.secret) > 0
}

// Verify reports whether rawBody carries a valid signature
func (v *WebhookVerifier) Verify(rawBody []byte, signatureHeader string) bool {
	if !v.HasSecret() {
		if v.insecure {
			v.logger.Warn("Webhook accepted without signature verification: no webhook secret configured")
			return true
		}
		v.logger.Warn("Webhook rejected: no webhook secret configured")
		return false
	}

	algorithm, digest, ok := strings.Cut(strings.TrimSpace(signatureHeader), "=")
	if !ok {
		return false
	}
	newHash, ok := signatureAlgorithms[strings.ToLower(strings.TrimSpace(algorithm))]
	if !ok {
		return false
	}
	given, err := hex.DecodeString(strings.TrimSpace(digest))
	if err != nil {
		return false
	}

	mac := hmac.New(newHash, v.secret)
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	if len(given) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare(given, expected) == 1
}

// Sign computes the signature header value for body with the given algorithm.
// It is used by tests and by tooling that replays webhooks.
func Sign(algorithm, secret string, body []byte) string {
	newHash, ok := signatureAlgorithms[algorithm]
	if !ok {
		return ""
	}
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	return algorithm + "=" + hex.EncodeToString(mac.Sum(nil))
}
