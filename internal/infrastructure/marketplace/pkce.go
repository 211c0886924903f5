package marketplace

import (
	"crypto/sha256"
	"encoding/base64"

	"github.com/sellerlink/backend/internal/domain/integration"
)

// codeVerifierBytes yields an 86 character verifier, inside the 43..128 range RFC 7636 allows.
const codeVerifierBytes = 64

// PKCEChallengeMethod is the only challenge method sent to the authorization endpoint
const PKCEChallengeMethod = "S256"

// NewCodeVerifier returns a fresh PKCE code verifier
func NewCodeVerifier() (string, error) {
	return integration.RandomToken(codeVerifierBytes)
}

// CodeChallenge derives the S256 challenge: base64url(sha256(verifier)) without padding
func CodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
