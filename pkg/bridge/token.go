package bridge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// tokenLength is how many hex characters of the HMAC survive truncation.
const tokenLength = 32

// Token derives the connection token for an agent id from the shared
// bridge secret: hex HMAC-SHA256 truncated to 32 characters.
func Token(secret, agentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(agentID))
	sum := hex.EncodeToString(mac.Sum(nil))
	return sum[:tokenLength]
}

// TokenValidator checks auth tokens presented on connect.
type TokenValidator struct {
	secret    string
	devBypass bool
}

// NewTokenValidator creates a validator. With devBypass set every token is
// accepted; otherwise a secret must be configured.
func NewTokenValidator(secret string, devBypass bool) *TokenValidator {
	return &TokenValidator{secret: secret, devBypass: devBypass}
}

// Validate reports whether token authenticates agentID.
func (v *TokenValidator) Validate(agentID, token string) bool {
	if v.devBypass {
		return true
	}
	if v.secret == "" {
		return false
	}
	return hmac.Equal([]byte(Token(v.secret, agentID)), []byte(token))
}
