// Package auth issues and validates the bearer tokens agents present
// when connecting to the push fabric or calling the control API.
// Grounded on FluxForge control_plane/auth/jwt.go's hand-rolled
// HMAC-SHA256 token (no JWT library anywhere in the pack), adapted
// from tenant/role claims to agent/org claims.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/apexorch/apex/apexerr"
)

// Claims identifies the agent presenting a token and the org it
// belongs to, used to scope room visibility and API access.
type Claims struct {
	AgentID   string `json:"agent_id"`
	OrgID     string `json:"org_id"`
	Role      string `json:"role"`
	Issuer    string `json:"iss"`
	Audience  string `json:"aud"`
	ExpiresAt int64  `json:"exp"`
	IssuedAt  int64  `json:"iat"`
}

const (
	issuer       = "apexorch"
	audience     = "apexorch-api"
	defaultTTL   = 24 * time.Hour
	minSecretLen = 32
)

var secret []byte

func init() {
	v := os.Getenv("APEX_JWT_SECRET")
	switch {
	case len(v) >= minSecretLen:
		secret = []byte(v)
	case v == "":
		secret = []byte("insecure-default-secret-do-not-use-in-production!!")
	default:
		panic("APEX_JWT_SECRET must be at least 32 characters long")
	}
}

// IssueToken signs a token binding agentID to orgID with the given
// role, valid for 24 hours.
func IssueToken(agentID, orgID, role string) (string, error) {
	now := time.Now().Unix()
	claims := Claims{
		AgentID:   agentID,
		OrgID:     orgID,
		Role:      role,
		Issuer:    issuer,
		Audience:  audience,
		ExpiresAt: now + int64(defaultTTL.Seconds()),
		IssuedAt:  now,
	}
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	headerJSON, _ := json.Marshal(header)
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", apexerr.Wrap(apexerr.Serialization, "marshal claims", err)
	}

	signingInput := b64(headerJSON) + "." + b64(claimsJSON)
	return signingInput + "." + sign(signingInput), nil
}

// ValidateToken verifies signature and expiry and returns the embedded
// claims.
func ValidateToken(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, apexerr.New(apexerr.SessionInvalid, "malformed token")
	}

	signingInput := parts[0] + "." + parts[1]
	if sign(signingInput) != parts[2] {
		return nil, apexerr.New(apexerr.SessionInvalid, "signature mismatch")
	}

	raw, err := b64Decode(parts[1])
	if err != nil {
		return nil, apexerr.Wrap(apexerr.SessionInvalid, "decode claims", err)
	}
	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, apexerr.Wrap(apexerr.Serialization, "unmarshal claims", err)
	}

	if time.Now().Unix() > claims.ExpiresAt {
		return nil, apexerr.New(apexerr.SessionInvalid, "token expired")
	}
	if claims.Issuer != issuer || claims.Audience != audience {
		return nil, apexerr.New(apexerr.SessionInvalid, "unrecognized issuer or audience")
	}
	return &claims, nil
}

func sign(message string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(message))
	return b64(h.Sum(nil))
}

func b64(data []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(data), "=")
}

func b64Decode(s string) ([]byte, error) {
	if pad := len(s) % 4; pad > 0 {
		s += strings.Repeat("=", 4-pad)
	}
	return base64.URLEncoding.DecodeString(s)
}
