package auth

import (
	"encoding/json"
	"testing"
	"time"
)

func TestIssueAndValidateRoundTrip(t *testing.T) {
	token, err := IssueToken("agent-1", "org-1", "operator")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.AgentID != "agent-1" || claims.OrgID != "org-1" || claims.Role != "operator" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateTokenRejectsTamperedSignature(t *testing.T) {
	token, _ := IssueToken("agent-1", "org-1", "operator")
	tampered := token[:len(token)-1] + "x"
	if _, err := ValidateToken(tampered); err == nil {
		t.Fatalf("expected tampered token to be rejected")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	claims := Claims{
		AgentID: "agent-1", OrgID: "org-1", Role: "operator",
		Issuer: issuer, Audience: audience,
		IssuedAt: time.Now().Add(-2 * time.Hour).Unix(),
		ExpiresAt: time.Now().Add(-time.Hour).Unix(),
	}
	headerJSON := []byte(`{"alg":"HS256","typ":"JWT"}`)
	claimsJSON, _ := json.Marshal(claims)
	signingInput := b64(headerJSON) + "." + b64(claimsJSON)
	token := signingInput + "." + sign(signingInput)

	if _, err := ValidateToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestValidateTokenRejectsMalformedFormat(t *testing.T) {
	if _, err := ValidateToken("not-a-valid-token"); err == nil {
		t.Fatalf("expected malformed token to be rejected")
	}
}
