package reactor

import (
	"testing"
	"time"
)

func TestIssueAndVerifyToken(t *testing.T) {
	a := NewAuthenticator([]byte("cluster-shared-secret"))
	tok, err := a.IssueToken("node-7", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	nodeID, err := a.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if nodeID != "node-7" {
		t.Errorf("nodeID = %q, want node-7", nodeID)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	a := NewAuthenticator([]byte("cluster-shared-secret"))
	tok, err := a.IssueToken("node-7", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := a.Verify(tok); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewAuthenticator([]byte("secret-a"))
	verifier := NewAuthenticator([]byte("secret-b"))

	tok, err := issuer.IssueToken("node-1", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := verifier.Verify(tok); err == nil {
		t.Error("expected token signed with a different secret to be rejected")
	}
}
