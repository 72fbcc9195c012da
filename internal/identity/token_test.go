package identity

import (
	"context"
	"testing"
	"time"

	"github.com/fitbhag/ticketing/backend/internal/cache"
	"github.com/fitbhag/ticketing/backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	c, err := cache.NewMemory()
	if err != nil {
		t.Fatalf("cache.NewMemory: %v", err)
	}
	return New("super-secret-test-key", time.Hour, c)
}

func TestIssueAndVerify(t *testing.T) {
	svc := newTestService(t)
	tok, err := svc.Issue("user-123", models.RoleUser)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	caller, err := svc.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if caller.UserID != "user-123" || caller.Role != models.RoleUser {
		t.Errorf("got %+v", caller)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	svc := newTestService(t)
	tok, _ := svc.Issue("user-abc", models.RoleOrganizer)

	other := New("different-secret", time.Hour, nil)
	if _, err := other.Verify(context.Background(), tok); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestVerify_Malformed(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Verify(context.Background(), "not.a.token"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestVerify_Expired(t *testing.T) {
	svc := New("super-secret-test-key", -time.Minute, nil)
	tok, err := svc.Issue("user-1", models.RoleUser)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Verify(context.Background(), tok); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestVerify_RejectsWrongTokenType(t *testing.T) {
	svc := newTestService(t)
	tok, err := svc.Issue("user-1", models.RoleUser)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tok, claims); err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	claims.Type = "refresh"
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := forged.SignedString(svc.secret)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := svc.Verify(context.Background(), signed); err == nil {
		t.Fatal("expected error for a non-access token type")
	}
}

func TestRevoke(t *testing.T) {
	svc := newTestService(t)
	tok, _ := svc.Issue("user-1", models.RoleUser)

	if _, err := svc.Verify(context.Background(), tok); err != nil {
		t.Fatalf("Verify before revoke: %v", err)
	}
	if err := svc.Revoke(context.Background(), tok); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := svc.Verify(context.Background(), tok); err == nil {
		t.Fatal("expected error after revocation")
	}
}

func TestCallerContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := FromContext(ctx); ok {
		t.Fatal("expected no caller in bare context")
	}
	ctx = WithCaller(ctx, &Caller{UserID: "u1", Role: models.RoleAdmin})
	c, ok := FromContext(ctx)
	if !ok || c.UserID != "u1" {
		t.Fatalf("got %+v, %v", c, ok)
	}
}
