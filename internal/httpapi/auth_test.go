package httpapi

import (
	"net/http"
	"testing"

	"github.com/fitbhag/ticketing/backend/internal/models"
)

func TestRegister_CreatesUserAndReturnsToken(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/auth/register", models.RegisterRequest{
		Name: "Priya", Phone: "+911234567890", Password: "strongpass1",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("got %d, want 201, body=%s", rec.Code, rec.Body.String())
	}
	var resp models.LoginResponse
	decodeBody(t, rec, &resp)
	if resp.Token == "" {
		t.Error("expected a non-empty token")
	}
	if resp.User.PasswordHash != "" {
		t.Error("password hash must never be serialised")
	}
}

func TestRegister_RejectsDuplicatePhone(t *testing.T) {
	h := newHarness(t)
	req := models.RegisterRequest{Name: "A", Phone: "+911111111111", Password: "strongpass1"}

	if rec := h.do(t, "POST", "/api/auth/register", req, ""); rec.Code != http.StatusCreated {
		t.Fatalf("first register: got %d", rec.Code)
	}
	rec := h.do(t, "POST", "/api/auth/register", req, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400 for duplicate phone", rec.Code)
	}
}

func TestLogin_WrongPasswordRejected(t *testing.T) {
	h := newHarness(t)
	req := models.RegisterRequest{Name: "A", Phone: "+912222222222", Password: "strongpass1"}
	h.do(t, "POST", "/api/auth/register", req, "")

	rec := h.do(t, "POST", "/api/auth/login", models.LoginRequest{Phone: req.Phone, Password: "wrong-password"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401", rec.Code)
	}
}

func TestLogin_UnknownPhoneRejected(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, "POST", "/api/auth/login", models.LoginRequest{Phone: "+919999999999", Password: "anything"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401", rec.Code)
	}
}

func TestLogin_CorrectCredentialsSucceed(t *testing.T) {
	h := newHarness(t)
	req := models.RegisterRequest{Name: "A", Phone: "+913333333333", Password: "strongpass1"}
	h.do(t, "POST", "/api/auth/register", req, "")

	rec := h.do(t, "POST", "/api/auth/login", models.LoginRequest{Phone: req.Phone, Password: req.Password}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestMe_RequiresToken(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, "GET", "/api/auth/me", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401", rec.Code)
	}
}

func TestMe_ReturnsOwnProfile(t *testing.T) {
	h := newHarness(t)
	userID, tok := h.createUserAndToken(t, models.RoleUser)

	rec := h.do(t, "GET", "/api/auth/me", nil, tok)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	var user models.User
	decodeBody(t, rec, &user)
	if user.ID != userID {
		t.Errorf("got id %q, want %q", user.ID, userID)
	}
}

func TestLogout_RevokesToken(t *testing.T) {
	h := newHarness(t)
	_, tok := h.createUserAndToken(t, models.RoleUser)

	if rec := h.do(t, "POST", "/api/auth/logout", nil, tok); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: got %d", rec.Code)
	}
	rec := h.do(t, "GET", "/api/auth/me", nil, tok)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected revoked token rejected, got %d", rec.Code)
	}
}
