package httpapi

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/fitbhag/ticketing/backend/internal/middleware"
	"github.com/fitbhag/ticketing/backend/internal/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Register handles POST /api/auth/register.
//
// Flow:
//  1. Decode and validate the request body.
//  2. Hash the password with bcrypt (slow by design — makes brute force hard).
//  3. Insert the new user row, keyed by phone per the user model's one
//     account per phone number rule.
//  4. Issue a bearer token (C1) and return it with the user object.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decode(r, &req); err != nil {
		respondError(w, apperr.Validation("InvalidJSON", "", "request body is not valid JSON"))
		return
	}

	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	if req.Phone == "" || req.Password == "" || req.Name == "" {
		respondError(w, apperr.Validation("MissingFields", "", "name, phone, and password are required"))
		return
	}
	if len(req.Password) < 8 {
		respondError(w, apperr.Validation("PasswordTooShort", "password", "password must be at least 8 characters"))
		return
	}

	// bcrypt.DefaultCost (10) means ~100 ms per hash on modern hardware,
	// intentionally slow to resist offline brute force if the DB leaks. The
	// plain-text password is never stored.
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, apperr.System("PasswordHashFailed", err))
		return
	}

	now := time.Now().UTC()
	user := models.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Phone:        req.Phone,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = s.DB.ExecContext(r.Context(),
		`INSERT INTO users (id, name, phone, email, password_hash, role, is_private, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Phone, user.Email, user.PasswordHash, user.Role, false, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			respondError(w, apperr.New(apperr.CategoryValidation, "PhoneTaken", "phone already registered", "an account with this phone number already exists").WithField("phone"))
			return
		}
		respondError(w, apperr.Database("UserInsertFailed", err))
		return
	}

	token, err := s.Identity.Issue(user.ID, user.Role)
	if err != nil {
		respondError(w, apperr.System("TokenIssueFailed", err))
		return
	}

	respond(w, http.StatusCreated, models.LoginResponse{Token: token, User: user})
}

// Login handles POST /api/auth/login.
//
// LEARNING NOTE — timing attacks. bcrypt.CompareHashAndPassword always runs,
// even for an unknown phone number, against a fixed dummy hash. Skipping the
// compare when the lookup misses would let an attacker distinguish
// registered phone numbers from unregistered ones by response time.
var dummyHashForTimingSafety, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decode(r, &req); err != nil {
		respondError(w, apperr.Validation("InvalidJSON", "", "request body is not valid JSON"))
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)

	var user models.User
	err := s.DB.QueryRowContext(r.Context(),
		`SELECT id, name, phone, email, password_hash, role, is_private, bio, picture_url, strava_link, instagram_id, created_at, updated_at
		 FROM users WHERE phone = ?`, req.Phone,
	).Scan(&user.ID, &user.Name, &user.Phone, &user.Email, &user.PasswordHash, &user.Role, &user.IsPrivate,
		&user.Bio, &user.PictureURL, &user.StravaLink, &user.InstagramID, &user.CreatedAt, &user.UpdatedAt)

	hash := dummyHashForTimingSafety
	if err == nil {
		hash = []byte(user.PasswordHash)
	} else if !errors.Is(err, sql.ErrNoRows) {
		respondError(w, apperr.Database("UserLookupFailed", err))
		return
	}

	if compareErr := bcrypt.CompareHashAndPassword(hash, []byte(req.Password)); compareErr != nil || errors.Is(err, sql.ErrNoRows) {
		respondError(w, apperr.New(apperr.CategoryAuthentication, "InvalidCredentials", "phone or password incorrect", "invalid phone or password"))
		return
	}

	token, err := s.Identity.Issue(user.ID, user.Role)
	if err != nil {
		respondError(w, apperr.System("TokenIssueFailed", err))
		return
	}

	user.PasswordHash = ""
	respond(w, http.StatusOK, models.LoginResponse{Token: token, User: user})
}

// Logout revokes the caller's bearer token (C1), so a stolen-but-still-live
// token can be killed without waiting out its TTL.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	tok := strings.TrimPrefix(header, "Bearer ")
	if tok == "" {
		respondError(w, apperr.New(apperr.CategoryAuthentication, "Unauthenticated", "missing token", "not authenticated"))
		return
	}
	if err := s.Identity.Revoke(r.Context(), tok); err != nil {
		respondError(w, apperr.System("RevokeFailed", err))
		return
	}
	respond(w, http.StatusNoContent, nil)
}

// Me returns the authenticated caller's own profile, including fields a
// stranger's view of this profile would hide.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var user models.User
	err := s.DB.QueryRowContext(r.Context(),
		`SELECT id, name, phone, email, role, is_private, bio, picture_url, strava_link, instagram_id, created_at, updated_at
		 FROM users WHERE id = ?`, userID,
	).Scan(&user.ID, &user.Name, &user.Phone, &user.Email, &user.Role, &user.IsPrivate,
		&user.Bio, &user.PictureURL, &user.StravaLink, &user.InstagramID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, apperr.NotFound("UserNotFound", "user not found"))
			return
		}
		respondError(w, apperr.Database("UserLookupFailed", err))
		return
	}

	respond(w, http.StatusOK, user)
}
