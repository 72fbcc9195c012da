// Package middleware provides the HTTP middleware chain for the ticketing
// API: CORS, and the bearer-token authenticator that populates the
// identity context (component C1 / spec.md §6.2) before any handler runs.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — what is middleware?
// ────────────────────────────────────────────────────────────────────
// In HTTP servers, "middleware" is a function that wraps a handler to
// add behaviour before and/or after it runs. The pattern in Go is:
//
//	func MyMiddleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // do something before
//	        next.ServeHTTP(w, r)  // call the real handler
//	        // do something after
//	    })
//	}
//
// Middleware can be chained: CORS(Authenticate(svc)(handler)) means CORS
// runs first, then Authenticate, then the handler.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/fitbhag/ticketing/backend/internal/identity"
	"github.com/fitbhag/ticketing/backend/internal/models"
)

// Authenticate returns a middleware that reads the "Authorization: Bearer
// <token>" header, verifies it against svc (§4.1), and attaches the
// resulting caller to the request context via identity.WithCaller — the
// single source of truth the core reads from (§6.2). The only handler that
// reads the header itself is httpapi's Logout, which needs the raw token to
// revoke it.
//
// Missing or invalid tokens fail the request with 401 here rather than
// deeper in an operation: §6.2 says an empty identity context should fail
// with Unauthenticated, and rejecting at the edge means no operation ever
// has to special-case an absent caller for a route that requires one.
func Authenticate(svc *identity.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, `{"error":"missing or invalid Authorization header"}`, http.StatusUnauthorized)
				return
			}
			tokenStr := strings.TrimPrefix(header, "Bearer ")

			caller, err := svc.Verify(r.Context(), tokenStr)
			if err != nil {
				http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
				return
			}

			ctx := identity.WithCaller(r.Context(), caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthenticate behaves like Authenticate but lets requests through
// unauthenticated when no bearer token is present — used by routes (e.g.
// profile views) whose behaviour only changes for a logged-in caller
// instead of requiring one.
func OptionalAuthenticate(svc *identity.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}
			tokenStr := strings.TrimPrefix(header, "Bearer ")
			caller, err := svc.Verify(r.Context(), tokenStr)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithCaller(r.Context(), caller)))
		})
	}
}

// RequireRole returns a middleware that only allows requests whose context
// caller role matches one of the given roles. Must run after Authenticate.
//
// Example: auth(RequireRole(models.RoleOrganizer)(handler)) means:
// authenticate first, then only let organizers through.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	allowed := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := identity.FromContext(r.Context())
			if !ok || !allowed[caller.Role] {
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS adds permissive CORS headers so a browser-based client can call the
// API from a different origin.
//
// LEARNING NOTE — what is CORS?
// Browsers enforce the Same-Origin Policy: a page at origin A cannot
// fetch from origin B unless B explicitly allows it via CORS headers.
// "Access-Control-Allow-Origin: *" means any origin is allowed. The
// OPTIONS preflight is a browser pre-check; we must reply 204 so the real
// request is allowed to proceed.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserID retrieves the authenticated caller's user id from the context,
// or "" if Authenticate has not run.
func GetUserID(ctx context.Context) string {
	c, ok := identity.FromContext(ctx)
	if !ok {
		return ""
	}
	return c.UserID
}

// GetRole retrieves the authenticated caller's role from the context.
func GetRole(ctx context.Context) models.Role {
	c, ok := identity.FromContext(ctx)
	if !ok {
		return ""
	}
	return c.Role
}
