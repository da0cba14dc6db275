// goban/handlers/middleware.go
package handlers

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"goban/models"
	"goban/utils"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	UserCookieKey ContextKey = "userCookieID"
	CSRFTokenKey  ContextKey = "csrfToken"
	AuthKey       ContextKey = "authInfo"
)

// CookieMiddleware ensures every user has a persistent unique identifier
// cookie. The hash of this id ties posters to their own posts for
// self-deletion.
func CookieMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("goban_id")
		var userID string
		if err != nil || cookie.Value == "" {
			userID = uuid.New().String()
			http.SetCookie(w, &http.Cookie{
				Name:     "goban_id",
				Value:    userID,
				Path:     "/",
				Expires:  utils.Now().Add(365 * 24 * time.Hour),
				HttpOnly: true,
				Secure:   r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
		} else {
			userID = cookie.Value
		}

		ctx := context.WithValue(r.Context(), UserCookieKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CSRFMiddleware protects state-changing requests with a double-submit
// cookie token.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		csrfCookie, err := r.Cookie("csrf_token")
		var csrfToken string

		if err != nil || csrfCookie.Value == "" {
			csrfToken = uuid.New().String()
			http.SetCookie(w, &http.Cookie{
				Name:     "csrf_token",
				Value:    csrfToken,
				Path:     "/",
				HttpOnly: true,
				Secure:   r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
		} else {
			csrfToken = csrfCookie.Value
		}

		if r.Method == http.MethodPost {
			tokenFromForm := r.FormValue("csrf_token")
			if tokenFromForm == "" {
				tokenFromForm = r.Header.Get("X-CSRF-Token")
			}
			if subtle.ConstantTimeCompare([]byte(tokenFromForm), []byte(csrfToken)) != 1 {
				http.Error(w, "Invalid CSRF token", http.StatusForbidden)
				return
			}
		}

		ctx := context.WithValue(r.Context(), CSRFTokenKey, csrfToken)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware resolves the caller's moderation identity from the
// X-Mod-Key header, compared against the configured bcrypt hashes. Every
// request gets an AuthInfo in context; most carry no privileges.
func AuthMiddleware(app App) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := &models.AuthInfo{}
			if key := r.Header.Get("X-Mod-Key"); key != "" {
				if h := app.AdminKeyHash(); h != "" && bcrypt.CompareHashAndPassword([]byte(h), []byte(key)) == nil {
					auth.IsAdmin = true
					auth.IsModerator = true
					auth.AccountID = "admin"
				} else if h := app.ModKeyHash(); h != "" && bcrypt.CompareHashAndPassword([]byte(h), []byte(key)) == nil {
					auth.IsModerator = true
					auth.AccountID = "moderator"
				}
			}
			ctx := context.WithValue(r.Context(), AuthKey, auth)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authFrom pulls the AuthInfo placed in context by AuthMiddleware.
func authFrom(r *http.Request) *models.AuthInfo {
	if auth, ok := r.Context().Value(AuthKey).(*models.AuthInfo); ok {
		return auth
	}
	return &models.AuthInfo{}
}

// RequireModerator rejects requests without moderator privileges before
// they reach a handler.
func RequireModerator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authFrom(r).IsModerator {
			http.Error(w, "Forbidden: moderation access requires a valid key", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewStructuredLogger logs each request through slog with chi's request id.
func NewStructuredLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := utils.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("Request handled",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
