package handlers

import (
	"errors"
	"net/http"
	"time"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/repository"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Authenticate attaches the identity of a valid bearer token to the request.
// Requests without a token pass through anonymously; an invalid token is
// rejected.
func Authenticate(v *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := auth.BearerToken(header)
			if !ok {
				writeError(w, http.StatusUnauthorized, "not_authenticated", "malformed authorization header", nil)
				return
			}
			id, err := v.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "not_authenticated", "invalid or expired session", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "not_authenticated", "sign in required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin reads the role from the caller's profile on every request, so
// a revoked admin loses access immediately.
func RequireAdmin(profiles repository.ProfileRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "not_authenticated", "sign in required", nil)
				return
			}

			profile, err := profiles.GetByID(r.Context(), id.UserID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				writeError(w, http.StatusInternalServerError, "internal_error", "failed to load profile", nil)
				return
			}
			if profile == nil || !profile.IsAdmin() {
				writeError(w, http.StatusForbidden, "forbidden", "admin access required", nil)
				return
			}

			id.Role = models.RoleAdmin
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}

			switch {
			case ww.Status() >= 500:
				logger.Error("request", fields...)
			case ww.Status() >= 400:
				logger.Warn("request", fields...)
			default:
				logger.Info("request", fields...)
			}
		})
	}
}

func identityFrom(r *http.Request) models.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}
