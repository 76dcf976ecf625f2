package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/repository"

	"go.uber.org/zap"
)

// AuthService is satisfied by *auth.Client.
type AuthService interface {
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignUp(ctx context.Context, email, password, fullName string) (*auth.SignUpResult, error)
	SignOut(ctx context.Context, accessToken string) error
	ResetPassword(ctx context.Context, email, redirectTo string) error
}

type AuthHandler struct {
	auth       AuthService
	profiles   repository.ProfileRepository
	redirectTo string
	logger     *zap.Logger
}

func NewAuthHandler(svc AuthService, profiles repository.ProfileRepository, redirectTo string, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{auth: svc, profiles: profiles, redirectTo: redirectTo, logger: logger}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SignupRequest struct {
	FullName        string `json:"full_name" validate:"required,min=2,max=150"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func writeAuthError(w http.ResponseWriter, err error, fallback string) {
	var authErr *auth.AuthError
	switch {
	case errors.Is(err, auth.ErrUserExists):
		writeError(w, http.StatusConflict, "user_exists", err.Error(), nil)
	case errors.As(err, &authErr) && authErr.Status < 500:
		status := authErr.Status
		if status == http.StatusBadRequest {
			status = http.StatusUnauthorized
		}
		writeError(w, status, "auth_error", authErr.Message, nil)
	default:
		writeError(w, http.StatusBadGateway, "auth_unavailable", fallback, nil)
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if !validateRequest(w, req) {
		return
	}

	session, err := h.auth.SignIn(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		writeAuthError(w, err, "sign in failed")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Signup registers the account and seeds its profile with the full name.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if !validateRequest(w, req) {
		return
	}

	email := strings.TrimSpace(req.Email)
	res, err := h.auth.SignUp(r.Context(), email, req.Password, strings.TrimSpace(req.FullName))
	if err != nil {
		writeAuthError(w, err, "sign up failed")
		return
	}

	profile := models.Profile{
		ID:       res.User.ID,
		Email:    email,
		FullName: strings.TrimSpace(req.FullName),
		Role:     models.RoleCustomer,
	}
	if err := h.profiles.Create(r.Context(), &profile); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		h.logger.Error("failed to seed profile after signup", zap.String("user_id", res.User.ID.String()), zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, res)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, http.StatusUnauthorized, "not_authenticated", "sign in required", nil)
		return
	}

	if err := h.auth.SignOut(r.Context(), token); err != nil {
		writeAuthError(w, err, "sign out failed")
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if !validateRequest(w, req) {
		return
	}

	if err := h.auth.ResetPassword(r.Context(), strings.TrimSpace(req.Email), h.redirectTo); err != nil {
		writeAuthError(w, err, "password reset failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "check your email for the password reset link"})
}
