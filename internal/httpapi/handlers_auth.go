package httpapi

import (
	"errors"
	"net/http"

	"github.com/flightclaims/claims-engine/internal/auth"
	"github.com/flightclaims/claims-engine/internal/platform/apierr"
)

// AuthHandlers implements the customer-facing login/refresh/magic-link/
// password-reset flows.
type AuthHandlers struct {
	service *auth.Service
	issuer  *auth.TokenIssuer
}

func NewAuthHandlers(service *auth.Service, issuer *auth.TokenIssuer) *AuthHandlers {
	return &AuthHandlers{service: service, issuer: issuer}
}

type sessionResponse struct {
	AccessToken  string `json:"access_token"`
	AccessExpiry string `json:"access_expiry"`
	RefreshToken string `json:"refresh_token"`
	CustomerID   string `json:"customer_id"`
	Role         string `json:"role"`
}

func toSessionResponse(s auth.Session) sessionResponse {
	return sessionResponse{
		AccessToken:  s.AccessToken,
		AccessExpiry: s.AccessExpiry.Format(timeLayout),
		RefreshToken: s.RefreshToken,
		CustomerID:   s.Customer.ID.String(),
		Role:         string(s.Customer.Role),
	}
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func authErr(err error) *apierr.Error {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apierr.Unauthenticated("invalid email or password")
	case errors.Is(err, auth.ErrAccountLocked):
		return apierr.AccountLocked("")
	case errors.Is(err, auth.ErrTokenExpired):
		return apierr.TokenExpired()
	case errors.Is(err, auth.ErrTokenAlreadyUsed):
		return apierr.InvalidInput("token", "already used or expired")
	default:
		return apierr.Internal("authentication failed", err)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(w, r, authErr(err))
		return
	}
	WriteJSON(w, r, http.StatusOK, toSessionResponse(session))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	session, err := h.service.RefreshSession(r.Context(), req.RefreshToken)
	if err != nil {
		WriteError(w, r, authErr(err))
		return
	}
	WriteJSON(w, r, http.StatusOK, toSessionResponse(session))
}

type emailRequest struct {
	Email string `json:"email"`
}

// RequestMagicLink always responds 202 regardless of whether the email
// matches an account, so the endpoint cannot be used to enumerate
// registered customers.
func (h *AuthHandlers) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if _, err := h.service.RequestMagicLink(r.Context(), req.Email); err != nil {
		WriteError(w, r, apierr.Internal("failed to process request", err))
		return
	}
	WriteJSON(w, r, http.StatusAccepted, map[string]string{"status": "if an account exists, a login link has been sent"})
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (h *AuthHandlers) RedeemMagicLink(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	session, err := h.service.ConsumeMagicLink(r.Context(), req.Token)
	if err != nil {
		WriteError(w, r, authErr(err))
		return
	}
	WriteJSON(w, r, http.StatusOK, toSessionResponse(session))
}

func (h *AuthHandlers) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if _, err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		WriteError(w, r, apierr.Internal("failed to process request", err))
		return
	}
	WriteJSON(w, r, http.StatusAccepted, map[string]string{"status": "if an account exists, a reset link has been sent"})
}

type confirmPasswordResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandlers) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req confirmPasswordResetRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		WriteError(w, r, authErr(err))
		return
	}
	WriteJSON(w, r, http.StatusOK, map[string]string{"status": "password updated"})
}
