package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agentdeck/agentdeck/internal/api/middleware"
	"github.com/agentdeck/agentdeck/internal/auth"
	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
)

type signupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type otpRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	User         *models.User `json:"user"`
}

// Signup creates an account and issues a verification code. The code
// is logged rather than emailed; mail delivery is an integration the
// deployment wires up separately.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		respondError(w, http.StatusBadRequest, "email is required")
		return
	}

	if _, err := h.Store.GetUserByEmail(r.Context(), req.Email); err == nil {
		respondError(w, http.StatusConflict, "an account with this email already exists")
		return
	} else if !store.IsNotFound(err) {
		respondStoreError(w, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.Store.CreateUser(r.Context(), user); err != nil {
		respondStoreError(w, err)
		return
	}

	otp, err := h.OTP.Issue(r.Context(), user.ID, models.OTPVerifyEmail)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	log.Info().Str("user_id", user.ID).Str("code", otp.Code).Msg("verification code issued")

	respondData(w, http.StatusCreated, user)
}

// VerifyOTP confirms the signup code and marks the account verified.
func (h *Handlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.Store.GetUserByEmail(r.Context(), strings.ToLower(req.Email))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if err := h.OTP.Verify(r.Context(), user.ID, models.OTPVerifyEmail, req.Code); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user.Verified = true
	if err := h.Store.UpdateUser(r.Context(), user); err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusOK, user)
}

// ResendOTP issues a fresh verification code, replacing the old one.
func (h *Handlers) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.Store.GetUserByEmail(r.Context(), strings.ToLower(req.Email))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	otp, err := h.OTP.Issue(r.Context(), user.ID, models.OTPVerifyEmail)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	log.Info().Str("user_id", user.ID).Str("code", otp.Code).Msg("verification code reissued")
	respondData(w, http.StatusOK, map[string]string{"status": "sent"})
}

// Signin checks credentials and returns access and refresh tokens.
func (h *Handlers) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.Store.GetUserByEmail(r.Context(), strings.ToLower(req.Email))
	if err != nil {
		if store.IsNotFound(err) {
			respondError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		respondStoreError(w, err)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		respondError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if !user.Verified {
		respondError(w, http.StatusForbidden, "email not verified")
		return
	}

	access, refresh, err := h.Tokens.IssueTokens(user.ID, user.Email)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondData(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user,
	})
}

// Signout tears down the caller's panel sessions. Tokens are
// stateless; the dashboard drops them client-side.
func (h *Handlers) Signout(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// ForgotPassword issues a reset code for the account, if one exists.
// The response is identical either way.
func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.Store.GetUserByEmail(r.Context(), strings.ToLower(req.Email))
	if err == nil {
		if otp, issueErr := h.OTP.Issue(r.Context(), user.ID, models.OTPResetPassword); issueErr == nil {
			log.Info().Str("user_id", user.ID).Str("code", otp.Code).Msg("password reset code issued")
		}
	} else if !store.IsNotFound(err) {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "sent"})
}

// ResetPassword verifies the reset code and replaces the password.
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.Store.GetUserByEmail(r.Context(), strings.ToLower(req.Email))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if err := h.OTP.Verify(r.Context(), user.ID, models.OTPResetPassword, req.Code); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	user.PasswordHash = hash
	if err := h.Store.UpdateUser(r.Context(), user); err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "password_reset"})
}

// GetUser returns the authenticated user's profile.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.GetUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusOK, user)
}
