package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
)

// OTPTTL is how long an issued code stays valid.
const OTPTTL = 10 * time.Minute

// ErrInvalidOTP covers unknown, mismatched, and expired codes.
var ErrInvalidOTP = errors.New("invalid or expired code")

// OTPService issues and verifies one-time codes for email
// verification and password resets. One live code per
// (user, purpose); issuing again replaces it, verifying consumes it.
type OTPService struct {
	st store.Store
}

// NewOTPService builds the service on the shared store.
func NewOTPService(st store.Store) *OTPService {
	return &OTPService{st: st}
}

// Issue creates a fresh 6-digit code for the user and purpose.
// Delivery (email) is the caller's concern.
func (s *OTPService) Issue(ctx context.Context, userID string, purpose models.OTPPurpose) (*models.OTPCode, error) {
	code, err := randomCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	otp := &models.OTPCode{
		UserID:    userID,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: time.Now().UTC().Add(OTPTTL),
	}
	if err := s.st.UpsertOTP(ctx, otp); err != nil {
		return nil, fmt.Errorf("store code: %w", err)
	}
	return otp, nil
}

// Verify checks and consumes the user's code. A wrong code leaves the
// stored one intact; a correct or expired one is deleted.
func (s *OTPService) Verify(ctx context.Context, userID string, purpose models.OTPPurpose, code string) error {
	otp, err := s.st.GetOTP(ctx, userID, purpose)
	if err != nil {
		if store.IsNotFound(err) {
			return ErrInvalidOTP
		}
		return fmt.Errorf("load code: %w", err)
	}
	if time.Now().UTC().After(otp.ExpiresAt) {
		_ = s.st.DeleteOTP(ctx, userID, purpose)
		return ErrInvalidOTP
	}
	if otp.Code != code {
		return ErrInvalidOTP
	}
	if err := s.st.DeleteOTP(ctx, userID, purpose); err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	return nil
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
