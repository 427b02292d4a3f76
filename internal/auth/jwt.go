package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers malformed, mis-signed, and expired tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the dashboard session token payload.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 session tokens: a
// short-lived access token plus a long-lived refresh token signed
// with a separate secret.
type TokenService struct {
	secret        []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenService builds the token service. refreshSecret may equal
// secret; keeping them distinct lets refresh tokens be rotated alone.
func NewTokenService(secret, refreshSecret, issuer string) *TokenService {
	return &TokenService{
		secret:        []byte(secret),
		refreshSecret: []byte(refreshSecret),
		issuer:        issuer,
		accessTTL:     15 * time.Minute,
		refreshTTL:    7 * 24 * time.Hour,
	}
}

// IssueTokens creates an access and a refresh token for the user.
func (s *TokenService) IssueTokens(userID, email string) (accessToken, refreshToken string, err error) {
	accessToken, err = s.sign(userID, email, s.secret, s.accessTTL)
	if err != nil {
		return "", "", err
	}
	refreshToken, err = s.sign(userID, email, s.refreshSecret, s.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (s *TokenService) sign(userID, email string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   userID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateAccess parses and verifies an access token.
func (s *TokenService) ValidateAccess(tokenString string) (*Claims, error) {
	return s.validate(tokenString, s.secret)
}

// ValidateRefresh parses and verifies a refresh token.
func (s *TokenService) ValidateRefresh(tokenString string) (*Claims, error) {
	return s.validate(tokenString, s.refreshSecret)
}

func (s *TokenService) validate(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (s *TokenService) Refresh(refreshToken string) (string, error) {
	claims, err := s.ValidateRefresh(refreshToken)
	if err != nil {
		return "", err
	}
	return s.sign(claims.UserID, claims.Email, s.secret, s.accessTTL)
}

// JWTProvider authenticates Authorization: Bearer session tokens, and
// falls back to the `token` query parameter for websocket upgrades.
type JWTProvider struct {
	tokens *TokenService
}

// NewJWTProvider wraps a token service as a chain provider.
func NewJWTProvider(tokens *TokenService) *JWTProvider {
	return &JWTProvider{tokens: tokens}
}

func (p *JWTProvider) Name() string  { return "jwt" }
func (p *JWTProvider) Enabled() bool { return len(p.tokens.secret) > 0 }

func (p *JWTProvider) Authenticate(_ context.Context, r *http.Request) (*Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		return nil, nil
	}
	claims, err := p.tokens.ValidateAccess(raw)
	if err != nil {
		return nil, err
	}
	return &Identity{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Provider:  p.Name(),
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
