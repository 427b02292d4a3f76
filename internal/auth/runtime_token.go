package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RuntimeProvider validates HMAC-signed service tokens presented by
// the agent runtime when it calls back into the control plane.
//
// Token format: base64url(JSON payload) + "." + base64url(HMAC-SHA256)
// Payload: {"sub": "runtime", "exp": 1234567890}
type RuntimeProvider struct {
	secret  []byte
	enabled bool
}

type runtimeTokenPayload struct {
	Subject string `json:"sub"`
	Exp     int64  `json:"exp"`
}

// NewRuntimeProvider builds the provider; an empty secret disables it.
func NewRuntimeProvider(secret string) *RuntimeProvider {
	if secret == "" {
		return &RuntimeProvider{enabled: false}
	}
	return &RuntimeProvider{secret: []byte(secret), enabled: true}
}

func (p *RuntimeProvider) Name() string  { return "runtime" }
func (p *RuntimeProvider) Enabled() bool { return p.enabled }

// Authenticate validates the X-Service-Token header. Requests without
// the header pass to the next provider.
func (p *RuntimeProvider) Authenticate(_ context.Context, r *http.Request) (*Identity, error) {
	token := r.Header.Get("X-Service-Token")
	if token == "" {
		return nil, nil
	}

	payload, err := p.validateToken(token)
	if err != nil {
		return nil, fmt.Errorf("invalid service token: %w", err)
	}
	return &Identity{
		UserID:    "svc:" + payload.Subject,
		Provider:  p.Name(),
		ExpiresAt: time.Unix(payload.Exp, 0),
	}, nil
}

func (p *RuntimeProvider) validateToken(token string) (*runtimeTokenPayload, error) {
	dot := strings.LastIndexByte(token, '.')
	if dot < 0 {
		return nil, fmt.Errorf("malformed token")
	}
	payloadB64, sigB64 := token[:dot], token[dot+1:]

	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(payloadB64))
	expected := mac.Sum(nil)

	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if !hmac.Equal(sig, expected) {
		return nil, fmt.Errorf("signature mismatch")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, fmt.Errorf("invalid payload encoding: %w", err)
	}
	var payload runtimeTokenPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}

	if payload.Exp > 0 && time.Now().Unix() > payload.Exp {
		return nil, fmt.Errorf("token expired")
	}
	if payload.Subject == "" {
		return nil, fmt.Errorf("missing subject")
	}
	return &payload, nil
}

// SignRuntimeToken creates a signed service token, for the runtime's
// configuration and for tests.
func SignRuntimeToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	payload := runtimeTokenPayload{
		Subject: subject,
		Exp:     time.Now().Add(ttl).Unix(),
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadBytes)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payloadB64))
	return payloadB64 + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}
