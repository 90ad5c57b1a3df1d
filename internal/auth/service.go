// Package auth guards the admin configuration surface with a single
// password-protected identity and short-lived HS256 tokens.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/promo-api/internal/common"
)

// ErrInvalidCredentials is returned when the supplied password does not match.
var ErrInvalidCredentials = &common.AppError{
	Code:       "INVALID_CREDENTIALS",
	Message:    "invalid credentials",
	HTTPStatus: http.StatusUnauthorized,
}

const adminSubject = "admin"

// Config groups Service construction parameters.
type Config struct {
	Secret            string
	AdminPasswordHash string
	TokenTTL          time.Duration
	Issuer            string
	Audience          string
	ClockSkew         time.Duration
}

// Service issues and verifies admin access tokens.
type Service struct {
	secret       []byte
	passwordHash string
	tokenTTL     time.Duration
	issuer       string
	audience     string
	clockSkew    time.Duration
	signer       jwa.SignatureAlgorithm
	validator    TokenValidator
	now          func() time.Time
}

// LoginResult carries a freshly signed admin token.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg Config) (*Service, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if strings.TrimSpace(cfg.AdminPasswordHash) == "" {
		return nil, errors.New("auth: admin password hash is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "promo-api"
	}
	audience := cfg.Audience
	if audience == "" {
		audience = "promo-admin"
	}
	return &Service{
		secret:       []byte(cfg.Secret),
		passwordHash: cfg.AdminPasswordHash,
		tokenTTL:     ttl,
		issuer:       issuer,
		audience:     audience,
		clockSkew:    cfg.ClockSkew,
		signer:       jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: cfg.ClockSkew,
			Algorithm: jwa.HS256,
		},
		now: time.Now,
	}, nil
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Login verifies the admin password and returns a signed token.
func (s *Service) Login(password string) (LoginResult, error) {
	ok, err := argon2id.ComparePasswordAndHash(password, s.passwordHash)
	if err != nil || !ok {
		return LoginResult{}, ErrInvalidCredentials
	}
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	token, err := jwt.NewBuilder().
		Subject(adminSubject).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: build token: %w", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return LoginResult{Token: string(signed), ExpiresAt: expiresAt}, nil
}

// ParseToken verifies a presented token and returns its subject.
func (s *Service) ParseToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", unauthorized(nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return "", unauthorized(err)
	}
	if algorithm != s.validator.Algorithm {
		return "", unauthorized(fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret))
	if err != nil {
		return "", unauthorized(err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return "", unauthorized(err)
	}
	return parsed.Subject(), nil
}

func unauthorized(err error) *common.AppError {
	return common.NewAppError("UNAUTHORIZED", "missing or invalid token", http.StatusUnauthorized, err)
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}
