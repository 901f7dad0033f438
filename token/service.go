package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is the iss claim used when Config.Issuer is empty.
const DefaultIssuer = "dsspoi.confidential"

// TypeAccess is the only token type this service issues and accepts.
const TypeAccess = "access"

// subjectSeparator joins namespace and entity id inside the sub claim.
const subjectSeparator = "-"

var (
	// ErrInvalidSubject is returned by Issue when namespace or entity id
	// cannot be encoded unambiguously.
	ErrInvalidSubject = errors.New("token: invalid subject")
	// ErrTokenExpired is returned by Verify once the clock is past the exp claim.
	ErrTokenExpired = errors.New("token: expired")
	// ErrTokenMalformed covers bad signatures, unparseable payloads and
	// claims that do not describe an access token from this issuer.
	ErrTokenMalformed = errors.New("token: malformed")
	// ErrSubjectMismatch is returned by Verify when the token belongs to a
	// different namespace than expected.
	ErrSubjectMismatch = errors.New("token: subject namespace mismatch")
)

// Config configures a Service.
type Config struct {
	Secret   string        `koanf:"secret"`
	Validity time.Duration `koanf:"validity"`
	Issuer   string        `koanf:"issuer"`
}

// DefaultConfig returns a Config without a secret; callers must set one.
func DefaultConfig() Config {
	return Config{
		Validity: 30 * time.Minute,
		Issuer:   DefaultIssuer,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Secret, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.Validity, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Issuer, validation.Required),
	)
}

// Claims is the payload of an access token.
type Claims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Service issues and verifies namespaced HS256 access tokens.
// A Service is immutable after construction and safe for concurrent use.
type Service struct {
	secret   []byte
	validity time.Duration
	issuer   string
	now      func() time.Time
	parser   *jwt.Parser
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now. Used by tests to control iat and exp.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Service from cfg.
func New(cfg Config, opts ...Option) (*Service, error) {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("token: invalid config: %w", err)
	}

	s := &Service{
		secret:   []byte(cfg.Secret),
		validity: cfg.Validity,
		issuer:   cfg.Issuer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
		// exp itself is still valid; a token expires once now is past it.
		jwt.WithLeeway(time.Nanosecond),
	)

	return s, nil
}

// Issue returns a signed token whose subject is "<namespace>-<entityID>".
func (s *Service) Issue(namespace, entityID string) (string, error) {
	if namespace == "" || strings.Contains(namespace, subjectSeparator) {
		return "", fmt.Errorf("%w: namespace %q", ErrInvalidSubject, namespace)
	}
	if entityID == "" || strings.Contains(entityID, subjectSeparator) {
		return "", fmt.Errorf("%w: entity id %q", ErrInvalidSubject, entityID)
	}

	now := s.now()
	claims := Claims{
		Type: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   namespace + subjectSeparator + entityID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.validity)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify checks raw and returns the entity id it was issued for. The
// subject is split on its first separator, so the entity id is everything
// after "<namespace>-".
func (s *Service) Verify(raw, namespace string) (string, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	if claims.Type != TypeAccess {
		return "", fmt.Errorf("%w: unexpected type %q", ErrTokenMalformed, claims.Type)
	}

	ns, id, ok := strings.Cut(claims.Subject, subjectSeparator)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: subject %q", ErrTokenMalformed, claims.Subject)
	}
	if ns != namespace {
		return "", ErrSubjectMismatch
	}

	return id, nil
}
