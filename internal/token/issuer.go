package token

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSymmetricKeyLen = 32

// ErrInvalidOrExpiredToken is the single error every verification failure
// collapses to. Callers must not be able to distinguish a bad signature
// from an expired token.
var ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

// Claims is the access-token claim set. Access tokens are never persisted;
// validity is entirely determined by signature and expiry.
type Claims struct {
	Scopes       []string        `json:"scp"`
	Risk         string          `json:"risk"`
	Entitlements map[string]bool `json:"entitlements"`
	SessionID    string          `json:"sid"`
	jwt.RegisteredClaims
}

// IssueInput is everything a freshly minted token carries.
type IssueInput struct {
	Subject      string
	Audience     string
	Scopes       []string
	Risk         string
	Entitlements map[string]bool
	SessionID    string
}

// Issuer mints and verifies signed access tokens. It supports symmetric
// HS256 signing or asymmetric RS256 with a JWKS view for independent
// verification by resource servers.
type Issuer struct {
	issuer string
	ttl    time.Duration
	now    func() time.Time

	secret     []byte
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	keyID      string
}

// Option configures an Issuer.
type Option func(*Issuer) error

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(i *Issuer) error {
		if fn != nil {
			i.now = fn
		}
		return nil
	}
}

// WithKeyID sets the key identifier embedded into token headers and JWKS.
func WithKeyID(kid string) Option {
	return func(i *Issuer) error {
		i.keyID = strings.TrimSpace(kid)
		return nil
	}
}

// NewHS256 constructs a symmetric issuer. The shared secret must be at
// least 32 bytes; shorter keys are rejected at startup.
func NewHS256(issuer string, secret []byte, ttl time.Duration, opts ...Option) (*Issuer, error) {
	if len(secret) < minSymmetricKeyLen {
		return nil, fmt.Errorf("token: symmetric key must be at least %d bytes", minSymmetricKeyLen)
	}
	i := &Issuer{issuer: issuer, ttl: ttl, now: time.Now, secret: secret}
	return i.apply(opts)
}

// NewRS256 constructs an asymmetric issuer from PEM-encoded keys. The
// private key signs; the public key is exposed via JWKS.
func NewRS256(issuer, privatePEM, publicPEM string, ttl time.Duration, opts ...Option) (*Issuer, error) {
	priv, err := parseRSAPrivateKey(privatePEM)
	if err != nil {
		return nil, fmt.Errorf("token: parse private key: %w", err)
	}
	pub, err := parseRSAPublicKey(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("token: parse public key: %w", err)
	}
	i := &Issuer{issuer: issuer, ttl: ttl, now: time.Now, privateKey: priv, publicKey: pub}
	return i.apply(opts)
}

func (i *Issuer) apply(opts []Option) (*Issuer, error) {
	if strings.TrimSpace(i.issuer) == "" {
		return nil, errors.New("token: issuer is required")
	}
	if i.ttl <= 0 {
		return nil, errors.New("token: ttl must be greater than zero")
	}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}
	return i, nil
}

// TTL returns the configured access-token lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Asymmetric reports whether RS256 signing is active.
func (i *Issuer) Asymmetric() bool { return i.privateKey != nil }

// Issue signs a token for the given claim inputs and returns it with its
// expiry.
func (i *Issuer) Issue(in IssueInput) (string, time.Time, error) {
	if strings.TrimSpace(in.Subject) == "" {
		return "", time.Time{}, errors.New("token: subject is required")
	}
	now := i.now().UTC()
	exp := now.Add(i.ttl)
	claims := Claims{
		Scopes:       in.Scopes,
		Risk:         in.Risk,
		Entitlements: in.Entitlements,
		SessionID:    in.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   in.Subject,
			Audience:  jwt.ClaimStrings{in.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	var tok *jwt.Token
	if i.privateKey != nil {
		tok = jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		if i.keyID != "" {
			tok.Header["kid"] = i.keyID
		}
		signed, err := tok.SignedString(i.privateKey)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("sign token: %w", err)
		}
		return signed, exp, nil
	}
	tok = jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, issuer and expiry. Any failure collapses to
// ErrInvalidOrExpiredToken.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if i.privateKey != nil {
			if t.Method != jwt.SigningMethodRS256 {
				return nil, ErrInvalidOrExpiredToken
			}
			return i.publicKey, nil
		}
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidOrExpiredToken
		}
		return i.secret, nil
	}, jwt.WithIssuer(i.issuer), jwt.WithTimeFunc(func() time.Time { return i.now().UTC() }))
	if err != nil {
		return nil, ErrInvalidOrExpiredToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidOrExpiredToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidOrExpiredToken
	}
	return claims, nil
}

func parseRSAPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(pemData)))
	if block == nil {
		return nil, errors.New("invalid PEM private key")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, errors.New("unsupported private key type")
	default:
		return nil, fmt.Errorf("unsupported private key type %s", block.Type)
	}
}

func parseRSAPublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(pemData)))
	if block == nil {
		return nil, errors.New("invalid PEM public key")
	}
	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("not an RSA public key")
		}
		return rsaKey, nil
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported public key type %s", block.Type)
	}
}
