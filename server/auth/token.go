// Package auth carries the signed session token, provider credential
// refresh and the request authenticator.
package auth

import (
	"crypto/sha256"
	"encoding/json"
	"io"
	"reflect"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"

	apperrors "github.com/hrygo/autotask/internal/errors"
	"github.com/hrygo/autotask/store"
)

const (
	// Issuer is the iss claim of every session token.
	Issuer = "autotask-ai"
	// DefaultTTL is the lifetime of a freshly encoded token.
	DefaultTTL = 24 * time.Hour
	// DefaultMaxTokenSize keeps the token under common cookie limits.
	DefaultMaxTokenSize = 4000

	keyInfo = "autotask session token"
)

// sessionClaims nests the state under its own key so reserved claims from a
// previous token never mix into the carried state.
type sessionClaims struct {
	State store.SessionState `json:"state"`
	jwt.RegisteredClaims
}

// EncodeResult is a signed token and whether items were dropped to fit it.
type EncodeResult struct {
	Token     string
	Truncated bool
}

// TokenCodec signs and verifies session tokens.
type TokenCodec struct {
	key     []byte
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) CodecOption {
	return func(c *TokenCodec) { c.ttl = ttl }
}

// WithMaxSize overrides the maximum encoded token size in bytes.
func WithMaxSize(n int) CodecOption {
	return func(c *TokenCodec) { c.maxSize = n }
}

// WithClock overrides the clock used for iat, exp and verification.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) { c.now = now }
}

// NewTokenCodec derives the HMAC key from secret.
func NewTokenCodec(secret []byte, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret is empty")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, errors.Wrap(err, "failed to derive signing key")
	}

	c := &TokenCodec{
		key:     key,
		ttl:     DefaultTTL,
		maxSize: DefaultMaxTokenSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the token lifetime.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Encode signs state with fresh registered claims. When the token is over the
// size limit it is re-signed without items and Truncated is set. If it is still
// too large a PAYLOAD_TOO_LARGE error is returned.
func (c *TokenCodec) Encode(state *store.SessionState) (EncodeResult, error) {
	if state == nil {
		return EncodeResult{}, apperrors.InvalidArgument("session state is nil")
	}

	token, err := c.sign(state)
	if err != nil {
		return EncodeResult{}, err
	}
	if len(token) <= c.maxSize {
		return EncodeResult{Token: token}, nil
	}
	if state.Items == nil {
		return EncodeResult{}, apperrors.PayloadTooLarge(len(token), c.maxSize)
	}

	trimmed := *state
	trimmed.Items = nil
	token, err = c.sign(&trimmed)
	if err != nil {
		return EncodeResult{}, err
	}
	if len(token) > c.maxSize {
		return EncodeResult{}, apperrors.PayloadTooLarge(len(token), c.maxSize)
	}
	return EncodeResult{Token: token, Truncated: true}, nil
}

func (c *TokenCodec) sign(state *store.SessionState) (string, error) {
	if _, err := json.Marshal(state); err != nil {
		return "", apperrors.SerializationFailure(err, failingFields(state)...)
	}

	now := c.now()
	claims := sessionClaims{
		State: *state,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", apperrors.SerializationFailure(err)
	}
	return token, nil
}

// Decode verifies signature, issuer and expiry and returns the carried state.
// Any failure is an AUTH_INVALID error.
func (c *TokenCodec) Decode(token string) (*store.SessionState, error) {
	if token == "" {
		return nil, apperrors.AuthInvalid(errors.New("empty token"))
	}

	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return c.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, apperrors.AuthInvalid(err)
	}
	return &claims.State, nil
}

// failingFields names the top-level state fields that do not marshal.
func failingFields(state *store.SessionState) []string {
	var fields []string
	v := reflect.ValueOf(state).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if _, err := json.Marshal(v.Field(i).Interface()); err != nil {
			fields = append(fields, t.Field(i).Name)
		}
	}
	return fields
}
