package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"bookchain/pkg/domain"
)

const pointerIssuer = "bookchain"

// PointerCodec serializes the persisted session pointer.
type PointerCodec interface {
	Encode(domain.Session) (string, error)
	// Decode returns ErrSessionExpired for a well-formed pointer whose window
	// has passed and ErrInvalidPointer for anything unreadable.
	Decode(value string, now time.Time) (domain.Session, error)
}

// JSONCodec stores the pointer as plain JSON.
type JSONCodec struct{}

func (JSONCodec) Encode(s domain.Session) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (JSONCodec) Decode(value string, now time.Time) (domain.Session, error) {
	var s domain.Session
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", ErrInvalidPointer, err)
	}
	if strings.TrimSpace(s.PublicKeyHex) == "" || s.ExpiresAt.IsZero() {
		return domain.Session{}, fmt.Errorf("%w: missing fields", ErrInvalidPointer)
	}
	if s.Expired(now) {
		return domain.Session{}, ErrSessionExpired
	}
	return s, nil
}

// JWTCodec seals the pointer as an HS256 token so that an edited expiry is
// rejected instead of extending the session.
type JWTCodec struct {
	secret []byte
}

// NewJWTCodec builds a codec for secret, which must not be empty.
func NewJWTCodec(secret string) (*JWTCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("pointer secret required")
	}
	return &JWTCodec{secret: []byte(secret)}, nil
}

type pointerClaims struct {
	Flags []string `json:"flags,omitempty"`
	jwt.RegisteredClaims
}

func (c *JWTCodec) Encode(s domain.Session) (string, error) {
	claims := pointerClaims{
		Flags: s.GrantedFlags,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.PublicKeyHex,
			Issuer:    pointerIssuer,
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *JWTCodec) Decode(value string, now time.Time) (domain.Session, error) {
	claims := pointerClaims{}
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(value), &claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(pointerIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return domain.Session{}, ErrSessionExpired
	}
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return domain.Session{}, fmt.Errorf("%w: %v", ErrInvalidPointer, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.Session{}, fmt.Errorf("%w: subject missing", ErrInvalidPointer)
	}
	return domain.Session{
		PublicKeyHex: claims.Subject,
		ExpiresAt:    claims.ExpiresAt.Time.UTC(),
		GrantedFlags: claims.Flags,
	}, nil
}
