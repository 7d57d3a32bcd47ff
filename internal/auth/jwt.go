package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken covers every way a presented access token can fail
// validation: bad signature, wrong algorithm, expired, malformed.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the access token payload.
type Claims struct {
	CustomerID uuid.UUID `json:"sub_id"`
	Role       string    `json:"role"`
	TokenType  string    `json:"typ"`
	jwt.RegisteredClaims
}

// accessTokenType is the only token type Verify accepts.
const accessTokenType = "access"

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokenIssuer(secret []byte, issuer string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenIssuer{secret: secret, issuer: issuer, ttl: ttl}
}

// Issue returns a signed access token for customerID with the given role.
func (i *TokenIssuer) Issue(customerID uuid.UUID, role string) (string, time.Time, error) {
	if len(i.secret) == 0 {
		return "", time.Time{}, errors.New("auth: jwt secret not configured")
	}
	now := time.Now()
	exp := now.Add(i.ttl)
	claims := Claims{
		CustomerID: customerID,
		Role:       role,
		TokenType:  accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   customerID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses and validates tokenString, pinning the signing algorithm to
// HMAC so an attacker cannot downgrade to "alg": "none" or swap in an
// asymmetric key the server would accept as a public verification key.
// A token whose type is not "access" is rejected with ErrInvalidToken.
func (i *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	if len(i.secret) == 0 {
		return nil, errors.New("auth: jwt secret not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalidToken, t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != accessTokenType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
