package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleOperator marks tokens issued to compliance operators.
const RoleOperator = "operator"

type tokenClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// HMACValidator validates HS256 tokens issued by the identity service.
type HMACValidator struct {
	key    []byte
	issuer string
	leeway time.Duration
}

// NewHMACValidator builds a validator. An empty issuer skips the iss check.
func NewHMACValidator(signingKey, issuer string) (*HMACValidator, error) {
	if signingKey == "" {
		return nil, errors.New("jwt signing key is required")
	}
	return &HMACValidator{key: []byte(signingKey), issuer: issuer, leeway: 30 * time.Second}, nil
}

func (v *HMACValidator) ValidateToken(tokenString string) (*JWTClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims tokenClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &JWTClaims{UserID: claims.Subject, Operator: claims.Role == RoleOperator}, nil
}

// IssueToken signs a token for subject. Used by tests and local tooling.
func (v *HMACValidator) IssueToken(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
}
