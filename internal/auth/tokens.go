package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	AccessTokenTTL  = 24 * time.Hour
	RefreshTokenTTL = 7 * 24 * time.Hour
	// SessionTTL bounds the session row; it outlives the access token claim.
	SessionTTL = 7 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var errWrongTokenType = errors.New("unexpected token type")

type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

type TokenIssuerOption func(*TokenIssuer)

func WithTokenClock(now func() time.Time) TokenIssuerOption {
	return func(t *TokenIssuer) {
		t.now = now
	}
}

func NewTokenIssuer(secret string, options ...TokenIssuerOption) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	issuer := &TokenIssuer{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range options {
		opt(issuer)
	}
	return issuer, nil
}

// Issue signs a fresh access/refresh pair. ExpiresAt is the session-level
// expiry, not the access token's own claim.
func (t *TokenIssuer) Issue(userID, email string, role Role) (TokenPair, error) {
	now := t.now().UTC()

	access, err := t.sign(userID, email, role, tokenTypeAccess, now, now.Add(AccessTokenTTL))
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.sign(userID, email, role, tokenTypeRefresh, now, now.Add(RefreshTokenTTL))
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(SessionTTL),
	}, nil
}

func (t *TokenIssuer) ParseAccess(raw string) (*Claims, error) {
	return t.parse(raw, tokenTypeAccess)
}

func (t *TokenIssuer) ParseRefresh(raw string) (*Claims, error) {
	return t.parse(raw, tokenTypeRefresh)
}

func (t *TokenIssuer) sign(userID, email string, role Role, tokenType string, issuedAt, expiresAt time.Time) (string, error) {
	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		Type:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s jwt: %w", tokenType, err)
	}
	return encoded, nil
}

func (t *TokenIssuer) parse(raw, tokenType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Type != tokenType {
		return nil, errWrongTokenType
	}
	return claims, nil
}
