package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "panel-lab"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
	jwt.RegisteredClaims
}

// Issuer signs and checks the directory's tokens with one shared secret.
type Issuer struct {
	key      []byte
	duration time.Duration
}

func NewIssuer(secret string, duration time.Duration) Issuer {
	return Issuer{key: []byte(secret), duration: duration}
}

// GenerateToken creates a signed JWT for a specific user.
func (i Issuer) GenerateToken(userID, displayName string, roles []string) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID:      userID,
		DisplayName: displayName,
		Roles:       roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	// HS256 (HMAC with SHA256)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.key)
}

// ValidateToken parses and validates the signature and expiration of a JWT string.
func (i Issuer) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{},
		func(token *jwt.Token) (any, error) { return i.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}
