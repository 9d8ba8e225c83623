package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the verified user identity attached to a connection.
type Identity struct {
	UserID   int64
	Username string
}

// Claims represents JWT claims accepted by the server. Token issuance lives
// elsewhere; this package only verifies.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Config holds JWT verification configuration.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
}

// Verifier validates bearer tokens and extracts the caller identity.
type Verifier interface {
	Verify(token string) (*Identity, error)
}

// JWTVerifier verifies HS256 tokens issued by the identity service.
type JWTVerifier struct {
	cfg Config
}

// NewJWTVerifier builds a verifier from config.
func NewJWTVerifier(cfg Config) *JWTVerifier {
	return &JWTVerifier{cfg: cfg}
}

// Verify parses and validates a JWT token, returning the identity it carries.
func (v *JWTVerifier) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.cfg.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if v.cfg.Issuer != "" && claims.Issuer != v.cfg.Issuer {
		return nil, fmt.Errorf("invalid issuer")
	}

	if v.cfg.Audience != "" {
		validAudience := false
		for _, aud := range claims.Audience {
			if aud == v.cfg.Audience {
				validAudience = true
				break
			}
		}
		if !validAudience {
			return nil, fmt.Errorf("invalid audience")
		}
	}

	return &Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

// SignForTest mints a token with the given identity. Intended for tests and
// local tooling; production tokens come from the identity service.
func SignForTest(cfg Config, userID int64, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}
