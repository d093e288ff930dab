package services

import (
	"fmt"
	"time"

	"venuelive/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenService validates the bearer credential presented at connection
// time and extracts the caller identity. Validation is all-or-nothing:
// a connection whose token fails here is never registered anywhere.
type TokenService struct {
	secretKey []byte
	issuer    string
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{
		secretKey: []byte(secret),
		issuer:    "venuelive-gateway",
	}
}

// GenerateToken mints an HS256 token carrying the user and profile ids.
// The surrounding platform signs real tokens with the same secret; this
// exists for tooling and tests.
func (s *TokenService) GenerateToken(identity domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": identity.UserID.String(),
		"pid": identity.ProfileID.String(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"iss": s.issuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateToken parses the JWT, checks signature and expiry, and returns
// the embedded identity.
func (s *TokenService) ValidateToken(tokenStr string) (domain.Identity, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil || !token.Valid {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	pid, ok := claims["pid"].(string)
	if !ok {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	profileID, err := uuid.Parse(pid)
	if err != nil {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	return domain.Identity{UserID: userID, ProfileID: profileID}, nil
}
