package security

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stagelink/backend/internal/domain"
)

// TokenService wraps JWT creation and validation. It is the default
// domain.IdentityProvider: tokens carry the account id in "sub" and the acting
// profile in "profile_id", both minted by the platform's identity service.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
}

func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	return &TokenService{
		secret:    []byte(secret),
		expiresIn: expiresIn,
	}
}

var _ domain.IdentityProvider = (*TokenService)(nil)

// CreateForIdentity creates a JWT for the given identity using the default TTL.
func (t *TokenService) CreateForIdentity(id domain.Identity) (string, error) {
	return t.CreateWithTTL(id, t.expiresIn)
}

// CreateWithTTL creates a JWT for the given identity with an explicit TTL.
func (t *TokenService) CreateWithTTL(id domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":        fmt.Sprintf("%d", id.UserID),
		"profile_id": id.ProfileID,
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Authenticate validates a bearer token and resolves the identity embedded in
// its claims. Any failure is reported as domain.ErrUnauthenticated.
func (t *TokenService) Authenticate(_ context.Context, bearer string) (domain.Identity, error) {
	claims, err := t.parse(bearer)
	if err != nil {
		return domain.Identity{}, domain.ErrUnauthenticated
	}

	sub, _ := claims["sub"].(string)
	var userID int64
	if _, err := fmt.Sscanf(sub, "%d", &userID); err != nil || userID <= 0 {
		return domain.Identity{}, domain.ErrUnauthenticated
	}

	profileIDf, _ := claims["profile_id"].(float64)
	profileID := int64(profileIDf)
	if profileID <= 0 {
		return domain.Identity{}, domain.ErrUnauthenticated
	}

	return domain.Identity{UserID: userID, ProfileID: profileID}, nil
}

func (t *TokenService) parse(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		return claims, nil
	}
	return nil, jwt.ErrTokenMalformed
}
