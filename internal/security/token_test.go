package security_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"github.com/stagelink/backend/internal/domain"
	"github.com/stagelink/backend/internal/security"
)

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := security.NewTokenService("test-secret", time.Hour)
	id := domain.Identity{UserID: 12, ProfileID: 42}

	t.Run("RoundTrip", func(t *testing.T) {
		token, err := svc.CreateForIdentity(id)
		assert.NoError(t, err)

		got, err := svc.Authenticate(ctx, token)
		assert.NoError(t, err)
		assert.Equal(t, id, got)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other := security.NewTokenService("other-secret", time.Hour)
		token, err := other.CreateForIdentity(id)
		assert.NoError(t, err)

		_, err = svc.Authenticate(ctx, token)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("Expired", func(t *testing.T) {
		token, err := svc.CreateWithTTL(id, -time.Minute)
		assert.NoError(t, err)

		_, err = svc.Authenticate(ctx, token)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("MissingProfile", func(t *testing.T) {
		now := time.Now()
		claims := jwt.MapClaims{
			"sub": "12",
			"iat": now.Unix(),
			"exp": now.Add(time.Hour).Unix(),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
			SignedString([]byte("test-secret"))
		assert.NoError(t, err)

		_, err = svc.Authenticate(ctx, token)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "not.a.token")
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})
}
