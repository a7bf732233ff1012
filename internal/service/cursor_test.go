package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stagelink/backend/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 45, 123456000, time.UTC)

	c, err := decodeCursor(encodeCursor(at, 99))
	assert.NoError(t, err)
	assert.True(t, c.CreatedAt.Equal(at))
	assert.Equal(t, int64(99), c.ID)
}

func TestCursorEmpty(t *testing.T) {
	c, err := decodeCursor("")
	assert.NoError(t, err)
	assert.True(t, c.CreatedAt.IsZero())
	assert.Equal(t, int64(0), c.ID)
}

func TestCursorMalformed(t *testing.T) {
	for _, s := range []string{"%%%", "bm90IGpzb24", "AAAA"} {
		_, err := decodeCursor(s)
		assert.ErrorIs(t, err, domain.ErrBadRequest, s)
	}
}
