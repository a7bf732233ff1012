package service

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/stagelink/backend/internal/domain"
)

// cursor encodes a keyset pagination position. Callers receive it as an opaque
// string and must not construct or interpret it.
type cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        int64     `json:"i"`
}

func encodeCursor(createdAt time.Time, id int64) string {
	b, err := json.Marshal(cursor{CreatedAt: createdAt, ID: id})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeCursor(s string) (cursor, error) {
	if s == "" {
		return cursor{}, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return cursor{}, domain.ErrBadRequest
	}
	var c cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return cursor{}, domain.ErrBadRequest
	}
	return c, nil
}
