package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelink/backend/internal/domain"
	"github.com/stagelink/backend/internal/store/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))
	return db
}

func newTestConversation(t *testing.T, db *sql.DB, memberProfileIDs []int64) int64 {
	t.Helper()
	conv := &domain.Conversation{IsGroup: len(memberProfileIDs) > 2}
	require.NoError(t, sqlite.NewConversationRepo(db).Create(context.Background(), conv, memberProfileIDs))
	require.NotZero(t, conv.ID)
	return conv.ID
}

func TestMessageInsertIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	convID := newTestConversation(t, db, []int64{42, 43})
	repo := sqlite.NewMessageRepo(db)

	first := &domain.Message{
		ConversationID:  convID,
		SenderProfileID: 42,
		Content:         "original",
		ClientMsgID:     "cmid-1",
	}
	dup, err := repo.Insert(ctx, first)
	require.NoError(t, err)
	assert.False(t, dup)
	assert.NotZero(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	// A retry under the same key yields the stored row, not a second insert,
	// even when the retry body drifted.
	retry := &domain.Message{
		ConversationID:  convID,
		SenderProfileID: 42,
		Content:         "edited retry",
		ClientMsgID:     "cmid-1",
	}
	dup, err = repo.Insert(ctx, retry)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, first.ID, retry.ID)
	assert.Equal(t, "original", retry.Content)

	// A fresh key inserts normally.
	second := &domain.Message{
		ConversationID:  convID,
		SenderProfileID: 42,
		Content:         "next",
		ClientMsgID:     "cmid-2",
	}
	dup, err = repo.Insert(ctx, second)
	require.NoError(t, err)
	assert.False(t, dup)
	assert.NotEqual(t, first.ID, second.ID)

	// Same key in a different conversation is independent.
	otherConv := newTestConversation(t, db, []int64{42, 44})
	third := &domain.Message{
		ConversationID:  otherConv,
		SenderProfileID: 42,
		Content:         "elsewhere",
		ClientMsgID:     "cmid-1",
	}
	dup, err = repo.Insert(ctx, third)
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestListAfterPagination(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	convID := newTestConversation(t, db, []int64{42, 43})
	repo := sqlite.NewMessageRepo(db)

	var inserted []int64
	for i := 0; i < 5; i++ {
		m := &domain.Message{
			ConversationID:  convID,
			SenderProfileID: 42,
			Content:         "m",
			ClientMsgID:     "cmid-" + string(rune('a'+i)),
		}
		_, err := repo.Insert(ctx, m)
		require.NoError(t, err)
		inserted = append(inserted, m.ID)
	}

	// Walk the conversation in pages of two; every message exactly once.
	var walked []int64
	after, afterID := time.Time{}, int64(0)
	for {
		page, err := repo.ListAfter(ctx, convID, after, afterID, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			walked = append(walked, m.ID)
		}
		last := page[len(page)-1]
		after, afterID = last.CreatedAt, last.ID
	}
	assert.Equal(t, inserted, walked)
}

func TestMarkReadUpTo(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	convID := newTestConversation(t, db, []int64{42, 43})
	repo := sqlite.NewMessageRepo(db)

	var ids []int64
	for _, key := range []string{"a", "b", "c", "d"} {
		m := &domain.Message{
			ConversationID:  convID,
			SenderProfileID: 42,
			Content:         "m",
			ClientMsgID:     key,
		}
		_, err := repo.Insert(ctx, m)
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	updated, err := repo.MarkReadUpTo(ctx, convID, 43, ids[2])
	require.NoError(t, err)
	assert.Equal(t, ids[:3], updated)

	// Re-marking the same watermark changes nothing.
	updated, err = repo.MarkReadUpTo(ctx, convID, 43, ids[2])
	require.NoError(t, err)
	assert.Empty(t, updated)

	// A lower watermark never regresses.
	updated, err = repo.MarkReadUpTo(ctx, convID, 43, ids[0])
	require.NoError(t, err)
	assert.Empty(t, updated)

	// Advancing covers only the not-yet-read tail.
	updated, err = repo.MarkReadUpTo(ctx, convID, 43, ids[3])
	require.NoError(t, err)
	assert.Equal(t, ids[3:], updated)

	// A second reader unions in, independent of the first.
	updated, err = repo.MarkReadUpTo(ctx, convID, 42, ids[1])
	require.NoError(t, err)
	assert.Equal(t, ids[:2], updated)

	readers, err := repo.ListReaders(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, []int64{42, 43}, readers)

	// ListAfter carries the read sets.
	msgs, err := repo.ListAfter(ctx, convID, time.Time{}, 0, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, []int64{42, 43}, msgs[0].ReadBy)
	assert.Equal(t, []int64{43}, msgs[2].ReadBy)
}

func TestConversationRepo(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	convs := sqlite.NewConversationRepo(db)
	members := sqlite.NewMemberRepo(db)

	name := "Tour crew"
	conv := &domain.Conversation{Name: &name, IsGroup: true}
	require.NoError(t, convs.Create(ctx, conv, []int64{42, 43, 44}))
	require.NotZero(t, conv.ID)

	got, err := convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Name)
	assert.Equal(t, "Tour crew", *got.Name)
	assert.True(t, got.IsGroup)

	_, err = convs.GetByID(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ok, err := members.IsMember(ctx, conv.ID, 43)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = members.IsMember(ctx, conv.ID, 99)
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := members.ListMemberIDs(ctx, conv.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{42, 43, 44}, ids)

	list, err := convs.ListForProfile(ctx, 43)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, conv.ID, list[0].ID)

	list, err = convs.ListForProfile(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPresenceUpsert(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	convID := newTestConversation(t, db, []int64{42, 43})
	repo := sqlite.NewPresenceRepo(db)

	require.NoError(t, repo.Upsert(ctx, &domain.Presence{
		ConversationID: convID, ProfileID: 42, IsTyping: true, LastSeenAt: time.Now().UTC(),
	}))
	// Overwrite, not insert.
	require.NoError(t, repo.Upsert(ctx, &domain.Presence{
		ConversationID: convID, ProfileID: 42, IsTyping: false, LastSeenAt: time.Now().UTC(),
	}))
	require.NoError(t, repo.Upsert(ctx, &domain.Presence{
		ConversationID: convID, ProfileID: 43, IsTyping: true, LastSeenAt: time.Now().UTC(),
	}))

	rows, err := repo.ListForConversation(ctx, convID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byProfile := map[int64]*domain.Presence{}
	for _, p := range rows {
		byProfile[p.ProfileID] = p
	}
	assert.False(t, byProfile[42].IsTyping)
	assert.True(t, byProfile[43].IsTyping)
}
