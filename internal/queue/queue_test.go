package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ObiAU/hfentityengine/internal/models"
)

func setupQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "posts", "posts:dead"), mr
}

func TestPushPopIsFIFO(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, &models.Post{ID: "tw_1", Text: "first"}))
	require.NoError(t, q.Push(ctx, &models.Post{ID: "tw_2", Text: "second", Engagement: models.Engagement{Favorites: 3}}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	p, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "tw_1", p.ID)

	p, err = q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "tw_2", p.ID)
	assert.Equal(t, 3, p.Engagement.Favorites)
}

func TestPopEmpty(t *testing.T) {
	q, _ := setupQueue(t)

	_, err := q.Pop(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestPopRejectsGarbage(t *testing.T) {
	q, mr := setupQueue(t)
	_, err := mr.Lpush("posts", "{not json")
	require.NoError(t, err)

	_, err = q.Pop(context.Background(), time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.NotErrorIs(t, err, ErrEmpty)

	raw, err := mr.Lpop("posts:dead")
	require.NoError(t, err)
	var dl DeadLetter
	require.NoError(t, json.Unmarshal([]byte(raw), &dl))
	assert.Equal(t, "{not json", dl.Raw)
	assert.Contains(t, dl.Reason, "malformed queued post")
	assert.Empty(t, dl.Post.ID)
}

func TestDeadLetter(t *testing.T) {
	q, mr := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, q.DeadLetter(ctx, &models.Post{ID: "tw_9", Text: "gm"}, "oracle: no decision"))

	n, err := q.DeadLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	raw, err := mr.Lpop("posts:dead")
	require.NoError(t, err)
	var dl DeadLetter
	require.NoError(t, json.Unmarshal([]byte(raw), &dl))
	assert.Equal(t, "tw_9", dl.Post.ID)
	assert.Equal(t, "oracle: no decision", dl.Reason)
	assert.False(t, dl.FailedAt.IsZero())
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	client, err = Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()

	_, err = Connect(context.Background(), "")
	assert.Error(t, err)
}
