// Package queue moves JSON-encoded posts through Redis lists.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ObiAU/hfentityengine/internal/models"
)

var (
	ErrEmpty     = errors.New("queue is empty")
	ErrMalformed = errors.New("malformed queued post")
)

type DeadLetter struct {
	Post     models.Post `json:"post"`
	Raw      string      `json:"raw,omitempty"`
	Reason   string      `json:"reason"`
	FailedAt time.Time   `json:"failed_at"`
}

type Queue struct {
	client  redis.UniversalClient
	key     string
	deadKey string
}

func New(client redis.UniversalClient, key, deadKey string) *Queue {
	return &Queue{client: client, key: key, deadKey: deadKey}
}

// Connect accepts either a redis:// URL or a bare host:port.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("redis url is empty")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (q *Queue) Push(ctx context.Context, post *models.Post) error {
	data, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("encode post %s: %w", post.ID, err)
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

// Pop blocks for up to timeout and returns ErrEmpty when nothing arrived.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*models.Post, error) {
	result, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}

	var post models.Post
	if err := json.Unmarshal([]byte(result[1]), &post); err != nil {
		decodeErr := fmt.Errorf("%w: %v", ErrMalformed, err)
		if dlErr := q.push(ctx, q.deadKey, DeadLetter{Raw: result[1], Reason: decodeErr.Error(), FailedAt: time.Now().UTC()}); dlErr != nil {
			return nil, fmt.Errorf("%w (dead letter failed: %v)", decodeErr, dlErr)
		}
		return nil, decodeErr
	}
	return &post, nil
}

func (q *Queue) DeadLetter(ctx context.Context, post *models.Post, reason string) error {
	return q.push(ctx, q.deadKey, DeadLetter{Post: *post, Reason: reason, FailedAt: time.Now().UTC()})
}

func (q *Queue) push(ctx context.Context, key string, dl DeadLetter) error {
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("encode dead letter for %s: %w", dl.Post.ID, err)
	}
	return q.client.LPush(ctx, key, data).Err()
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

func (q *Queue) DeadLen(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.deadKey).Result()
}
