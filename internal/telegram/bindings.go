package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// bindingStore remembers which chatbot a telegram chat is talking to.
type bindingStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func newBindingStore(rdb *redis.Client, ttl time.Duration) *bindingStore {
	return &bindingStore{redis: rdb, ttl: ttl}
}

func (b *bindingStore) key(chatID int64) string {
	return fmt.Sprintf("botsmith:telegram:bind:%d", chatID)
}

func (b *bindingStore) Set(ctx context.Context, chatID, chatbotID int64) error {
	return b.redis.Set(ctx, b.key(chatID), strconv.FormatInt(chatbotID, 10), b.ttl).Err()
}

// Get returns 0 when the chat has no binding.
func (b *bindingStore) Get(ctx context.Context, chatID int64) (int64, error) {
	raw, err := b.redis.Get(ctx, b.key(chatID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt binding for chat %d: %w", chatID, err)
	}
	return id, nil
}

func (b *bindingStore) Clear(ctx context.Context, chatID int64) error {
	return b.redis.Del(ctx, b.key(chatID)).Err()
}
