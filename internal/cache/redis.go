package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/config"
)

type Client struct {
	rdb *redis.Client
}

// NewRedis initializes a Redis client and verifies connectivity.
func NewRedis(cfg *config.Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPwd,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Info().Str("addr", cfg.RedisAddr).Msg("redis connected")
	return &Client{rdb: rdb}, nil
}

// -----------------------------
// Last seen tracking
// -----------------------------

func (c *Client) SetLastSeen(ctx context.Context, userID string, t time.Time) error {
	return c.rdb.Set(ctx, "last_seen:"+userID, t.Unix(), 0).Err()
}

func (c *Client) GetLastSeen(ctx context.Context, userID string) (time.Time, error) {
	val, err := c.rdb.Get(ctx, "last_seen:"+userID).Result()
	if err != nil {
		return time.Time{}, err
	}
	ts, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(ts, 0), nil
}

// -----------------------------
// Typing status per conversation
// -----------------------------

func (c *Client) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	key := "typing:" + conversationID
	if isTyping {
		if err := c.rdb.SAdd(ctx, key, userID).Err(); err != nil {
			return err
		}
		// stale typing state expires on its own
		return c.rdb.Expire(ctx, key, 30*time.Second).Err()
	}
	return c.rdb.SRem(ctx, key, userID).Err()
}

func (c *Client) GetTypingUsers(ctx context.Context, conversationID string) ([]string, error) {
	return c.rdb.SMembers(ctx, "typing:"+conversationID).Result()
}

// -----------------------------
// Rate limiting (messages per window)
// -----------------------------

const luaRateLimit = `
local current = redis.call("incr", KEYS[1])
if current == 1 then
  redis.call("expire", KEYS[1], ARGV[1])
end
return current
`

func (c *Client) AllowMessage(ctx context.Context, userID string, limit int, window time.Duration) (bool, error) {
	count, err := c.rdb.Eval(ctx, luaRateLimit, []string{"rate:" + userID}, int(window.Seconds())).Int()
	if err != nil {
		return false, err
	}
	return count <= limit, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
