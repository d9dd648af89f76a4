package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/54b3r/studyrag-go/internal/rag"
)

// RedisConfig holds connection parameters for RedisStore.
type RedisConfig struct {
	// Addr is host:port of the Redis server (default: localhost:6379).
	Addr string
	// Password is the optional AUTH password.
	Password string
	// DB is the logical database index.
	DB int
	// Prefix namespaces every key (default: studyrag).
	Prefix string
}

// RedisStore is a Store on Redis. Layout, for prefix p:
//
//	p:conv:{id}            hash  owner_id, title, created_at
//	p:conv:{id}:messages   list  JSON-encoded rag.Message, append order
//	p:owner:{owner}:convs  zset  conversation ids scored by creation time
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "studyrag"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("conversation: redis ping %s: %w", cfg.Addr, err)
	}
	return &RedisStore{client: client, prefix: cfg.Prefix}, nil
}

func (s *RedisStore) metaKey(id string) string     { return s.prefix + ":conv:" + id }
func (s *RedisStore) logKey(id string) string      { return s.prefix + ":conv:" + id + ":messages" }
func (s *RedisStore) ownerKey(owner string) string { return s.prefix + ":owner:" + owner + ":convs" }

// Create writes the metadata hash and the owner index in one MULTI.
func (s *RedisStore) Create(ctx context.Context, c rag.Conversation) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.metaKey(c.ID),
			"owner_id", c.OwnerID,
			"title", c.Title,
			"created_at", strconv.FormatInt(c.CreatedAt.UnixNano(), 10),
		)
		pipe.ZAdd(ctx, s.ownerKey(c.OwnerID), redis.Z{
			Score:  float64(c.CreatedAt.UnixMicro()),
			Member: c.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("conversation: redis create: %w", err)
	}
	return nil
}

// Get reads the metadata hash of conversation id.
func (s *RedisStore) Get(ctx context.Context, id string) (*rag.Conversation, error) {
	fields, err := s.client.HGetAll(ctx, s.metaKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation: redis get: %w", err)
	}
	if len(fields) == 0 {
		return nil, notFound(id)
	}
	return decodeMeta(id, fields)
}

func decodeMeta(id string, fields map[string]string) (*rag.Conversation, error) {
	ts, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("conversation: redis %s: bad created_at %q: %w", id, fields["created_at"], err)
	}
	return &rag.Conversation{
		ID:        id,
		OwnerID:   fields["owner_id"],
		Title:     fields["title"],
		CreatedAt: time.Unix(0, ts),
	}, nil
}

// List reads the owner index newest first and fetches every hash in one
// pipeline.
func (s *RedisStore) List(ctx context.Context, ownerID string) ([]rag.Conversation, error) {
	ids, err := s.client.ZRevRange(ctx, s.ownerKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation: redis list: %w", err)
	}
	out := make([]rag.Conversation, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.metaKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: redis list: %w", err)
	}

	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		c, err := decodeMeta(ids[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// Append pushes msgs with a single RPUSH inside MULTI.
func (s *RedisStore) Append(ctx context.Context, id string, msgs []rag.Message) error {
	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("conversation: redis encode message: %w", err)
		}
		values = append(values, string(b))
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.logKey(id), values...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("conversation: redis append: %w", err)
	}
	return nil
}

// Messages reads the whole log list.
func (s *RedisStore) Messages(ctx context.Context, id string) ([]rag.Message, error) {
	raw, err := s.client.LRange(ctx, s.logKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation: redis messages: %w", err)
	}
	out := make([]rag.Message, 0, len(raw))
	for _, r := range raw {
		var m rag.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("conversation: redis decode message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Ping checks that Redis answers PING.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("conversation: redis ping: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
