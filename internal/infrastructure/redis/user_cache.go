package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-dbcontext/internal/domain/user"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// 無効化の直後は保存しない。無効化前に読んだ古い値で上書きされるのを防ぐ
const invalidationHold = 5 * time.Second

// KEYS[1]: キャッシュキー, KEYS[2]: 無効化マーカー, ARGV[1]: 値, ARGV[2]: TTL(ミリ秒)
var setScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[2]) == 1 then
		return 0
	end
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
`)

type cachedUser struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserCache はユーザー情報のキャッシュを管理する
type UserCache struct {
	client *redis.Client
	ttl    time.Duration
	hold   time.Duration
}

// NewUserCache は新しいUserCacheインスタンスを作成する
func NewUserCache(client *redis.Client, ttl time.Duration) *UserCache {
	return &UserCache{client: client, ttl: ttl, hold: invalidationHold}
}

// Get はユーザーをキャッシュから取得する
func (c *UserCache) Get(ctx context.Context, id int64) (*user.User, error) {
	data, err := c.client.Get(ctx, c.userKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}

	var cu cachedUser
	if err := json.Unmarshal(data, &cu); err != nil {
		return nil, fmt.Errorf("キャッシュの復元に失敗: %w", err)
	}
	return &user.User{
		ID: cu.ID, FirstName: cu.FirstName, LastName: cu.LastName, Email: cu.Email,
		CreatedAt: cu.CreatedAt, UpdatedAt: cu.UpdatedAt,
	}, nil
}

// Set はユーザーをキャッシュに保存する
// 直前に Invalidate されたユーザーは保存せずに nil を返す
func (c *UserCache) Set(ctx context.Context, u *user.User) error {
	data, err := json.Marshal(cachedUser{
		ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email,
		CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("キャッシュのシリアライズに失敗: %w", err)
	}
	keys := []string{c.userKey(u.ID), c.invalidatedKey(u.ID)}
	if err := setScript.Run(ctx, c.client, keys, data, c.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はユーザーのキャッシュを無効化する
func (c *UserCache) Invalidate(ctx context.Context, id int64) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.userKey(id))
		pipe.Set(ctx, c.invalidatedKey(id), 1, c.hold)
		return nil
	})
	if err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func (c *UserCache) userKey(id int64) string {
	return fmt.Sprintf("users:%d", id)
}

func (c *UserCache) invalidatedKey(id int64) string {
	return fmt.Sprintf("users:%d:invalidated", id)
}
