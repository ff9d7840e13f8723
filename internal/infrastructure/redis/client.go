package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-dbcontext/internal/config"
)

const dialTimeout = 3 * time.Second

// Connect はキャッシュとロック用の Redis クライアントを作成し、疎通を確認する
// 疎通できなければクライアントを閉じてエラーを返す
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})
	if err := Ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// Ping はヘルスチェック用
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis接続に失敗しました: %w", err)
	}
	return nil
}
