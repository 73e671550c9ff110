package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/reservation"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const allEventsKey = "all"

// StatsCache は状態別の予約件数をキャッシュする
type StatsCache struct {
	client redis.Cmdable
}

// NewStatsCache は新しいStatsCacheインスタンスを作成する
func NewStatsCache(client redis.Cmdable) *StatsCache {
	return &StatsCache{client: client}
}

// Get はイベントの状態別件数を取得する。eventID が空なら全体の集計
func (c *StatsCache) Get(ctx context.Context, eventID string) (map[reservation.Status]int, error) {
	raw, err := c.client.Get(ctx, statsKey(eventID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	var counts map[reservation.Status]int
	if err := json.Unmarshal(raw, &counts); err != nil {
		return nil, fmt.Errorf("キャッシュの復元に失敗: %w", err)
	}
	return counts, nil
}

// Set は状態別件数を TTL 付きで保存する
func (c *StatsCache) Set(ctx context.Context, eventID string, counts map[reservation.Status]int, ttl time.Duration) error {
	raw, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("キャッシュのシリアライズに失敗: %w", err)
	}
	if err := c.client.Set(ctx, statsKey(eventID), string(raw), ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はイベント単位と全体の集計を両方無効化する
func (c *StatsCache) Invalidate(ctx context.Context, eventID string) error {
	if err := c.client.Del(ctx, statsKey(eventID), statsKey("")).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func statsKey(eventID string) string {
	if eventID == "" {
		eventID = allEventsKey
	}
	return "reservations:stats:" + eventID
}
