package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/booking"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// SlotCache はルーム×日付ごとの埋まっている時間帯をキャッシュする
type SlotCache struct {
	client *redis.Client
}

// NewSlotCache は新しいSlotCacheインスタンスを作成する
func NewSlotCache(client *redis.Client) *SlotCache {
	return &SlotCache{client: client}
}

// GetBusySlots は埋まっている時間帯一覧をキャッシュから取得する
func (c *SlotCache) GetBusySlots(ctx context.Context, roomID string, date time.Time) ([]booking.BusySlot, error) {
	key := c.busySlotsKey(roomID, date)
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}

	var slots []booking.BusySlot
	if err := json.Unmarshal(val, &slots); err != nil {
		return nil, fmt.Errorf("キャッシュのデコードに失敗: %w", err)
	}
	return slots, nil
}

// SetBusySlots は埋まっている時間帯一覧をキャッシュに保存する
func (c *SlotCache) SetBusySlots(ctx context.Context, roomID string, date time.Time, slots []booking.BusySlot, ttl time.Duration) error {
	data, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("キャッシュのエンコードに失敗: %w", err)
	}
	key := c.busySlotsKey(roomID, date)
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate は指定ルーム・日付のキャッシュを無効化する
func (c *SlotCache) Invalidate(ctx context.Context, roomID string, date time.Time) error {
	key := c.busySlotsKey(roomID, date)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func (c *SlotCache) busySlotsKey(roomID string, date time.Time) string {
	return fmt.Sprintf("slots:busy:%s:%s", roomID, date.Format("2006-01-02"))
}
