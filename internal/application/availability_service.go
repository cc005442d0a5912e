package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/booking"
	redisinfra "github.com/sanosuguru/go-karaoke-room-booking/internal/infrastructure/redis"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/pkg/logger"
)

// busySlotCacheTTL は空き状況キャッシュの有効期間
// 予約の作成・キャンセル時に明示的に無効化されるため短くてよい
const busySlotCacheTTL = 30 * time.Second

// AvailabilityService は空き状況の判定と参照を提供する
// ここでの重複判定は事前チェックにすぎない。最終的な二重予約の防止は
// Reservation Store（Postgresの排他制約）が挿入時点で保証する
type AvailabilityService struct {
	repo  booking.Repository
	cache *redisinfra.SlotCache
}

func NewAvailabilityService(repo booking.Repository, cache *redisinfra.SlotCache) *AvailabilityService {
	return &AvailabilityService{repo: repo, cache: cache}
}

// HasConflict は指定の時間帯が既存予約と重なるかを返す
// キャンセル済みと保留期限切れのpending予約はブロックしない
func (s *AvailabilityService) HasConflict(ctx context.Context, roomID string, date time.Time, startHour, durationHours int) (bool, error) {
	existing, err := s.repo.ListActiveByRoomDate(ctx, roomID, date)
	if err != nil {
		return false, fmt.Errorf("既存予約の取得に失敗: %w", err)
	}

	now := time.Now()
	for _, b := range existing {
		if b.IsHoldLapsed(now) {
			continue
		}
		if b.Overlaps(startHour, durationHours) {
			return true, nil
		}
	}
	return false, nil
}

// BusySlots は指定日の埋まっている時間帯一覧を返す（UI表示用）
// 他の顧客の情報は含めず、時間帯のみを公開する
func (s *AvailabilityService) BusySlots(ctx context.Context, roomID string, date time.Time) ([]booking.BusySlot, error) {
	if s.cache != nil {
		slots, err := s.cache.GetBusySlots(ctx, roomID, date)
		if err == nil {
			return slots, nil
		}
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			// キャッシュ障害は許容してDBにフォールバックする
			logger.Warn("空き状況キャッシュの取得に失敗", zap.Error(err))
		}
	}

	existing, err := s.repo.ListActiveByRoomDate(ctx, roomID, date)
	if err != nil {
		return nil, fmt.Errorf("既存予約の取得に失敗: %w", err)
	}

	now := time.Now()
	slots := make([]booking.BusySlot, 0, len(existing))
	for _, b := range existing {
		if b.IsHoldLapsed(now) {
			continue
		}
		slots = append(slots, booking.BusySlot{
			StartHour:     b.StartHour,
			DurationHours: b.DurationHours,
		})
	}

	if s.cache != nil {
		if err := s.cache.SetBusySlots(ctx, roomID, date, slots, busySlotCacheTTL); err != nil {
			logger.Warn("空き状況キャッシュの保存に失敗", zap.Error(err))
		}
	}
	return slots, nil
}

// InvalidateCache は指定ルーム・日付のキャッシュを無効化する
func (s *AvailabilityService) InvalidateCache(ctx context.Context, roomID string, date time.Time) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, roomID, date); err != nil {
		logger.Warn("空き状況キャッシュの無効化に失敗", zap.Error(err))
	}
}
