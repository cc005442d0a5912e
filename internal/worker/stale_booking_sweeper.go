package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-karaoke-room-booking/internal/pkg/logger"
)

// BookingSweeper は失効した仮予約をキャンセルするインターフェース
type BookingSweeper interface {
	CancelExpiredBookings(ctx context.Context, sessionGrace time.Duration) (int, error)
}

// StaleBookingSweeper は保持期限を過ぎた仮予約を定期的に回収するワーカー
// 失効した仮予約は挿入時にもインラインで回収されるため、これは安全網にあたる
type StaleBookingSweeper struct {
	bookingService BookingSweeper
	interval       time.Duration
	sessionGrace   time.Duration
	stopCh         chan struct{}
	doneCh         chan struct{}
}

// NewStaleBookingSweeper は新しいスイーパーを作成
func NewStaleBookingSweeper(
	bs BookingSweeper,
	interval time.Duration,
	sessionGrace time.Duration,
) *StaleBookingSweeper {
	return &StaleBookingSweeper{
		bookingService: bs,
		interval:       interval,
		sessionGrace:   sessionGrace,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start はスイーパーを開始
func (s *StaleBookingSweeper) Start(ctx context.Context) {
	logger.Info("失効予約スイーパー開始",
		zap.Duration("interval", s.interval),
		zap.Duration("session_grace", s.sessionGrace),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("失効予約スイーパー停止（コンテキストキャンセル）")
			return
		case <-s.stopCh:
			logger.Info("失効予約スイーパー停止（シグナル受信）")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop はスイーパーを停止
func (s *StaleBookingSweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// sweep は失効した仮予約をキャンセル
func (s *StaleBookingSweeper) sweep(ctx context.Context) {
	log := logger.Get()
	log.Debug("失効予約の回収開始")

	count, err := s.bookingService.CancelExpiredBookings(ctx, s.sessionGrace)
	if err != nil {
		log.Error("失効予約の回収失敗", zap.Error(err))
		return
	}

	if count > 0 {
		log.Info("失効した仮予約をキャンセル", zap.Int("count", count))
	} else {
		log.Debug("失効予約なし")
	}
}
