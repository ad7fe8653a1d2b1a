package service

import (
	"context"
	"time"

	"github.com/abdikee/fejrul-islam-sub000/internal/logger"
)

// Записи держим сутки после истечения срока: они уже не живые, но
// остаются следом для разбирательств.
const cleanupRetention = 24 * time.Hour

// CleanupService периодически удаляет давно просроченные коды.
// Это уборка, а не часть контракта верификации: сбой чистки ни на что
// не влияет, кроме размера таблицы.
type CleanupService struct {
	codes    CodeStore
	interval time.Duration
}

// NewCleanupService создаёт сервис фоновой чистки.
func NewCleanupService(codes CodeStore, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupService{codes: codes, interval: interval}
}

// Run крутит цикл чистки до отмены контекста.
func (s *CleanupService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *CleanupService) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-cleanupRetention)

	deleted, err := s.codes.PurgeExpiredBefore(ctx, cutoff)
	if err != nil {
		if logger.Log != nil {
			logger.Log.WithField("error", err.Error()).Warn("cleanup: не удалось удалить просроченные коды")
		}
		return
	}

	if deleted > 0 && logger.Log != nil {
		logger.Log.WithField("deleted", deleted).Debug("cleanup: просроченные коды удалены")
	}
}
