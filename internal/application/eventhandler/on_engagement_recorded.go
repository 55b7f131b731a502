// Package eventhandler содержит обработчики доменных событий.
// Обработчики - реактивная часть системы: они запускают побочные
// эффекты в ответ на изменения, не блокируя того, кто событие породил.
package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/study-match/internal/domain/profile"
	"github.com/alem-hub/study-match/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ENGAGEMENT RECORDED HANDLER
// Пересчитывает статистику обоих участников пары, как только чат
// прислал новый сигнал. Плановый полный пересчёт остаётся страховкой.
// ═══════════════════════════════════════════════════════════════════════════

// StatsRecomputer - пересчёт статистики одного пользователя.
type StatsRecomputer interface {
	Recompute(ctx context.Context, userID string) (profile.MatchStats, error)
}

// EngagementRecordedConfig содержит конфигурацию обработчика.
type EngagementRecordedConfig struct {
	// Timeout - ограничение на пересчёт по одному событию.
	Timeout time.Duration

	// Enabled - выключатель пересчёта по событиям. nil - включён.
	Enabled func() bool
}

// DefaultEngagementRecordedConfig возвращает конфигурацию по умолчанию.
func DefaultEngagementRecordedConfig() EngagementRecordedConfig {
	return EngagementRecordedConfig{
		Timeout: 30 * time.Second,
	}
}

// OnEngagementRecordedHandler обрабатывает событие нового сигнала вовлечённости.
type OnEngagementRecordedHandler struct {
	stats  StatsRecomputer
	logger *slog.Logger
	config EngagementRecordedConfig
}

// NewOnEngagementRecordedHandler создаёт обработчик.
func NewOnEngagementRecordedHandler(stats StatsRecomputer, logger *slog.Logger, config EngagementRecordedConfig) *OnEngagementRecordedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultEngagementRecordedConfig().Timeout
	}
	return &OnEngagementRecordedHandler{
		stats:  stats,
		logger: logger.With("handler", "on_engagement_recorded"),
		config: config,
	}
}

// Handle обрабатывает событие.
// Реализует интерфейс shared.EventHandler.
func (h *OnEngagementRecordedHandler) Handle(event shared.Event) error {
	recorded, ok := event.(shared.EngagementRecordedEvent)
	if !ok {
		h.logger.Warn("received non-EngagementRecordedEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	if h.config.Enabled != nil && !h.config.Enabled() {
		h.logger.Debug("message-driven stats disabled, skipping",
			"pairing_id", recorded.AggregateID(),
		)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	// Пересчитываем обоих участников, даже если один из них упал.
	var errs []error
	for _, userID := range recorded.UserIDs {
		if _, err := h.stats.Recompute(ctx, userID); err != nil {
			h.logger.Error("failed to recompute stats",
				"user_id", userID,
				"pairing_id", recorded.AggregateID(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("recompute %s: %w", userID, err))
		}
	}

	return errors.Join(errs...)
}
