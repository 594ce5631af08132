package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/storage"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// DefaultExhaustedListLimit caps ListExhausted when no limit is given.
const DefaultExhaustedListLimit = 100

// ExhaustedService keeps the events that the DLQ worker gave up on.
type ExhaustedService struct {
	repo storage.ExhaustedEventRepo
	now  Clock
}

// NewExhaustedService creates an ExhaustedService.
func NewExhaustedService(repos storage.Repositories, now Clock) *ExhaustedService {
	return &ExhaustedService{repo: repos.Exhausted, now: now}
}

// SaveExhaustedEvent stores a DLQ payload that ran out of retries.
func (s *ExhaustedService) SaveExhaustedEvent(ctx context.Context, workspaceID string, payload model.DLQPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal dlq payload: %w", apperrors.ErrBadRequest, err)
	}
	event := model.ExhaustedEvent{
		CreatedAt:      s.now(),
		WorkspaceID:    workspaceID,
		SourceSubject:  payload.SourceSubject,
		LastError:      payload.Error,
		RetryCount:     int(payload.RetryCount),
		EventTimestamp: payload.Timestamp,
		DLQPayload:     datatypes.JSON(raw),
	}
	if len(payload.OriginalPayload) > 0 && json.Valid(payload.OriginalPayload) {
		event.OriginalPayload = datatypes.JSON(payload.OriginalPayload)
	}

	if err := s.repo.Save(ctx, event); err != nil {
		return err
	}
	logger.FromContext(ctx).Warn("Event exhausted all retries",
		zap.String("source_subject", payload.SourceSubject),
		zap.Uint64("retry_count", payload.RetryCount),
		zap.String("last_error", payload.Error),
	)
	return nil
}

// ListExhausted returns unresolved exhausted events, oldest first.
func (s *ExhaustedService) ListExhausted(ctx context.Context, limit int) ([]model.ExhaustedEvent, error) {
	if limit <= 0 || limit > DefaultExhaustedListLimit {
		limit = DefaultExhaustedListLimit
	}
	return s.repo.ListUnresolved(ctx, limit)
}
