package services

import (
	"context"
	"errors"
	"time"

	"github.com/clipwise/clipwise/internal/models"
	mongorepo "github.com/clipwise/clipwise/internal/repositories/mongo"
	"github.com/clipwise/clipwise/internal/utils"

	"github.com/google/uuid"
)

type QueueService interface {
	// Enqueue persists a new item. Incoming items always enter as pending.
	Enqueue(ctx context.Context, item *models.ClipQueueItem) error
	// EnqueueManual creates a pending item from an operator-placed marker.
	EnqueueManual(ctx context.Context, sessionID, label string, start float64, end *float64) (*models.ClipQueueItem, error)
	Get(ctx context.Context, itemID string) (*models.ClipQueueItem, error)
	List(ctx context.Context, sessionID string, limit int64) ([]models.ClipQueueItem, error)
}

type queueService struct {
	queue mongorepo.ClipQueueRepository
}

func NewQueueService(queue mongorepo.ClipQueueRepository) QueueService {
	return &queueService{queue: queue}
}

func (s *queueService) Enqueue(ctx context.Context, item *models.ClipQueueItem) error {
	const op = "QueueService.Enqueue"

	if item == nil || item.SessionID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	if item.ItemID == "" {
		item.ItemID = uuid.NewString()
	}
	item.Status = models.QueueStatusPending
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if err := s.queue.Insert(ctx, item); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to enqueue item", err)
	}
	return nil
}

func (s *queueService) EnqueueManual(ctx context.Context, sessionID, label string, start float64, end *float64) (*models.ClipQueueItem, error) {
	const op = "QueueService.EnqueueManual"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	if start < 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "start must be non-negative", nil)
	}
	if end != nil && *end <= start {
		return nil, utils.E(utils.CodeInvalidArgument, op, "end must be after start", nil)
	}
	if label == "" {
		label = "marker"
	}

	item := &models.ClipQueueItem{
		ItemID:        uuid.NewString(),
		SessionID:     sessionID,
		TriggerType:   label,
		TriggerSource: models.TriggerSourceManual,
		Start:         start,
		End:           end,
		Status:        models.QueueStatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.queue.Insert(ctx, item); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to enqueue marker", err)
	}
	return item, nil
}

func (s *queueService) Get(ctx context.Context, itemID string) (*models.ClipQueueItem, error) {
	const op = "QueueService.Get"

	if itemID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "item_id is required", nil)
	}
	item, err := s.queue.GetByItemID(ctx, itemID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "queue item not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get queue item", err)
	}
	return item, nil
}

func (s *queueService) List(ctx context.Context, sessionID string, limit int64) ([]models.ClipQueueItem, error) {
	const op = "QueueService.List"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	out, err := s.queue.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list queue", err)
	}
	return out, nil
}
