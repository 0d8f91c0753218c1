package services

import (
	"context"
	"errors"

	"github.com/clipwise/clipwise/internal/models"
	pgrepo "github.com/clipwise/clipwise/internal/repositories/postgres"
	"github.com/clipwise/clipwise/internal/utils"
)

type ClipService interface {
	Get(ctx context.Context, id string) (*models.Clip, error)
	List(ctx context.Context, sessionID string, limit int) ([]models.Clip, error)
}

type clipService struct {
	clips pgrepo.ClipRepo
}

func NewClipService(clips pgrepo.ClipRepo) ClipService {
	return &clipService{clips: clips}
}

func (s *clipService) Get(ctx context.Context, id string) (*models.Clip, error) {
	const op = "ClipService.Get"

	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "id is required", nil)
	}
	c, err := s.clips.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "clip not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get clip", err)
	}
	return c, nil
}

func (s *clipService) List(ctx context.Context, sessionID string, limit int) ([]models.Clip, error) {
	const op = "ClipService.List"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	out, err := s.clips.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list clips", err)
	}
	return out, nil
}
