package services

import (
	"context"
	"errors"
	"time"

	"github.com/clipwise/clipwise/internal/cache"
	"github.com/clipwise/clipwise/internal/models"
	pgrepo "github.com/clipwise/clipwise/internal/repositories/postgres"
	"github.com/clipwise/clipwise/internal/utils"

	"github.com/google/uuid"
)

const triggerCacheTTL = 5 * time.Minute

type TriggerService interface {
	Create(ctx context.Context, workflow, phrase string, caseSensitive bool) (*models.AudioTrigger, error)
	Update(ctx context.Context, id, phrase string, caseSensitive bool) (*models.AudioTrigger, error)
	Get(ctx context.Context, id string) (*models.AudioTrigger, error)
	List(ctx context.Context, workflow string) ([]models.AudioTrigger, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// Enabled serves the detection engine's per-session load, Redis-cached.
	Enabled(ctx context.Context, workflow string) ([]models.AudioTrigger, error)
}

type triggerService struct {
	triggers pgrepo.TriggerRepo
	cache    cache.Cache
}

func NewTriggerService(triggers pgrepo.TriggerRepo, c cache.Cache) TriggerService {
	return &triggerService{triggers: triggers, cache: c}
}

func triggerCacheKey(workflow string) string {
	return "triggers:enabled:" + workflow
}

func (s *triggerService) Create(ctx context.Context, workflow, phrase string, caseSensitive bool) (*models.AudioTrigger, error) {
	const op = "TriggerService.Create"

	if !models.ValidWorkflow(workflow) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "unknown workflow", nil)
	}
	if phrase == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "phrase is required", nil)
	}

	now := time.Now().UTC()
	t := &models.AudioTrigger{
		ID:            uuid.NewString(),
		Workflow:      workflow,
		Phrase:        phrase,
		Enabled:       true,
		CaseSensitive: caseSensitive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.triggers.Insert(ctx, t); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create trigger", err)
	}
	s.invalidate(ctx, workflow)
	return t, nil
}

func (s *triggerService) Update(ctx context.Context, id, phrase string, caseSensitive bool) (*models.AudioTrigger, error) {
	const op = "TriggerService.Update"

	if phrase == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "phrase is required", nil)
	}
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	t.Phrase = phrase
	t.CaseSensitive = caseSensitive
	t.UpdatedAt = time.Now().UTC()
	if err := s.triggers.Update(ctx, t); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to update trigger", err)
	}
	s.invalidate(ctx, t.Workflow)
	return t, nil
}

func (s *triggerService) Get(ctx context.Context, id string) (*models.AudioTrigger, error) {
	const op = "TriggerService.Get"

	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "id is required", nil)
	}
	t, err := s.triggers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "trigger not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get trigger", err)
	}
	return t, nil
}

func (s *triggerService) List(ctx context.Context, workflow string) ([]models.AudioTrigger, error) {
	const op = "TriggerService.List"

	out, err := s.triggers.ListByWorkflow(ctx, workflow, false)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list triggers", err)
	}
	return out, nil
}

func (s *triggerService) SetEnabled(ctx context.Context, id string, enabled bool) error {
	const op = "TriggerService.SetEnabled"

	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.triggers.SetEnabled(ctx, id, enabled); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to set enabled", err)
	}
	s.invalidate(ctx, t.Workflow)
	return nil
}

func (s *triggerService) Enabled(ctx context.Context, workflow string) ([]models.AudioTrigger, error) {
	const op = "TriggerService.Enabled"

	key := triggerCacheKey(workflow)
	if s.cache != nil {
		var cached []models.AudioTrigger
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	out, err := s.triggers.ListByWorkflow(ctx, workflow, true)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load enabled triggers", err)
	}
	if s.cache != nil {
		// Best effort; a cache write failure never fails the load.
		_ = s.cache.SetJSON(ctx, key, out, triggerCacheTTL)
	}
	return out, nil
}

func (s *triggerService) invalidate(ctx context.Context, workflow string) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, triggerCacheKey(workflow))
	}
}
