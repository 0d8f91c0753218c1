package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/clipwise/clipwise/internal/agents"
	"github.com/clipwise/clipwise/internal/models"
	"github.com/clipwise/clipwise/internal/providers/llm"
	pgrepo "github.com/clipwise/clipwise/internal/repositories/postgres"
	"github.com/clipwise/clipwise/internal/utils"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

type DraftService interface {
	Persist(ctx context.Context, sessionID, agent string, out agents.Output, status string, issues []models.ValidationIssue) (*models.Draft, error)
	Get(ctx context.Context, id string) (*models.Draft, error)
	List(ctx context.Context, sessionID string, limit int) ([]models.Draft, error)
	Related(ctx context.Context, id string, limit int) ([]models.Draft, error)
}

type draftService struct {
	drafts pgrepo.DraftRepo
	llm    llm.Provider
	log    *logrus.Entry
}

func NewDraftService(drafts pgrepo.DraftRepo, provider llm.Provider, log *logrus.Logger) DraftService {
	if log == nil {
		log = logrus.New()
	}
	return &draftService{drafts: drafts, llm: provider, log: log.WithField("component", "draft_service")}
}

type draftMetadata struct {
	Issues []models.ValidationIssue `json:"issues,omitempty"`
	Refs   []string                 `json:"refs,omitempty"`
	Meta   map[string]string        `json:"meta,omitempty"`
}

func (s *draftService) Persist(ctx context.Context, sessionID, agent string, out agents.Output, status string, issues []models.ValidationIssue) (*models.Draft, error) {
	const op = "DraftService.Persist"

	if sessionID == "" || out.Text == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id and text are required", nil)
	}

	md, err := json.Marshal(draftMetadata{Issues: issues, Refs: out.Refs, Meta: out.Meta})
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode metadata", err)
	}

	d := &models.Draft{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		Agent:            agent,
		Category:         out.Category,
		Title:            out.Title,
		Text:             out.Text,
		ValidationStatus: status,
		Metadata:         datatypes.JSON(md),
		CreatedAt:        time.Now().UTC(),
	}

	// Embedding is best effort; a draft without one is still a draft.
	if s.llm != nil {
		if vec, err := s.llm.Embed(ctx, out.Text); err != nil {
			s.log.WithError(err).WithField("session_id", sessionID).Warn("draft embedding failed")
		} else if len(vec) > 0 {
			d.Embedding = pgvector.NewVector(vec)
		}
	}

	if err := s.drafts.Insert(ctx, d); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to insert draft", err)
	}
	return d, nil
}

func (s *draftService) Get(ctx context.Context, id string) (*models.Draft, error) {
	const op = "DraftService.Get"

	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "id is required", nil)
	}
	d, err := s.drafts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "draft not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get draft", err)
	}
	return d, nil
}

func (s *draftService) List(ctx context.Context, sessionID string, limit int) ([]models.Draft, error) {
	const op = "DraftService.List"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	out, err := s.drafts.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list drafts", err)
	}
	return out, nil
}

// Related finds drafts with embeddings nearest to the given draft's.
func (s *draftService) Related(ctx context.Context, id string, limit int) ([]models.Draft, error) {
	const op = "DraftService.Related"

	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	vec := d.Embedding.Slice()
	if len(vec) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "draft has no embedding", nil)
	}
	out, err := s.drafts.Similar(ctx, vec, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed vector search", err)
	}

	// Drop the anchor draft itself from results.
	filtered := out[:0]
	for _, o := range out {
		if o.ID != id {
			filtered = append(filtered, o)
		}
	}
	return filtered, nil
}
