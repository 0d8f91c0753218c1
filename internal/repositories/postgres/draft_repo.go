package postgres

import (
	"context"
	"errors"

	"github.com/clipwise/clipwise/internal/models"
	"github.com/clipwise/clipwise/internal/utils"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type DraftRepo interface {
	Insert(ctx context.Context, d *models.Draft) error
	GetByID(ctx context.Context, id string) (*models.Draft, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]models.Draft, error)
	// Similar returns drafts nearest to embedding by cosine distance.
	Similar(ctx context.Context, embedding []float32, limit int) ([]models.Draft, error)
}

type draftRepo struct {
	db *gorm.DB
}

func NewDraftRepo(db *gorm.DB) DraftRepo {
	return &draftRepo{db: db}
}

func (r *draftRepo) Insert(ctx context.Context, d *models.Draft) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *draftRepo) GetByID(ctx context.Context, id string) (*models.Draft, error) {
	var row models.Draft
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *draftRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]models.Draft, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []models.Draft
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *draftRepo) Similar(ctx context.Context, embedding []float32, limit int) ([]models.Draft, error) {
	if limit <= 0 {
		limit = 10
	}

	var rows []models.Draft
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM drafts WHERE embedding IS NOT NULL
		     ORDER BY embedding <=> ? LIMIT ?`,
			pgvector.NewVector(embedding), limit).
		Scan(&rows).Error
	return rows, err
}
