package postgres

import (
	"context"
	"errors"

	"github.com/clipwise/clipwise/internal/models"
	"github.com/clipwise/clipwise/internal/utils"
	"gorm.io/gorm"
)

type ClipRepo interface {
	Insert(ctx context.Context, clip *models.Clip) error
	GetByID(ctx context.Context, id string) (*models.Clip, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]models.Clip, error)
}

type clipRepo struct {
	db *gorm.DB
}

func NewClipRepo(db *gorm.DB) ClipRepo {
	return &clipRepo{db: db}
}

func (r *clipRepo) Insert(ctx context.Context, clip *models.Clip) error {
	return r.db.WithContext(ctx).Create(clip).Error
}

func (r *clipRepo) GetByID(ctx context.Context, id string) (*models.Clip, error) {
	var row models.Clip
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *clipRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]models.Clip, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []models.Clip
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
