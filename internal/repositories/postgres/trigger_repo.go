package postgres

import (
	"context"
	"errors"

	"github.com/clipwise/clipwise/internal/models"
	"github.com/clipwise/clipwise/internal/utils"
	"gorm.io/gorm"
)

type TriggerRepo interface {
	Insert(ctx context.Context, t *models.AudioTrigger) error
	Update(ctx context.Context, t *models.AudioTrigger) error
	GetByID(ctx context.Context, id string) (*models.AudioTrigger, error)
	ListByWorkflow(ctx context.Context, workflow string, enabledOnly bool) ([]models.AudioTrigger, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

type triggerRepo struct {
	db *gorm.DB
}

func NewTriggerRepo(db *gorm.DB) TriggerRepo {
	return &triggerRepo{db: db}
}

func (r *triggerRepo) Insert(ctx context.Context, t *models.AudioTrigger) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *triggerRepo) Update(ctx context.Context, t *models.AudioTrigger) error {
	return r.db.WithContext(ctx).Save(t).Error
}

func (r *triggerRepo) GetByID(ctx context.Context, id string) (*models.AudioTrigger, error) {
	var row models.AudioTrigger
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *triggerRepo) ListByWorkflow(ctx context.Context, workflow string, enabledOnly bool) ([]models.AudioTrigger, error) {
	q := r.db.WithContext(ctx).Where("workflow = ?", workflow)
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}

	var rows []models.AudioTrigger
	err := q.Order("created_at ASC").Find(&rows).Error
	return rows, err
}

func (r *triggerRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res := r.db.WithContext(ctx).
		Model(&models.AudioTrigger{}).
		Where("id = ?", id).
		Update("enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}
