package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/afshinator/BatchSMS/internal/model"
	"github.com/afshinator/BatchSMS/pkg/pg"
)

var (
	// ErrNotFound is returned when a run does not exist.
	ErrNotFound = errors.New("run not found")
)

type RunRepository struct {
	*pg.DB
}

func NewRunRepository(db *pg.DB) *RunRepository {
	return &RunRepository{
		db,
	}
}

// Create persists a settled run together with the outcome of every item.
func (r *RunRepository) Create(ctx context.Context, report *model.RunReport) (*model.RunReport, error) {
	entity := toRunEntity(report)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toRunModel(entity), nil
}

// Record satisfies the send recorder contract.
func (r *RunRepository) Record(ctx context.Context, report model.RunReport) error {
	_, err := r.Create(ctx, &report)
	return err
}

func (r *RunRepository) Get(ctx context.Context, runID string) (*model.RunReport, error) {
	var entity RunEntity
	err := r.Read(ctx).WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("run_id = ?", runID).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toRunModel(&entity), nil
}

func (r *RunRepository) List(ctx context.Context, f model.RunFilter) ([]*model.RunReport, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&RunEntity{})

	if f.From != nil {
		q = q.Where("started_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("started_at < ?", *f.To)
	}
	if f.Cancelled != nil {
		q = q.Where("was_cancelled = ?", *f.Cancelled)
	}

	// Count before pagination
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "started_at"
	if f.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*RunEntity
	err := q.Order(order).Limit(limit).Offset(offset).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Find(&entities).Error
	if err != nil {
		return nil, 0, err
	}

	return toRunModels(entities), total, nil
}
