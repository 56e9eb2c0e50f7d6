package repository

import (
	"time"

	"github.com/afshinator/BatchSMS/internal/model"
)

type RunEntity struct {
	ID           int64            `db:"id"            gorm:"primaryKey;autoIncrement;column:id"`
	RunID        string           `db:"run_id"        gorm:"column:run_id;not null;uniqueIndex"`
	StartedAt    time.Time        `db:"started_at"    gorm:"column:started_at;not null"`
	FinishedAt   time.Time        `db:"finished_at"   gorm:"column:finished_at;not null"`
	WasCancelled bool             `db:"was_cancelled" gorm:"column:was_cancelled;not null;default:false"`
	CreatedAt    time.Time        `db:"created_at"    gorm:"column:created_at;autoCreateTime"`
	Items        []*RunItemEntity `gorm:"foreignKey:RunID;references:RunID"`
}

func (RunEntity) TableName() string {
	return "runs"
}

type RunItemEntity struct {
	ID       int64  `db:"id"       gorm:"primaryKey;autoIncrement;column:id"`
	RunID    string `db:"run_id"   gorm:"column:run_id;not null;index"`
	Position int    `db:"position" gorm:"column:position;not null"`
	Name     string `db:"name"     gorm:"column:name;not null"`
	Phone    string `db:"phone"    gorm:"column:phone;not null"`
	Status   string `db:"status"   gorm:"column:status;not null"`
}

func (RunItemEntity) TableName() string {
	return "run_items"
}

func toRunEntity(r *model.RunReport) *RunEntity {
	if r == nil {
		return nil
	}
	items := make([]*RunItemEntity, len(r.Items))
	for i, it := range r.Items {
		items[i] = &RunItemEntity{
			RunID:    r.RunID,
			Position: it.Position,
			Name:     it.Name,
			Phone:    it.Phone,
			Status:   string(it.Status),
		}
	}
	return &RunEntity{
		RunID:        r.RunID,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		WasCancelled: r.WasCancelled,
		Items:        items,
	}
}

func toRunModel(e *RunEntity) *model.RunReport {
	if e == nil {
		return nil
	}
	items := make([]model.RunItemReport, len(e.Items))
	for i, it := range e.Items {
		items[i] = model.RunItemReport{
			Position: it.Position,
			Name:     it.Name,
			Phone:    it.Phone,
			Status:   model.RecipientStatus(it.Status),
		}
	}
	return &model.RunReport{
		RunID:        e.RunID,
		StartedAt:    e.StartedAt,
		FinishedAt:   e.FinishedAt,
		WasCancelled: e.WasCancelled,
		Items:        items,
	}
}

func toRunModels(entities []*RunEntity) []*model.RunReport {
	if entities == nil {
		return nil
	}
	models := make([]*model.RunReport, len(entities))
	for i, e := range entities {
		models[i] = toRunModel(e)
	}
	return models
}
