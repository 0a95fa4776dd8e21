package repositoryimpl

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kazz187/devguild/internal/database"
	"github.com/kazz187/devguild/internal/task"
)

type taskRow struct {
	ID                 string          `gorm:"primaryKey;size:26"`
	Title              string          `gorm:"size:200;not null"`
	Description        string          `gorm:"type:text"`
	Department         string          `gorm:"size:100;index"`
	Category           string          `gorm:"size:32;index"`
	Complexity         string          `gorm:"size:16;index"`
	Compensation       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Requirements       []string        `gorm:"type:text;serializer:json"`
	AcceptanceCriteria []string        `gorm:"type:text;serializer:json"`
	ParentTaskID       string          `gorm:"size:26;index"`
	SubtaskIDs         []string        `gorm:"type:text;serializer:json"`
	CreatedBy          string          `gorm:"size:64"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (taskRow) TableName() string { return "tasks" }

func toRow(t *task.Task) *taskRow {
	return &taskRow{
		ID:                 t.ID,
		Title:              t.Title,
		Description:        t.Description,
		Department:         t.Department,
		Category:           string(t.Category),
		Complexity:         string(t.Complexity),
		Compensation:       t.Compensation,
		Requirements:       t.Requirements,
		AcceptanceCriteria: t.AcceptanceCriteria,
		ParentTaskID:       t.ParentTaskID,
		SubtaskIDs:         t.SubtaskIDs,
		CreatedBy:          t.CreatedBy,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func (r *taskRow) toEntity() *task.Task {
	return &task.Task{
		ID:                 r.ID,
		Title:              r.Title,
		Description:        r.Description,
		Department:         r.Department,
		Category:           task.Category(r.Category),
		Complexity:         task.Complexity(r.Complexity),
		Compensation:       r.Compensation,
		Requirements:       r.Requirements,
		AcceptanceCriteria: r.AcceptanceCriteria,
		ParentTaskID:       r.ParentTaskID,
		SubtaskIDs:         r.SubtaskIDs,
		CreatedBy:          r.CreatedBy,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&taskRow{})
}

func (r *GormRepository) Create(ctx context.Context, t *task.Task) error {
	if err := r.db.WithContext(ctx).Create(toRow(t)).Error; err != nil {
		return database.WrapWriteError("task", err)
	}
	return nil
}

func (r *GormRepository) Get(ctx context.Context, id string) (*task.Task, error) {
	var row taskRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, database.WrapReadError("task", err)
	}
	return row.toEntity(), nil
}

func (r *GormRepository) List(ctx context.Context, filter task.ListFilter) ([]*task.Task, int, error) {
	q := r.db.WithContext(ctx).Model(&taskRow{})
	if filter.Category != "" {
		q = q.Where("category = ?", string(filter.Category))
	}
	if filter.Complexity != "" {
		q = q.Where("complexity = ?", string(filter.Complexity))
	}
	if filter.Department != "" {
		q = q.Where("department = ?", filter.Department)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, database.WrapReadError("tasks", err)
	}

	q = q.Order("id").Offset(filter.Offset)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []taskRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, database.WrapReadError("tasks", err)
	}
	tasks := make([]*task.Task, len(rows))
	for i := range rows {
		tasks[i] = rows[i].toEntity()
	}
	return tasks, int(total), nil
}

func (r *GormRepository) Update(ctx context.Context, t *task.Task) error {
	res := r.db.WithContext(ctx).Select("*").Omit("created_at").Where("id = ?", t.ID).Updates(toRow(t))
	if res.Error != nil {
		return database.WrapWriteError("task", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.WrapReadError("task", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *GormRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&taskRow{}, "id = ?", id)
	if res.Error != nil {
		return database.WrapWriteError("task", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.WrapReadError("task", gorm.ErrRecordNotFound)
	}
	return nil
}
