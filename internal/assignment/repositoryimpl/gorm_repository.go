package repositoryimpl

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/kazz187/devguild/internal/assignment"
	"github.com/kazz187/devguild/internal/database"
	"github.com/kazz187/devguild/internal/task"
	"github.com/kazz187/devguild/pkg/cerr"
)

// assignmentRow.ActiveTaskKey holds the task id while the assignment is
// active and NULL otherwise; its unique index is what guarantees a single
// active assignment per task.
type assignmentRow struct {
	ID                string    `gorm:"primaryKey;size:26"`
	TaskID            string    `gorm:"size:26;index;not null"`
	CandidateID       string    `gorm:"size:64;index;not null"`
	ActiveTaskKey     *string   `gorm:"size:26;uniqueIndex"`
	Complexity        string    `gorm:"size:16;not null"`
	Status            string    `gorm:"size:16;index;not null"`
	StartDate         time.Time `gorm:"not null"`
	DueDate           time.Time `gorm:"not null"`
	CompletedDate     *time.Time
	Evaluation        *assignment.Evaluation `gorm:"type:text;serializer:json"`
	WorkspaceID       string                 `gorm:"size:128"`
	WorkspaceServerID string                 `gorm:"size:64"`
	WorkspacePath     string                 `gorm:"size:255"`
	SlotReservationID string                 `gorm:"size:26"`
	Version           int64                  `gorm:"not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (assignmentRow) TableName() string { return "assignments" }

func activeKey(a *assignment.Assignment) *string {
	if !a.Status.IsActive() {
		return nil
	}
	key := a.TaskID
	return &key
}

func toRow(a *assignment.Assignment) *assignmentRow {
	row := &assignmentRow{
		ID:                a.ID,
		TaskID:            a.TaskID,
		CandidateID:       a.CandidateID,
		ActiveTaskKey:     activeKey(a),
		Complexity:        string(a.Complexity),
		Status:            string(a.Status),
		StartDate:         a.StartDate,
		DueDate:           a.DueDate,
		CompletedDate:     a.CompletedDate,
		Evaluation:        a.Evaluation,
		SlotReservationID: a.SlotReservationID,
		Version:           a.Version,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
	if a.Workspace != nil {
		row.WorkspaceID = a.Workspace.ID
		row.WorkspaceServerID = a.Workspace.ServerID
		row.WorkspacePath = a.Workspace.Path
	}
	return row
}

func (r *assignmentRow) toEntity() *assignment.Assignment {
	a := &assignment.Assignment{
		ID:                r.ID,
		TaskID:            r.TaskID,
		CandidateID:       r.CandidateID,
		Complexity:        task.Complexity(r.Complexity),
		Status:            assignment.Status(r.Status),
		StartDate:         r.StartDate,
		DueDate:           r.DueDate,
		CompletedDate:     r.CompletedDate,
		Evaluation:        r.Evaluation,
		SlotReservationID: r.SlotReservationID,
		Version:           r.Version,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.WorkspaceID != "" {
		a.Workspace = &assignment.WorkspaceRef{ID: r.WorkspaceID, ServerID: r.WorkspaceServerID, Path: r.WorkspacePath}
	}
	return a
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&assignmentRow{})
}

func (r *GormRepository) CreateActive(ctx context.Context, a *assignment.Assignment) error {
	a.Version = 1
	err := r.db.WithContext(ctx).Create(toRow(a)).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		if active, hasErr := r.HasActive(ctx, a.TaskID); hasErr == nil && active {
			return assignment.ErrTaskUnavailable(a.TaskID)
		}
	}
	return database.WrapWriteError("assignment", err)
}

func (r *GormRepository) Get(ctx context.Context, id string) (*assignment.Assignment, error) {
	var row assignmentRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, database.WrapReadError("assignment", err)
	}
	return row.toEntity(), nil
}

func (r *GormRepository) List(ctx context.Context, filter assignment.ListFilter) ([]*assignment.Assignment, int, error) {
	q := r.db.WithContext(ctx).Model(&assignmentRow{})
	if filter.TaskID != "" {
		q = q.Where("task_id = ?", filter.TaskID)
	}
	if filter.CandidateID != "" {
		q = q.Where("candidate_id = ?", filter.CandidateID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, database.WrapReadError("assignments", err)
	}
	q = q.Order("id").Offset(filter.Offset)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []assignmentRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, database.WrapReadError("assignments", err)
	}
	out := make([]*assignment.Assignment, len(rows))
	for i := range rows {
		out[i] = rows[i].toEntity()
	}
	return out, int(total), nil
}

func (r *GormRepository) Update(ctx context.Context, a *assignment.Assignment) error {
	row := toRow(a)
	row.Version = a.Version + 1
	res := r.db.WithContext(ctx).
		Model(&assignmentRow{ID: a.ID}).
		Where("version = ?", a.Version).
		Select("*").Omit("id", "created_at").
		Updates(row)
	if res.Error != nil {
		return database.WrapWriteError("assignment", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, a.ID); err != nil {
			return err
		}
		return assignment.ErrConcurrentModification("assignment", a.ID)
	}
	a.Version = row.Version
	return nil
}

func (r *GormRepository) HasActive(ctx context.Context, taskID string) (bool, error) {
	return r.exists(ctx, "active_task_key = ?", taskID)
}

func (r *GormRepository) HasNonCancelled(ctx context.Context, taskID string) (bool, error) {
	return r.exists(ctx, "task_id = ? AND status <> ?", taskID, string(assignment.StatusCancelled))
}

func (r *GormRepository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&assignmentRow{}).Where(query, args...).Limit(1).Count(&n).Error; err != nil {
		return false, cerr.NewError(cerr.Internal, "server error", err)
	}
	return n > 0, nil
}
