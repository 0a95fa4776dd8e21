package assignment

import (
	"time"

	"github.com/kazz187/devguild/internal/task"
)

type Status string

const (
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAssigned, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the assignment still holds its task.
func (s Status) IsActive() bool {
	return s == StatusAssigned || s == StatusInProgress
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var transitions = map[Status][]Status{
	StatusAssigned:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// WorkspaceRef points at the provisioned workspace backing an assignment.
type WorkspaceRef struct {
	ID       string `yaml:"id" json:"id"`
	ServerID string `yaml:"server_id" json:"server_id"`
	Path     string `yaml:"path" json:"path"`
}

type Assignment struct {
	ID          string `yaml:"id" json:"id"`
	TaskID      string `yaml:"task_id" json:"task_id"`
	CandidateID string `yaml:"candidate_id" json:"candidate_id"`
	// Complexity is copied from the task at assignment time so later task
	// edits do not move due dates or payment amounts.
	Complexity        task.Complexity `yaml:"complexity" json:"complexity"`
	Status            Status          `yaml:"status" json:"status"`
	StartDate         time.Time       `yaml:"start_date" json:"start_date"`
	DueDate           time.Time       `yaml:"due_date" json:"due_date"`
	CompletedDate     *time.Time      `yaml:"completed_date,omitempty" json:"completed_date,omitempty"`
	Evaluation        *Evaluation     `yaml:"evaluation,omitempty" json:"evaluation,omitempty"`
	Workspace         *WorkspaceRef   `yaml:"workspace,omitempty" json:"workspace,omitempty"`
	SlotReservationID string          `yaml:"slot_reservation_id,omitempty" json:"-"`
	Version           int64           `yaml:"version" json:"version"`
	CreatedAt         time.Time       `yaml:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `yaml:"updated_at" json:"updated_at"`
}

var dueDays = map[task.Complexity]int{
	task.ComplexityLow:    3,
	task.ComplexityMedium: 5,
	task.ComplexityHigh:   10,
}

// DueDate is start plus 3, 5 or 10 calendar days for low, medium and high.
// Unknown complexities get the low allowance.
func DueDate(start time.Time, c task.Complexity) time.Time {
	days, ok := dueDays[c]
	if !ok {
		days = dueDays[task.ComplexityLow]
	}
	return start.AddDate(0, 0, days)
}
