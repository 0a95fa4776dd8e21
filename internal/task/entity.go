package task

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryNewFeature   Category = "NEW_FEATURE"
	CategoryBugFix       Category = "BUG_FIX"
	CategoryIntegration  Category = "INTEGRATION"
	CategoryAutomation   Category = "AUTOMATION"
	CategoryOptimization Category = "OPTIMIZATION"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryNewFeature, CategoryBugFix, CategoryIntegration, CategoryAutomation, CategoryOptimization:
		return true
	}
	return false
}

type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

func (c Complexity) Valid() bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
		return true
	}
	return false
}

type Task struct {
	ID                 string          `yaml:"id" json:"id"`
	Title              string          `yaml:"title" json:"title"`
	Description        string          `yaml:"description" json:"description"`
	Department         string          `yaml:"department" json:"department"`
	Category           Category        `yaml:"category" json:"category"`
	Complexity         Complexity      `yaml:"complexity" json:"complexity"`
	Compensation       decimal.Decimal `yaml:"compensation" json:"compensation"`
	Requirements       []string        `yaml:"requirements" json:"requirements"`
	AcceptanceCriteria []string        `yaml:"acceptance_criteria" json:"acceptance_criteria"`
	ParentTaskID       string          `yaml:"parent_task_id,omitempty" json:"parent_task_id,omitempty"`
	SubtaskIDs         []string        `yaml:"subtask_ids,omitempty" json:"subtask_ids,omitempty"`
	CreatedBy          string          `yaml:"created_by" json:"created_by"`
	CreatedAt          time.Time       `yaml:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `yaml:"updated_at" json:"updated_at"`
}
