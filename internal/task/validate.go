package task

import (
	"github.com/kazz187/devguild/pkg/cerr"
)

const maxTitleLen = 200

// Validate checks the fields an admin supplies. All violations are reported
// together on a single InvalidArgument error.
func (t *Task) Validate() error {
	verr := cerr.NewError(cerr.InvalidArgument, "invalid task", nil)
	if t.Title == "" {
		verr.AddViolation("title", "required", "title is required")
	} else if len([]rune(t.Title)) > maxTitleLen {
		verr.AddViolation("title", "max_len", "title must be at most 200 characters")
	}
	if !t.Category.Valid() {
		verr.AddViolation("category", "in", "category must be one of NEW_FEATURE, BUG_FIX, INTEGRATION, AUTOMATION, OPTIMIZATION")
	}
	if !t.Complexity.Valid() {
		verr.AddViolation("complexity", "in", "complexity must be low, medium or high")
	}
	if t.Compensation.IsNegative() {
		verr.AddViolation("compensation", "gte", "compensation must not be negative")
	}
	if t.ParentTaskID != "" && t.ParentTaskID == t.ID {
		verr.AddViolation("parent_task_id", "not_self", "a task cannot be its own parent")
	}
	if len(verr.Details) > 0 {
		return verr
	}
	return nil
}
