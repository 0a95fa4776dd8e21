package task

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/kazz187/devguild/internal/eventbus"
	"github.com/kazz187/devguild/internal/principal"
	"github.com/kazz187/devguild/pkg/cerr"
)

type Server struct {
	repo        Repository
	assignments AssignmentChecker
	eventBus    *eventbus.Bus
}

func NewServer(repo Repository, assignments AssignmentChecker, eventBus *eventbus.Bus) *Server {
	return &Server{
		repo:        repo,
		assignments: assignments,
		eventBus:    eventBus,
	}
}

func (s *Server) Mount(r chi.Router) {
	r.Get("/tasks", s.handleList)
	r.Post("/tasks", s.handleCreate)
	r.Get("/tasks/{id}", s.handleGet)
	r.Patch("/tasks/{id}", s.handleUpdate)
	r.Delete("/tasks/{id}", s.handleDelete)
}

type CreateTaskRequest struct {
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	Department         string          `json:"department"`
	Category           Category        `json:"category"`
	Complexity         Complexity      `json:"complexity"`
	Compensation       decimal.Decimal `json:"compensation"`
	Requirements       []string        `json:"requirements"`
	AcceptanceCriteria []string        `json:"acceptance_criteria"`
	ParentTaskID       string          `json:"parent_task_id"`
}

type UpdateTaskRequest struct {
	Title              *string          `json:"title"`
	Description        *string          `json:"description"`
	Compensation       *decimal.Decimal `json:"compensation"`
	Department         *string          `json:"department"`
	Category           *Category        `json:"category"`
	Complexity         *Complexity      `json:"complexity"`
	Requirements       []string         `json:"requirements"`
	AcceptanceCriteria []string         `json:"acceptance_criteria"`
}

// touchesFrozenFields reports whether the request changes anything other
// than title, description or compensation.
func (r *UpdateTaskRequest) touchesFrozenFields() bool {
	return r.Department != nil || r.Category != nil || r.Complexity != nil ||
		r.Requirements != nil || r.AcceptanceCriteria != nil
}

type TaskResponse struct {
	Task *Task `json:"task"`
}

type ListTasksResponse struct {
	Tasks  []*Task `json:"tasks"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	filter := ListFilter{
		Category:   Category(q.Get("category")),
		Complexity: Complexity(q.Get("complexity")),
		Department: q.Get("department"),
		Limit:      50,
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		filter.Offset = v
	}
	onlyAvailable := q.Get("available") == "true"

	res, err := s.List(ctx, filter, onlyAvailable)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, res)
}

// List returns tasks matching filter. With onlyAvailable the page is
// post-filtered to tasks without an active assignment, so Total counts the
// unfiltered match.
func (s *Server) List(ctx context.Context, filter ListFilter, onlyAvailable bool) (*ListTasksResponse, error) {
	tasks, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if onlyAvailable {
		available := tasks[:0]
		for _, t := range tasks {
			active, err := s.assignments.HasActive(ctx, t.ID)
			if err != nil {
				return nil, err
			}
			if !active {
				available = append(available, t)
			}
		}
		tasks = available
	}
	if tasks == nil {
		tasks = []*Task{}
	}
	return &ListTasksResponse{Tasks: tasks, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateTaskRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	t, err := s.Create(ctx, &req)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, &TaskResponse{Task: t})
}

func (s *Server) Create(ctx context.Context, req *CreateTaskRequest) (*Task, error) {
	p, err := principal.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	t := &Task{
		ID:                 ulid.Make().String(),
		Title:              req.Title,
		Description:        req.Description,
		Department:         req.Department,
		Category:           req.Category,
		Complexity:         req.Complexity,
		Compensation:       req.Compensation,
		Requirements:       req.Requirements,
		AcceptanceCriteria: req.AcceptanceCriteria,
		ParentTaskID:       req.ParentTaskID,
		CreatedBy:          p.ID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	var parent *Task
	if t.ParentTaskID != "" {
		parent, err = s.repo.Get(ctx, t.ParentTaskID)
		if err != nil {
			if cerr.IsCode(err, cerr.NotFound) {
				return nil, cerr.NewValidationError("parent_task_id", "exists", "parent task does not exist")
			}
			return nil, err
		}
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	if parent != nil {
		parent.SubtaskIDs = append(parent.SubtaskIDs, t.ID)
		parent.UpdatedAt = now
		if err := s.repo.Update(ctx, parent); err != nil {
			return nil, err
		}
	}

	s.eventBus.PublishNew(eventbus.EventTaskCreated, t.ID, map[string]string{
		"complexity": string(t.Complexity),
		"category":   string(t.Category),
	})
	return t, nil
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.repo.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &TaskResponse{Task: t})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req UpdateTaskRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	t, err := s.Update(ctx, chi.URLParam(r, "id"), &req)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &TaskResponse{Task: t})
}

// Update applies an admin edit. Once a task is referenced by a non-cancelled
// assignment only title, description and compensation may change; existing
// assignments keep the values they were created with.
func (s *Server) Update(ctx context.Context, id string, req *UpdateTaskRequest) (*Task, error) {
	if _, err := principal.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.touchesFrozenFields() {
		referenced, err := s.assignments.HasNonCancelled(ctx, id)
		if err != nil {
			return nil, err
		}
		if referenced {
			return nil, cerr.NewError(cerr.FailedPrecondition,
				"task is referenced by an assignment; only title, description and compensation can change", nil)
		}
	}

	if req.Title != nil {
		t.Title = *req.Title
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Compensation != nil {
		t.Compensation = *req.Compensation
	}
	if req.Department != nil {
		t.Department = *req.Department
	}
	if req.Category != nil {
		t.Category = *req.Category
	}
	if req.Complexity != nil {
		t.Complexity = *req.Complexity
	}
	if req.Requirements != nil {
		t.Requirements = req.Requirements
	}
	if req.AcceptanceCriteria != nil {
		t.AcceptanceCriteria = req.AcceptanceCriteria
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.eventBus.PublishNew(eventbus.EventTaskUpdated, t.ID, nil)
	return t, nil
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusOK, struct{}{})
}

func (s *Server) Delete(ctx context.Context, id string) error {
	if _, err := principal.RequireAdmin(ctx); err != nil {
		return err
	}
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	active, err := s.assignments.HasActive(ctx, id)
	if err != nil {
		return err
	}
	if active {
		return cerr.NewReasonError(cerr.FailedPrecondition, cerr.ReasonTaskUnavailable,
			fmt.Sprintf("task %s has an active assignment", id), nil)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	// An assignment persisted between the check and the delete wins.
	active, err = s.assignments.HasActive(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "failed to re-check active assignments after delete", "task_id", id, "error", err)
	} else if active {
		if err := s.repo.Create(ctx, t); err != nil {
			slog.ErrorContext(ctx, "failed to restore task with an active assignment", "task_id", id, "error", err)
			return err
		}
		return cerr.NewReasonError(cerr.FailedPrecondition, cerr.ReasonTaskUnavailable,
			fmt.Sprintf("task %s has an active assignment", id), nil)
	}
	if t.ParentTaskID != "" {
		s.detachFromParent(ctx, t)
	}

	s.eventBus.PublishNew(eventbus.EventTaskDeleted, id, nil)
	return nil
}

func (s *Server) detachFromParent(ctx context.Context, t *Task) {
	parent, err := s.repo.Get(ctx, t.ParentTaskID)
	if err != nil {
		slog.WarnContext(ctx, "failed to load parent task", "task_id", t.ID, "parent_task_id", t.ParentTaskID, "error", err)
		return
	}
	kept := parent.SubtaskIDs[:0]
	for _, sid := range parent.SubtaskIDs {
		if sid != t.ID {
			kept = append(kept, sid)
		}
	}
	parent.SubtaskIDs = kept
	parent.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, parent); err != nil {
		slog.WarnContext(ctx, "failed to detach subtask", "task_id", t.ID, "parent_task_id", t.ParentTaskID, "error", err)
	}
}
