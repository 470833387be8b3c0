package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/task"
)

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title          string     `json:"title" validate:"required,max=200"`
		Description    string     `json:"description"`
		Priority       string     `json:"priority" validate:"omitempty,oneof=high medium low"`
		AssignedTo     *string    `json:"assigned_to"`
		DueDate        *time.Time `json:"due_date"`
		EstimatedHours *float64   `json:"estimated_hours" validate:"omitempty,gte=0"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	priority := domain.PriorityMedium
	if req.Priority != "" {
		priority = domain.TaskPriority(req.Priority)
	}

	created, err := h.tasks.Create(r.Context(), currentUser(r), task.CreateRequest{
		Title:          req.Title,
		Description:    req.Description,
		Priority:       priority,
		AssignedTo:     req.AssignedTo,
		DueDate:        req.DueDate,
		EstimatedHours: req.EstimatedHours,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.createdResponse(w, r, "任务创建成功", created)
}

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	var filter domain.TaskFilter
	query := r.URL.Query()
	if v := query.Get("status"); v != "" {
		status := domain.TaskStatus(v)
		filter.Status = &status
	}
	if v := query.Get("assigned_to"); v != "" {
		filter.AssignedTo = &v
	}

	tasks, err := h.tasks.List(r.Context(), currentUser(r), filter)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取任务列表成功", tasks)
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Get(r.Context(), chi.URLParam(r, "id"), currentUser(r))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取任务成功", t)
}

type updateTaskResponse struct {
	Task    *domain.Task     `json:"task"`
	Changes domain.ChangeSet `json:"changes"`
}

// UpdateTask 接受任意字段的部分更新；员工无权修改的字段会被静默忽略
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var patch domain.TaskPatch
	if err := h.readJSON(r, &patch); err != nil {
		h.badRequest(w, r, err)
		return
	}

	updated, changes, err := h.tasks.Update(r.Context(), chi.URLParam(r, "id"), currentUser(r), patch)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	if changes == nil {
		changes = domain.ChangeSet{}
	}

	h.successResponse(w, r, "任务更新成功", updateTaskResponse{Task: updated, Changes: changes})
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.Delete(r.Context(), chi.URLParam(r, "id"), currentUser(r)); err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.successResponse(w, r, "任务删除成功", nil)
}

func (h *Handler) GetTaskStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tasks.Stats(r.Context(), currentUser(r))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取统计数据成功", stats)
}
