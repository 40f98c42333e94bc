package tasks

import (
	"net/http"
	"time"

	"github.com/bissquit/incident-bot/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler exposes background task state over HTTP.
type Handler struct {
	queue *Queue
}

// NewHandler creates a new tasks handler.
func NewHandler(queue *Queue) *Handler {
	return &Handler{queue: queue}
}

// RegisterRoutes registers read-only task routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/tasks", h.ListTasks)
	r.Get("/tasks/{id}", h.GetTask)
}

// TaskResponse is the API representation of a task.
type TaskResponse struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Status    Status    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toTaskResponse(t Task) TaskResponse {
	return TaskResponse{
		ID:        t.ID,
		Kind:      t.Kind,
		Status:    t.Status,
		Attempts:  t.Attempts,
		LastError: t.LastError,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// ListTasks handles GET /tasks.
func (h *Handler) ListTasks(w http.ResponseWriter, _ *http.Request) {
	list := h.queue.List()
	resp := make([]TaskResponse, 0, len(list))
	for _, t := range list {
		resp = append(resp, toTaskResponse(t))
	}
	httputil.Success(w, http.StatusOK, resp)
}

// GetTask handles GET /tasks/{id}.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.queue.Get(chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrTaskNotFound, Status: http.StatusNotFound},
		})
		return
	}
	httputil.Success(w, http.StatusOK, toTaskResponse(task))
}
