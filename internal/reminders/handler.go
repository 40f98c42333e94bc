package reminders

import (
	"errors"
	"net/http"
	"time"

	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/pkg/ctxlog"
	"github.com/bissquit/incident-bot/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler exposes scheduled jobs over HTTP.
type Handler struct {
	scheduler *Scheduler
}

// NewHandler creates a new jobs handler.
func NewHandler(scheduler *Scheduler) *Handler {
	return &Handler{scheduler: scheduler}
}

// RegisterRoutes registers read-only job routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/jobs", h.ListJobs)
}

// RegisterAdminRoutes registers job management routes.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Delete("/jobs/{id}", h.DeleteJob)
}

// JobResponse is the API representation of a reminder job.
type JobResponse struct {
	ID              string     `json:"id"`
	IncidentID      string     `json:"incident_id"`
	ChannelID       string     `json:"channel_id"`
	IntervalSeconds int64      `json:"interval_seconds"`
	NextRun         *time.Time `json:"next_run,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toJobResponse(job domain.ReminderJob) JobResponse {
	return JobResponse{
		ID:              job.ID,
		IncidentID:      job.IncidentID,
		ChannelID:       job.ChannelID,
		IntervalSeconds: int64(job.Interval / time.Second),
		NextRun:         job.NextRun,
		CreatedAt:       job.CreatedAt,
	}
}

// ListJobs handles GET /jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.scheduler.List(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	resp := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, toJobResponse(j))
	}
	httputil.Success(w, http.StatusOK, resp)
}

// DeleteJob handles DELETE /jobs/{id}.
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.scheduler.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			httputil.Error(w, http.StatusNotFound, err.Error())
			return
		}
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	ctxlog.FromContext(r.Context()).Info("reminder job deleted", "job_id", id, "user_id", httputil.GetUserID(r.Context()))
	httputil.NoContent(w)
}
