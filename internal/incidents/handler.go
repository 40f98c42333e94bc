package incidents

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Pagination constants.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Handler handles HTTP requests for incidents.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterRoutes registers incident routes (operator and above).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.ListIncidents)
		r.Post("/", h.CreateIncident)
		r.Get("/{id}", h.GetIncident)
		r.Patch("/{id}/status", h.SetStatus)
		r.Patch("/{id}/severity", h.SetSeverity)
		r.Put("/{id}/roles/{role}", h.AssignRole)
		r.Post("/{id}/updates", h.ProvideUpdate)
		r.Get("/{id}/audit", h.ListAudit)
	})
}

// CreateIncidentRequest represents the request body for creating an incident.
type CreateIncidentRequest struct {
	Description string  `json:"description" validate:"required,min=1,max=1000"`
	Severity    *string `json:"severity"`
	IsSecurity  bool    `json:"is_security"`
	// RequestedBy is a chat user invited to the new channel.
	RequestedBy string `json:"requested_by"`
}

// SetStatusRequest represents the request body for a status transition.
type SetStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// SetSeverityRequest represents the request body for a severity transition.
type SetSeverityRequest struct {
	Severity string `json:"severity" validate:"required"`
}

// AssignRoleRequest represents the request body for assigning a role.
type AssignRoleRequest struct {
	Assignee string `json:"assignee" validate:"required"`
}

// ProvideUpdateRequest represents the request body for an incident update.
type ProvideUpdateRequest struct {
	Message    string   `json:"message" validate:"required,min=1"`
	Impact     string   `json:"impact"`
	Components []string `json:"components"`
}

// IncidentResponse is the API representation of an incident.
type IncidentResponse struct {
	ID             string               `json:"id"`
	ChannelID      string               `json:"channel_id"`
	ChannelName    string               `json:"channel_name"`
	Description    string               `json:"description"`
	Status         string               `json:"status"`
	Severity       string               `json:"severity"`
	Roles          map[string]string    `json:"roles"`
	IsSecurity     bool                 `json:"is_security"`
	CreatedBy      string               `json:"created_by"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
	LastUpdateSent *time.Time           `json:"last_update_sent"`
	ExternalRefs   []domain.ExternalRef `json:"external_refs"`
	RCALink        string               `json:"rca_link,omitempty"`
}

// AuditEntryResponse is the API representation of an audit entry.
type AuditEntryResponse struct {
	ID        int64     `json:"id"`
	Event     string    `json:"event"`
	User      string    `json:"user"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) toResponse(inc *domain.Incident) IncidentResponse {
	roles := make(map[string]string, len(h.service.config.Lifecycle.Roles))
	for _, def := range h.service.config.Lifecycle.Roles {
		roles[string(def.Name)] = inc.Assignee(def.Name)
	}

	refs := inc.ExternalRefs
	if refs == nil {
		refs = make([]domain.ExternalRef, 0)
	}

	return IncidentResponse{
		ID:             inc.ID,
		ChannelID:      inc.ChannelID,
		ChannelName:    inc.ChannelName,
		Description:    inc.Description,
		Status:         string(inc.Status),
		Severity:       string(inc.Severity),
		Roles:          roles,
		IsSecurity:     inc.IsSecurity,
		CreatedBy:      inc.CreatedBy,
		CreatedAt:      inc.CreatedAt,
		UpdatedAt:      inc.UpdatedAt,
		LastUpdateSent: inc.LastUpdateSent,
		ExternalRefs:   refs,
		RCALink:        inc.RCALink,
	}
}

// actor names the API user in chat notices and the audit log.
func actor(r *http.Request) string {
	return "api:" + httputil.GetUserID(r.Context())
}

// CreateIncident handles POST /incidents request.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := CreateIncidentInput{
		Description: req.Description,
		RequestedBy: req.RequestedBy,
		CreatedBy:   actor(r),
		IsSecurity:  req.IsSecurity,
	}
	if req.Severity != nil {
		sev := domain.Severity(*req.Severity)
		input.Severity = &sev
	}

	inc, err := h.service.CreateIncident(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, h.toResponse(inc))
}

// GetIncident handles GET /incidents/{id} request.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.service.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, h.toResponse(inc))
}

// ListIncidents handles GET /incidents request.
// Query: status, severity, open=true, limit, offset.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		list []*domain.Incident
		err  error
	)
	if q.Get("open") == "true" {
		list, err = h.service.ListOpen(r.Context())
	} else {
		filter := ListFilter{Limit: DefaultListLimit}
		if v := q.Get("status"); v != "" {
			status := domain.Status(v)
			filter.Status = &status
		}
		if v := q.Get("severity"); v != "" {
			severity := domain.Severity(v)
			filter.Severity = &severity
		}
		if v := q.Get("limit"); v != "" {
			limit, convErr := strconv.Atoi(v)
			if convErr != nil || limit < 1 || limit > MaxListLimit {
				httputil.Error(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(MaxListLimit))
				return
			}
			filter.Limit = limit
		}
		if v := q.Get("offset"); v != "" {
			offset, convErr := strconv.Atoi(v)
			if convErr != nil || offset < 0 {
				httputil.Error(w, http.StatusBadRequest, "offset must be a non-negative integer")
				return
			}
			filter.Offset = offset
		}
		list, err = h.service.ListIncidents(r.Context(), filter)
	}
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp := make([]IncidentResponse, 0, len(list))
	for _, inc := range list {
		resp = append(resp, h.toResponse(inc))
	}
	httputil.Success(w, http.StatusOK, resp)
}

// SetStatus handles PATCH /incidents/{id}/status request.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.service.SetStatus(r.Context(), id, domain.Status(req.Status), actor(r)); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondIncident(w, r, id)
}

// SetSeverity handles PATCH /incidents/{id}/severity request.
func (h *Handler) SetSeverity(w http.ResponseWriter, r *http.Request) {
	var req SetSeverityRequest
	if !h.decode(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.service.SetSeverity(r.Context(), id, domain.Severity(req.Severity), actor(r)); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondIncident(w, r, id)
}

// AssignRole handles PUT /incidents/{id}/roles/{role} request.
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var req AssignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	role := domain.RoleName(chi.URLParam(r, "role"))
	if err := h.service.AssignRole(r.Context(), id, role, req.Assignee, RoleAssignedBy, actor(r)); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondIncident(w, r, id)
}

// ProvideUpdate handles POST /incidents/{id}/updates request.
func (h *Handler) ProvideUpdate(w http.ResponseWriter, r *http.Request) {
	var req ProvideUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	err := h.service.ProvideUpdate(r.Context(), id, UpdateInput{
		Message:    req.Message,
		Impact:     req.Impact,
		Components: req.Components,
		User:       actor(r),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondIncident(w, r, id)
}

// ListAudit handles GET /incidents/{id}/audit request.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListAudit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, AuditEntryResponse{
			ID:        e.ID,
			Event:     e.Event,
			User:      e.User,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt,
		})
	}
	httputil.Success(w, http.StatusOK, resp)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return false
	}
	return true
}

func (h *Handler) respondIncident(w http.ResponseWriter, r *http.Request, id string) {
	inc, err := h.service.GetIncident(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, h.toResponse(inc))
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		httputil.ValidationFailed(w, verr.Error(), []httputil.FieldError{{Field: verr.Field, Message: verr.Message}})
		return
	}

	httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
		{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
		{Error: ErrIncidentExists, Status: http.StatusConflict},
		{Error: ErrPrecondition, Status: http.StatusConflict},
		{Error: ErrAdapter, Status: http.StatusBadGateway},
	})
}
