// Package slackbot serves the Slack slash command and interactivity endpoints.
package slackbot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/incidents"
	"github.com/bissquit/incident-bot/internal/pkg/ctxlog"
	"github.com/bissquit/incident-bot/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/slack-go/slack"
)

const (
	maxBodySize       = 1 << 20
	responseEphemeral = "ephemeral"
)

// IncidentService is the part of incidents.Service driven from Slack.
type IncidentService interface {
	Lifecycle() incidents.Lifecycle
	CreateIncident(ctx context.Context, input incidents.CreateIncidentInput) (*domain.Incident, error)
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	GetIncidentByChannel(ctx context.Context, channelID string) (*domain.Incident, error)
	SetStatus(ctx context.Context, id string, status domain.Status, actingUser string) error
	SetSeverity(ctx context.Context, id string, severity domain.Severity, actingUser string) error
	AssignRole(ctx context.Context, id string, role domain.RoleName, assignee string, source incidents.RoleSource, actingUser string) error
	ProvideUpdate(ctx context.Context, id string, input incidents.UpdateInput) error
}

// ViewOpener opens modals. Satisfied by *slack.Client.
type ViewOpener interface {
	OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
}

// Handler handles Slack requests.
type Handler struct {
	service       IncidentService
	views         ViewOpener
	signingSecret string
	command       string
}

// NewHandler creates a new Slack handler. command is the slash command name
// shown in help texts, e.g. "/incident".
func NewHandler(service IncidentService, views ViewOpener, signingSecret, command string) *Handler {
	if command == "" {
		command = "/incident"
	}
	return &Handler{
		service:       service,
		views:         views,
		signingSecret: signingSecret,
		command:       command,
	}
}

// RegisterRoutes registers Slack endpoints behind signature verification.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/slack", func(r chi.Router) {
		r.Use(h.verify)
		r.Post("/commands", h.HandleCommand)
		r.Post("/interactions", h.HandleInteraction)
	})
}

// verify rejects requests whose signature does not match the signing secret.
func (h *Handler) verify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "cannot read body")
			return
		}

		sv, err := slack.NewSecretsVerifier(r.Header, h.signingSecret)
		if err != nil {
			ctxlog.FromContext(r.Context()).Warn("slack request rejected", "error", err)
			httputil.Error(w, http.StatusUnauthorized, "invalid slack signature")
			return
		}
		if _, err := sv.Write(body); err != nil {
			httputil.Error(w, http.StatusInternalServerError, "internal error")
			return
		}
		if err := sv.Ensure(); err != nil {
			ctxlog.FromContext(r.Context()).Warn("slack request rejected", "error", err)
			httputil.Error(w, http.StatusUnauthorized, "invalid slack signature")
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

// userMessage renders an error for the Slack user. Unexpected errors are
// logged and reported generically.
func userMessage(ctx context.Context, err error) string {
	var verr *incidents.ValidationError
	var perr *incidents.PreconditionError
	switch {
	case errors.As(err, &verr):
		return ":x: " + verr.Error()
	case errors.As(err, &perr):
		return ":warning: " + perr.Error()
	case errors.Is(err, incidents.ErrIncidentNotFound):
		return ":x: This channel is not an incident channel."
	default:
		ctxlog.FromContext(ctx).Error("slack action failed", "error", err)
		return ":boom: Something went wrong, please try again."
	}
}

func ephemeral(w http.ResponseWriter, text string) {
	httputil.JSON(w, http.StatusOK, slack.Msg{ResponseType: responseEphemeral, Text: text})
}
