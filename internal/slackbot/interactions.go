package slackbot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/incidents"
	"github.com/bissquit/incident-bot/internal/pkg/ctxlog"
	"github.com/bissquit/incident-bot/internal/pkg/httputil"
	"github.com/slack-go/slack"
)

// CallbackUpdateModal identifies the "provide update" modal.
const CallbackUpdateModal = "incident.update_modal"

// Input block ids of the update modal.
const (
	blockUpdateMessage = "message"
	blockUpdateImpact  = "impact"
)

// HandleInteraction handles POST /slack/interactions.
func (h *Handler) HandleInteraction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.Error(w, http.StatusBadRequest, "malformed form data")
		return
	}
	payload := r.PostForm.Get("payload")
	if payload == "" {
		httputil.Error(w, http.StatusBadRequest, "missing payload")
		return
	}

	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(payload), &cb); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid interaction payload")
		return
	}

	ctx := ctxlog.With(r.Context(), "slack_user", cb.User.ID, "interaction", cb.Type)

	switch cb.Type {
	case slack.InteractionTypeBlockActions:
		for _, action := range cb.ActionCallback.BlockActions {
			h.handleBlockAction(ctx, cb, action)
		}
		w.WriteHeader(http.StatusOK)
	case slack.InteractionTypeViewSubmission:
		h.handleViewSubmission(ctx, w, cb)
	default:
		ctxlog.FromContext(ctx).Debug("ignoring interaction")
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) handleBlockAction(ctx context.Context, cb slack.InteractionCallback, action *slack.BlockAction) {
	ctx = ctxlog.With(ctx, "action_id", action.ActionID)
	user := cb.User.ID

	if action.ActionID == incidents.ActionProvideUpdate {
		if err := h.openUpdateModal(ctx, cb.TriggerID, action.Value); err != nil {
			h.respond(ctx, cb.ResponseURL, userMessage(ctx, err))
		}
		return
	}

	inc, err := h.service.GetIncidentByChannel(ctx, cb.Channel.ID)
	if err != nil {
		h.respond(ctx, cb.ResponseURL, userMessage(ctx, err))
		return
	}

	switch action.ActionID {
	case incidents.ActionSetStatus:
		err = h.service.SetStatus(ctx, inc.ID, domain.Status(action.SelectedOption.Value), user)
	case incidents.ActionSetSeverity:
		err = h.service.SetSeverity(ctx, inc.ID, domain.Severity(action.SelectedOption.Value), user)
	case incidents.ActionClaimRole:
		err = h.service.AssignRole(ctx, inc.ID, domain.RoleName(action.Value), user, incidents.RoleSelfClaim, user)
	case incidents.ActionAssignRole:
		role := domain.RoleName(strings.TrimPrefix(action.BlockID, incidents.BlockRolePrefix))
		err = h.service.AssignRole(ctx, inc.ID, role, action.SelectedUser, incidents.RoleAssignedBy, user)
	default:
		ctxlog.FromContext(ctx).Debug("ignoring unknown action")
		return
	}

	if err != nil {
		h.respond(ctx, cb.ResponseURL, userMessage(ctx, err))
	}
}

func (h *Handler) openUpdateModal(ctx context.Context, triggerID, incidentID string) error {
	inc, err := h.service.GetIncident(ctx, incidentID)
	if err != nil {
		return err
	}

	message := slack.NewPlainTextInputBlockElement(
		slack.NewTextBlockObject(slack.PlainTextType, "What is the current state?", false, false),
		blockUpdateMessage,
	)
	message.Multiline = true

	impact := slack.NewInputBlock(
		blockUpdateImpact,
		slack.NewTextBlockObject(slack.PlainTextType, "Impact", false, false),
		nil,
		slack.NewPlainTextInputBlockElement(nil, blockUpdateImpact),
	)
	impact.Optional = true

	view := slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      CallbackUpdateModal,
		PrivateMetadata: inc.ID,
		Title:           slack.NewTextBlockObject(slack.PlainTextType, "Incident update", false, false),
		Submit:          slack.NewTextBlockObject(slack.PlainTextType, "Post", false, false),
		Close:           slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*%s*\n%s", inc.ID, inc.Description), false, false), nil, nil),
			slack.NewInputBlock(
				blockUpdateMessage,
				slack.NewTextBlockObject(slack.PlainTextType, "Update", false, false),
				nil,
				message,
			),
			impact,
		}},
	}

	if _, err := h.views.OpenViewContext(ctx, triggerID, view); err != nil {
		return &incidents.AdapterError{Op: "open update modal", Err: err}
	}
	return nil
}

func (h *Handler) handleViewSubmission(ctx context.Context, w http.ResponseWriter, cb slack.InteractionCallback) {
	if cb.View.CallbackID != CallbackUpdateModal {
		w.WriteHeader(http.StatusOK)
		return
	}

	var values map[string]map[string]slack.BlockAction
	if cb.View.State != nil {
		values = cb.View.State.Values
	}
	input := incidents.UpdateInput{
		Message: strings.TrimSpace(values[blockUpdateMessage][blockUpdateMessage].Value),
		Impact:  strings.TrimSpace(values[blockUpdateImpact][blockUpdateImpact].Value),
		User:    cb.User.ID,
	}

	if err := h.service.ProvideUpdate(ctx, cb.View.PrivateMetadata, input); err != nil {
		httputil.JSON(w, http.StatusOK, slack.NewErrorsViewSubmissionResponse(map[string]string{
			blockUpdateMessage: strings.TrimPrefix(userMessage(ctx, err), ":x: "),
		}))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// respond sends an ephemeral reply through the interaction response URL.
func (h *Handler) respond(ctx context.Context, responseURL, text string) {
	if responseURL == "" {
		return
	}
	err := slack.PostWebhookContext(ctx, responseURL, &slack.WebhookMessage{
		Text:         text,
		ResponseType: responseEphemeral,
	})
	if err != nil {
		ctxlog.FromContext(ctx).Warn("failed to send slack response", "error", err)
	}
}
