package slackbot

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/incidents"
	"github.com/bissquit/incident-bot/internal/pkg/ctxlog"
	"github.com/slack-go/slack"
)

// HandleCommand handles POST /slack/commands.
func (h *Handler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		ephemeral(w, ":x: Could not parse the command.")
		return
	}

	ctx := ctxlog.With(r.Context(), "slack_user", cmd.UserID, "slack_channel", cmd.ChannelID)
	sub, args := splitCommand(cmd.Text)
	ctxlog.FromContext(ctx).Info("slash command received", "subcommand", sub)

	var text string
	switch sub {
	case "new", "create":
		text = h.cmdNew(ctx, cmd, args)
	case "status":
		text = h.inIncident(ctx, cmd, func(inc *domain.Incident) error {
			return h.service.SetStatus(ctx, inc.ID, domain.Status(args), cmd.UserID)
		}, "Status updated.")
	case "severity", "sev":
		text = h.inIncident(ctx, cmd, func(inc *domain.Incident) error {
			return h.service.SetSeverity(ctx, inc.ID, domain.Severity(args), cmd.UserID)
		}, "Severity updated.")
	case "claim":
		text = h.inIncident(ctx, cmd, func(inc *domain.Incident) error {
			return h.service.AssignRole(ctx, inc.ID, roleName(args), cmd.UserID, incidents.RoleSelfClaim, cmd.UserID)
		}, "Role claimed.")
	case "assign":
		role, user, _ := strings.Cut(args, " ")
		text = h.inIncident(ctx, cmd, func(inc *domain.Incident) error {
			return h.service.AssignRole(ctx, inc.ID, roleName(role), parseUser(user), incidents.RoleAssignedBy, cmd.UserID)
		}, "Role assigned.")
	case "update":
		text = h.inIncident(ctx, cmd, func(inc *domain.Incident) error {
			return h.service.ProvideUpdate(ctx, inc.ID, incidents.UpdateInput{Message: args, User: cmd.UserID})
		}, "Update posted.")
	case "", "help":
		text = h.help()
	default:
		text = fmt.Sprintf("Unknown command `%s`. Try `%s help`.", sub, h.command)
	}

	ephemeral(w, text)
}

func (h *Handler) cmdNew(ctx context.Context, cmd slack.SlashCommand, args string) string {
	input := incidents.CreateIncidentInput{RequestedBy: cmd.UserID}

	var words []string
	fields := strings.Fields(args)
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "--security":
			input.IsSecurity = true
		case "--sev", "--severity":
			if i+1 < len(fields) {
				sev := domain.Severity(strings.ToLower(fields[i+1]))
				input.Severity = &sev
				i++
			}
		default:
			words = append(words, fields[i])
		}
	}
	input.Description = strings.Join(words, " ")
	if input.Description == "" {
		return fmt.Sprintf(":x: Usage: `%s new <description> [--sev <severity>] [--security]`", h.command)
	}

	inc, err := h.service.CreateIncident(ctx, input)
	if err != nil {
		return userMessage(ctx, err)
	}
	return fmt.Sprintf(":rotating_light: Incident created: <#%s>", inc.ChannelID)
}

func (h *Handler) inIncident(ctx context.Context, cmd slack.SlashCommand, fn func(*domain.Incident) error, ok string) string {
	inc, err := h.service.GetIncidentByChannel(ctx, cmd.ChannelID)
	if err != nil {
		return userMessage(ctx, err)
	}
	if err := fn(inc); err != nil {
		return userMessage(ctx, err)
	}
	return ":white_check_mark: " + ok
}

func (h *Handler) help() string {
	lc := h.service.Lifecycle()

	statuses := make([]string, 0, len(lc.Statuses))
	for _, s := range lc.Statuses {
		statuses = append(statuses, string(s))
	}
	severities := make([]string, 0, len(lc.Severities))
	for _, s := range lc.Severities {
		severities = append(severities, string(s))
	}
	roles := make([]string, 0, len(lc.Roles))
	for _, r := range lc.Roles {
		roles = append(roles, string(r.Name))
	}

	c := h.command
	return strings.Join([]string{
		"*Incident commands*",
		fmt.Sprintf("`%s new <description> [--sev <severity>] [--security]` open an incident", c),
		fmt.Sprintf("`%s status <status>` change status (%s)", c, strings.Join(statuses, ", ")),
		fmt.Sprintf("`%s severity <severity>` change severity (%s)", c, strings.Join(severities, ", ")),
		fmt.Sprintf("`%s claim <role>` take a role (%s)", c, strings.Join(roles, ", ")),
		fmt.Sprintf("`%s assign <role> <@user>` give a role to someone", c),
		fmt.Sprintf("`%s update <message>` post an incident update", c),
	}, "\n")
}

func splitCommand(text string) (string, string) {
	sub, args, _ := strings.Cut(strings.TrimSpace(text), " ")
	return strings.ToLower(sub), strings.TrimSpace(args)
}

// roleName accepts "technical-lead" as well as "technical_lead".
func roleName(s string) domain.RoleName {
	return domain.RoleName(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
}

// parseUser extracts the user id from an escaped mention like <@U123|bob>.
func parseUser(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<@") && strings.HasSuffix(s, ">") {
		s = strings.TrimSuffix(strings.TrimPrefix(s, "<@"), ">")
		s, _, _ = strings.Cut(s, "|")
	}
	return s
}
