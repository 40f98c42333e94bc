package incidents

import (
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/incident-bot/internal/chat"
	"github.com/bissquit/incident-bot/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Interactive action identifiers handled by the chat surface.
const (
	ActionSetStatus     = "incident.set_status"
	ActionSetSeverity   = "incident.set_severity"
	ActionClaimRole     = "incident.claim_role"
	ActionAssignRole    = "incident.assign_role"
	ActionProvideUpdate = "incident.provide_update"
)

// Block identifiers of the boilerplate and digest messages.
const (
	BlockDigest   = "digest"
	BlockStatus   = "status"
	BlockSeverity = "severity"
	// BlockRolePrefix + role name identifies the controls of one role.
	BlockRolePrefix = "role:"
)

// Label renders an enum value for humans: "incident_commander" -> "Incident Commander".
func Label[T ~string](v T) string {
	// cases.Caser keeps state, so a new one is built per call.
	return cases.Title(language.English).String(strings.ReplaceAll(string(v), "_", " "))
}

type messages struct {
	lifecycle   Lifecycle
	meetingLink string
}

func (m messages) digest(inc *domain.Incident) chat.Message {
	title := inc.Description
	if inc.IsSecurity {
		title = ":lock: " + title
	}

	return chat.Message{
		Text: fmt.Sprintf("Incident %s: %s (%s, %s)", inc.ID, inc.Description, inc.Status, inc.Severity),
		Sections: []chat.Section{
			{Kind: chat.SectionHeader, Text: title},
			{
				ID:   BlockDigest,
				Kind: chat.SectionFields,
				Fields: []string{
					"*Status*\n" + Label(inc.Status),
					"*Severity*\n" + Label(inc.Severity),
					"*Channel*\n<#" + inc.ChannelID + ">",
					"*Started*\n" + inc.CreatedAt.UTC().Format(time.RFC1123),
				},
			},
		},
	}
}

func (m messages) boilerplate(inc *domain.Incident) chat.Message {
	sections := []chat.Section{
		{Kind: chat.SectionHeader, Text: "Incident " + inc.ID},
		{Kind: chat.SectionText, Text: "*Description:* " + inc.Description},
		{
			ID:   BlockStatus,
			Kind: chat.SectionActions,
			Controls: []chat.Control{{
				Kind:     chat.ControlStaticSelect,
				ActionID: ActionSetStatus,
				Label:    "Status",
				Options:  options(m.lifecycle.Statuses),
				Selected: string(inc.Status),
			}},
		},
		{
			ID:   BlockSeverity,
			Kind: chat.SectionActions,
			Controls: []chat.Control{{
				Kind:     chat.ControlStaticSelect,
				ActionID: ActionSetSeverity,
				Label:    "Severity",
				Options:  options(m.lifecycle.Severities),
				Selected: string(inc.Severity),
			}},
		},
		{Kind: chat.SectionDivider},
	}

	for _, role := range m.lifecycle.Roles {
		assignee := inc.Assignee(role.Name)
		who := "_unclaimed_"
		selected := ""
		if assignee != domain.Unclaimed {
			who = "<@" + assignee + ">"
			selected = assignee
		}
		marker := ""
		if role.Required {
			marker = " (required)"
		}

		sections = append(sections,
			chat.Section{Kind: chat.SectionText, Text: fmt.Sprintf("*%s*%s: %s", Label(role.Name), marker, who)},
			chat.Section{
				ID:   BlockRolePrefix + string(role.Name),
				Kind: chat.SectionActions,
				Controls: []chat.Control{
					{Kind: chat.ControlButton, ActionID: ActionClaimRole, Label: "Claim", Value: string(role.Name)},
					{Kind: chat.ControlUserSelect, ActionID: ActionAssignRole, Label: "Assign", Selected: selected},
				},
			},
		)
	}

	if m.meetingLink != "" {
		sections = append(sections, chat.Section{Kind: chat.SectionContext, Text: ":telephone_receiver: Meeting: " + m.meetingLink})
	}

	return chat.Message{
		Text:     fmt.Sprintf("Incident %s is %s with severity %s", inc.ID, inc.Status, inc.Severity),
		Sections: sections,
	}
}

func options[T ~string](values []T) []chat.Option {
	opts := make([]chat.Option, 0, len(values))
	for _, v := range values {
		opts = append(opts, chat.Option{Value: string(v), Label: Label(v)})
	}
	return opts
}

func (m messages) statusChanged(status domain.Status, user string) chat.Message {
	return chat.Plain(fmt.Sprintf(":information_source: %s set the status to *%s*.", mention(user), Label(status)))
}

func (m messages) severityChanged(severity domain.Severity, user string) chat.Message {
	return chat.Plain(fmt.Sprintf(":information_source: %s set the severity to *%s*.", mention(user), Label(severity)))
}

func (m messages) missingRoles(roles []domain.RoleName) chat.Message {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, "*"+Label(r)+"*")
	}
	return chat.Plain(":warning: This incident can't be resolved until these roles are claimed: " + strings.Join(names, ", "))
}

func (m messages) resolved(inc *domain.Incident) chat.Message {
	text := ":white_check_mark: This incident has been resolved."
	if inc.RCALink != "" {
		text += " A postmortem document was created: " + inc.RCALink
	}
	return chat.Plain(text)
}

func (m messages) roleAssigned(role domain.RoleName, assignee string, source RoleSource, actor string) chat.Message {
	if source == RoleSelfClaim {
		return chat.Plain(fmt.Sprintf(":bust_in_silhouette: <@%s> has claimed the *%s* role.", assignee, Label(role)))
	}
	return chat.Plain(fmt.Sprintf(":bust_in_silhouette: %s assigned <@%s> to the *%s* role.", mention(actor), assignee, Label(role)))
}

func (m messages) roleBriefing(inc *domain.Incident, role RoleDefinition) chat.Message {
	return chat.Plain(fmt.Sprintf("You are now the *%s* for <#%s> (%s).\n%s",
		Label(role.Name), inc.ChannelID, inc.Description, role.Description))
}

func (m messages) update(inc *domain.Incident, in UpdateInput) chat.Message {
	fields := []string{
		"*Status*\n" + Label(inc.Status),
		"*Severity*\n" + Label(inc.Severity),
	}
	if in.Impact != "" {
		fields = append(fields, "*Impact*\n"+in.Impact)
	}
	if len(in.Components) > 0 {
		fields = append(fields, "*Affected components*\n"+strings.Join(in.Components, ", "))
	}

	return chat.Message{
		Text: fmt.Sprintf("Update for %s: %s", inc.ID, in.Message),
		Sections: []chat.Section{
			{Kind: chat.SectionHeader, Text: ":memo: Incident update"},
			{Kind: chat.SectionFields, Fields: fields},
			{Kind: chat.SectionText, Text: in.Message},
			{Kind: chat.SectionContext, Text: "Posted by " + mention(in.User)},
		},
	}
}

func (m messages) noUpdatePrompt(inc *domain.Incident) chat.Message {
	text := ":alarm_clock: No update has been sent for this incident yet. Please share what is known so far."
	return chat.Message{
		Text: text,
		Sections: []chat.Section{
			{Kind: chat.SectionText, Text: text},
			{Kind: chat.SectionActions, Controls: []chat.Control{{
				Kind:     chat.ControlButton,
				ActionID: ActionProvideUpdate,
				Label:    "Provide update",
				Value:    inc.ID,
			}}},
		},
	}
}

func (m messages) staleReminder(since time.Duration) chat.Message {
	return chat.Plain(fmt.Sprintf(":alarm_clock: The last update was sent %s ago. Please send an update.", since.Round(time.Minute)))
}

func (m messages) relatedIncidents(feed []FeedIncident) chat.Message {
	lines := make([]string, 0, len(feed))
	for _, f := range feed {
		line := fmt.Sprintf("• *%s*: %s (%s)", f.Provider, f.Name, f.Status)
		if f.URL != "" {
			line += " <" + f.URL + "|details>"
		}
		lines = append(lines, line)
	}
	text := ":mag: Upstream providers report recent incidents:\n" + strings.Join(lines, "\n")
	return chat.Plain(text)
}

func (m messages) statusPagePrompt(pageURL string) chat.Message {
	return chat.Plain(":globe_with_meridians: Consider whether this incident should be published on the status page: " + pageURL)
}

func (m messages) externalRefs(refs []domain.ExternalRef) chat.Message {
	lines := make([]string, 0, len(refs))
	for _, r := range refs {
		line := fmt.Sprintf("• %s: %s", Label(r.Provider), r.ID)
		if r.URL != "" {
			line += " <" + r.URL + ">"
		}
		lines = append(lines, line)
	}
	return chat.Plain(":link: Linked external records:\n" + strings.Join(lines, "\n"))
}

func mention(user string) string {
	if user == "" {
		return "Someone"
	}
	if strings.HasPrefix(user, "api:") {
		return "`" + user + "`"
	}
	return "<@" + user + ">"
}
