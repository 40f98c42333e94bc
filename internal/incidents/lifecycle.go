package incidents

import (
	"slices"

	"github.com/bissquit/incident-bot/internal/domain"
)

// RoleDefinition describes an incident role.
type RoleDefinition struct {
	Name        domain.RoleName
	Description string
	Required    bool
}

// Lifecycle holds the configured status, severity and role vocabularies.
type Lifecycle struct {
	Statuses             []domain.Status
	InitialStatus        domain.Status
	ResolvedStatus       domain.Status
	Severities           []domain.Severity
	DefaultSeverity      domain.Severity
	QualifyingSeverities []domain.Severity
	Roles                []RoleDefinition
}

// DefaultLifecycle returns the stock four-status, four-severity lifecycle.
func DefaultLifecycle() Lifecycle {
	return Lifecycle{
		Statuses:             []domain.Status{"investigating", "identified", "monitoring", "resolved"},
		InitialStatus:        "investigating",
		ResolvedStatus:       "resolved",
		Severities:           []domain.Severity{"sev1", "sev2", "sev3", "sev4"},
		DefaultSeverity:      "sev4",
		QualifyingSeverities: []domain.Severity{"sev1", "sev2"},
		Roles: []RoleDefinition{
			{Name: "incident_commander", Description: "Coordinates the response and owns decisions.", Required: true},
			{Name: "technical_lead", Description: "Leads the technical investigation."},
			{Name: "communications_liaison", Description: "Handles communication outside the incident channel."},
		},
	}
}

func (l Lifecycle) ValidStatus(s domain.Status) bool {
	return slices.Contains(l.Statuses, s)
}

func (l Lifecycle) ValidSeverity(s domain.Severity) bool {
	return slices.Contains(l.Severities, s)
}

// Qualifies reports whether incidents of severity s need periodic reminders.
func (l Lifecycle) Qualifies(s domain.Severity) bool {
	return slices.Contains(l.QualifyingSeverities, s)
}

func (l Lifecycle) IsResolved(s domain.Status) bool {
	return s == l.ResolvedStatus
}

// Role looks up a role definition by name.
func (l Lifecycle) Role(name domain.RoleName) (RoleDefinition, bool) {
	for _, r := range l.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return RoleDefinition{}, false
}

// InitialRoles returns every configured role mapped to domain.Unclaimed.
func (l Lifecycle) InitialRoles() map[domain.RoleName]string {
	roles := make(map[domain.RoleName]string, len(l.Roles))
	for _, r := range l.Roles {
		roles[r.Name] = domain.Unclaimed
	}
	return roles
}

// MissingRequiredRoles lists required roles that are still unclaimed on inc.
func (l Lifecycle) MissingRequiredRoles(inc *domain.Incident) []domain.RoleName {
	var missing []domain.RoleName
	for _, r := range l.Roles {
		if r.Required && inc.Assignee(r.Name) == domain.Unclaimed {
			missing = append(missing, r.Name)
		}
	}
	return missing
}

// wantsReminder is the reminder invariant: qualifying severity and not resolved.
func (l Lifecycle) wantsReminder(inc *domain.Incident) bool {
	return l.Qualifies(inc.Severity) && !l.IsResolved(inc.Status)
}
