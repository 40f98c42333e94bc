package domain

import "time"

type Status string

type Severity string

type RoleName string

// Unclaimed is the assignee value of a role nobody has taken yet.
const Unclaimed = "unclaimed"

// MessageRef points at a previously sent chat message.
type MessageRef struct {
	ChannelID string `json:"channel_id"`
	Timestamp string `json:"ts"`
}

// IsZero reports whether the ref was never set.
func (r MessageRef) IsZero() bool {
	return r.ChannelID == "" || r.Timestamp == ""
}

const (
	ProviderPagerDuty  = "pagerduty"
	ProviderStatuspage = "statuspage"
	ProviderJira       = "jira"
)

type ExternalRef struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`
	URL      string `json:"url,omitempty"`
}

type Incident struct {
	ID                 string
	ChannelID          string
	ChannelName        string
	Description        string
	Status             Status
	Severity           Severity
	Roles              map[RoleName]string
	IsSecurity         bool
	CreatedBy          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	LastUpdateSent     *time.Time
	BoilerplateMessage *MessageRef
	DigestMessage      *MessageRef
	ExternalRefs       []ExternalRef
	RCALink            string
}

// Assignee returns the user holding role, or Unclaimed.
func (i *Incident) Assignee(role RoleName) string {
	if v, ok := i.Roles[role]; ok && v != "" {
		return v
	}
	return Unclaimed
}

// RefsFor returns external refs created by provider.
func (i *Incident) RefsFor(provider string) []ExternalRef {
	var refs []ExternalRef
	for _, r := range i.ExternalRefs {
		if r.Provider == provider {
			refs = append(refs, r)
		}
	}
	return refs
}

type AuditEntry struct {
	ID         int64
	IncidentID string
	Event      string
	User       string
	Detail     string
	CreatedAt  time.Time
}

type ReminderJob struct {
	ID         string
	IncidentID string
	ChannelID  string
	Interval   time.Duration
	NextRun    *time.Time
	CreatedAt  time.Time
}

// ReminderPayload identifies the incident a reminder job nudges.
type ReminderPayload struct {
	IncidentID string `json:"incident_id"`
	ChannelID  string `json:"channel_id"`
}
