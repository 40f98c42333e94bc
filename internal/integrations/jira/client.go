// Package jira opens and transitions Jira issues for incidents.
package jira

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/integrations/httpapi"
)

// ErrTransitionNotFound is returned when the mapped transition is not
// available from the issue's current state.
var ErrTransitionNotFound = errors.New("jira transition not available")

// Config holds Jira client configuration.
type Config struct {
	URL       string
	Username  string
	APIToken  string
	Project   string
	IssueType string
	Labels    []string
	// StatusMapping maps incident statuses to transition names.
	StatusMapping map[string]string
	Timeout       time.Duration
}

// Client implements incidents.Ticketing using the Jira REST API v2.
type Client struct {
	config Config
	api    *httpapi.Client
}

// NewClient creates a new Jira client.
func NewClient(config Config) *Client {
	if config.IssueType == "" {
		config.IssueType = "Task"
	}
	return &Client{
		config: config,
		api: httpapi.NewClient("jira", config.URL,
			httpapi.WithBasicAuth(config.Username, config.APIToken),
			httpapi.WithTimeout(config.Timeout),
		),
	}
}

type keyRef struct {
	Key string `json:"key"`
}

type nameRef struct {
	Name string `json:"name"`
}

type issueFields struct {
	Project     keyRef   `json:"project"`
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	IssueType   nameRef  `json:"issuetype"`
	Labels      []string `json:"labels,omitempty"`
}

type createIssueRequest struct {
	Fields issueFields `json:"fields"`
}

type createIssueResponse struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type transitionsResponse struct {
	Transitions []transition `json:"transitions"`
}

type transitionRequest struct {
	Transition struct {
		ID string `json:"id"`
	} `json:"transition"`
}

// CreateTicket opens an issue describing the incident.
func (c *Client) CreateTicket(ctx context.Context, inc *domain.Incident) (domain.ExternalRef, error) {
	req := createIssueRequest{Fields: issueFields{
		Project:     keyRef{Key: c.config.Project},
		Summary:     fmt.Sprintf("[%s] %s", strings.ToUpper(string(inc.Severity)), inc.Description),
		Description: fmt.Sprintf("Incident %s\nChannel: #%s\nStatus: %s\nSeverity: %s", inc.ID, inc.ChannelName, inc.Status, inc.Severity),
		IssueType:   nameRef{Name: c.config.IssueType},
		Labels:      c.config.Labels,
	}}

	var resp createIssueResponse
	if err := c.api.Do(ctx, http.MethodPost, "/rest/api/2/issue", req, &resp); err != nil {
		return domain.ExternalRef{}, fmt.Errorf("create jira issue: %w", err)
	}

	return domain.ExternalRef{
		Provider: domain.ProviderJira,
		ID:       resp.Key,
		URL:      c.api.BaseURL() + "/browse/" + resp.Key,
	}, nil
}

// UpdateTicketStatus applies the transition mapped to status. Statuses
// without a mapping are ignored.
func (c *Client) UpdateTicketStatus(ctx context.Context, ref domain.ExternalRef, status domain.Status) error {
	name, ok := c.config.StatusMapping[string(status)]
	if !ok || name == "" {
		slog.Debug("no jira transition mapped", "status", status, "issue", ref.ID)
		return nil
	}

	path := "/rest/api/2/issue/" + ref.ID + "/transitions"

	var available transitionsResponse
	if err := c.api.Do(ctx, http.MethodGet, path, nil, &available); err != nil {
		return fmt.Errorf("list jira transitions: %w", err)
	}

	var req transitionRequest
	for _, t := range available.Transitions {
		if strings.EqualFold(t.Name, name) {
			req.Transition.ID = t.ID
			break
		}
	}
	if req.Transition.ID == "" {
		return fmt.Errorf("%w: %q on %s", ErrTransitionNotFound, name, ref.ID)
	}

	if err := c.api.Do(ctx, http.MethodPost, path, req, nil); err != nil {
		return fmt.Errorf("transition jira issue %s: %w", ref.ID, err)
	}
	return nil
}
