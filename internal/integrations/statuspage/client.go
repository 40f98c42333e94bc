// Package statuspage mirrors incidents onto an Atlassian Statuspage.
package statuspage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/integrations/httpapi"
)

const defaultAPIURL = "https://api.statuspage.io/v1"

// Config holds Statuspage client configuration.
type Config struct {
	APIKey string
	PageID string
	APIURL string
	// URL is the public page shown to responders.
	URL     string
	Timeout time.Duration
}

// Client implements incidents.StatusPage.
type Client struct {
	config Config
	api    *httpapi.Client
}

// NewClient creates a new Statuspage client.
func NewClient(config Config) *Client {
	if config.APIURL == "" {
		config.APIURL = defaultAPIURL
	}
	return &Client{
		config: config,
		api: httpapi.NewClient("statuspage", config.APIURL,
			httpapi.WithHeader("Authorization", "OAuth "+config.APIKey),
			httpapi.WithTimeout(config.Timeout),
		),
	}
}

type incidentBody struct {
	Name   string `json:"name,omitempty"`
	Status string `json:"status"`
	Body   string `json:"body,omitempty"`
	Impact string `json:"impact_override,omitempty"`
}

type incidentRequest struct {
	Incident incidentBody `json:"incident"`
}

type incidentResponse struct {
	ID        string `json:"id"`
	Shortlink string `json:"shortlink"`
}

// CreateExternalIncident opens a status page incident in the "investigating" state.
func (c *Client) CreateExternalIncident(ctx context.Context, inc *domain.Incident) (domain.ExternalRef, error) {
	req := incidentRequest{Incident: incidentBody{
		Name:   inc.Description,
		Status: "investigating",
		Body:   "We are investigating reports of degraded service.",
		Impact: impactFor(inc.Severity),
	}}

	var resp incidentResponse
	if err := c.api.Do(ctx, http.MethodPost, c.incidentsPath(), req, &resp); err != nil {
		return domain.ExternalRef{}, fmt.Errorf("create statuspage incident: %w", err)
	}

	return domain.ExternalRef{Provider: domain.ProviderStatuspage, ID: resp.ID, URL: resp.Shortlink}, nil
}

// ResolveExternalIncident marks a status page incident resolved.
func (c *Client) ResolveExternalIncident(ctx context.Context, id string) error {
	req := incidentRequest{Incident: incidentBody{
		Status: "resolved",
		Body:   "This incident has been resolved.",
	}}

	if err := c.api.Do(ctx, http.MethodPatch, c.incidentsPath()+"/"+id, req, nil); err != nil {
		return fmt.Errorf("resolve statuspage incident %s: %w", id, err)
	}
	return nil
}

// PageURL returns the public status page address.
func (c *Client) PageURL() string {
	return c.config.URL
}

func (c *Client) incidentsPath() string {
	return "/pages/" + c.config.PageID + "/incidents"
}

func impactFor(severity domain.Severity) string {
	switch severity {
	case "sev1":
		return "critical"
	case "sev2":
		return "major"
	case "sev3":
		return "minor"
	default:
		return "none"
	}
}
