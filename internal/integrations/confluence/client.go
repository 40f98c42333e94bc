// Package confluence creates postmortem pages for resolved incidents.
package confluence

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/bissquit/incident-bot/internal/incidents"
	"github.com/bissquit/incident-bot/internal/integrations/httpapi"
)

//go:embed templates/postmortem.tmpl
var templatesFS embed.FS

// Config holds Confluence client configuration.
type Config struct {
	URL      string
	Username string
	APIToken string
	Space    string
	// ParentID places new pages under an existing page.
	ParentID string
	Timeout  time.Duration
}

// Client implements incidents.DocumentCreator.
type Client struct {
	config   Config
	api      *httpapi.Client
	template *template.Template
	now      func() time.Time
}

// NewClient creates a new Confluence client.
func NewClient(config Config) (*Client, error) {
	content, err := templatesFS.ReadFile("templates/postmortem.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}

	tmpl, err := template.New("postmortem").Funcs(template.FuncMap{
		"escapeHTML":     html.EscapeString,
		"label":          label,
		"formatTime":     formatTime,
		"formatDuration": formatDuration,
	}).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	return &Client{
		config: config,
		api: httpapi.NewClient("confluence", config.URL,
			httpapi.WithBasicAuth(config.Username, config.APIToken),
			httpapi.WithTimeout(config.Timeout),
		),
		template: tmpl,
		now:      time.Now,
	}, nil
}

type storage struct {
	Value          string `json:"value"`
	Representation string `json:"representation"`
}

type createPageRequest struct {
	Type      string              `json:"type"`
	Title     string              `json:"title"`
	Space     map[string]string   `json:"space"`
	Ancestors []map[string]string `json:"ancestors,omitempty"`
	Body      struct {
		Storage storage `json:"storage"`
	} `json:"body"`
}

type createPageResponse struct {
	ID    string `json:"id"`
	Links struct {
		Base  string `json:"base"`
		WebUI string `json:"webui"`
	} `json:"_links"`
}

type documentData struct {
	incidents.DocumentInput
	Duration time.Duration
}

// CreateDocument renders the postmortem page and returns its URL.
func (c *Client) CreateDocument(ctx context.Context, input incidents.DocumentInput) (string, error) {
	body, err := c.render(input)
	if err != nil {
		return "", err
	}

	req := createPageRequest{
		Type:  "page",
		Title: fmt.Sprintf("Postmortem: %s (%s)", input.Incident.Description, input.Incident.ID),
		Space: map[string]string{"key": c.config.Space},
	}
	if c.config.ParentID != "" {
		req.Ancestors = []map[string]string{{"id": c.config.ParentID}}
	}
	req.Body.Storage = storage{Value: body, Representation: "storage"}

	var resp createPageResponse
	if err := c.api.Do(ctx, http.MethodPost, "/rest/api/content", req, &resp); err != nil {
		return "", fmt.Errorf("create confluence page: %w", err)
	}

	base := resp.Links.Base
	if base == "" {
		base = c.api.BaseURL()
	}
	return base + resp.Links.WebUI, nil
}

func (c *Client) render(input incidents.DocumentInput) (string, error) {
	data := documentData{
		DocumentInput: input,
		Duration:      c.now().Sub(input.Incident.CreatedAt),
	}

	var buf bytes.Buffer
	if err := c.template.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func label(v any) string {
	return incidents.Label(fmt.Sprint(v))
}

func formatTime(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours > 0 {
		if minutes > 0 {
			return fmt.Sprintf("%dh %dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", minutes)
}
