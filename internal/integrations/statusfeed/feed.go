// Package statusfeed reads recent incidents from third-party status pages
// that publish the Statuspage v2 JSON API.
package statusfeed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/incident-bot/internal/incidents"
	"github.com/bissquit/incident-bot/internal/integrations/httpapi"
	"golang.org/x/sync/errgroup"
)

// Provider is a status page to poll.
type Provider struct {
	Name string
	// URL is the page root, e.g. https://www.githubstatus.com.
	URL string
}

// Config holds feed reader configuration.
type Config struct {
	Providers []Provider
	// DaysBack limits results to incidents created within this many days.
	DaysBack int
	Timeout  time.Duration
}

// Reader implements incidents.StatusFeed. Every call fetches fresh data.
type Reader struct {
	config Config
	api    *httpapi.Client
	now    func() time.Time
}

// NewReader creates a new status feed reader.
func NewReader(config Config) *Reader {
	if config.DaysBack <= 0 {
		config.DaysBack = 1
	}
	return &Reader{
		config: config,
		api:    httpapi.NewClient("statusfeed", "", httpapi.WithTimeout(config.Timeout)),
		now:    time.Now,
	}
}

type feedResponse struct {
	Incidents []struct {
		Name      string    `json:"name"`
		Status    string    `json:"status"`
		Impact    string    `json:"impact"`
		Shortlink string    `json:"shortlink"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"incidents"`
}

// RecentIncidents returns incidents of all providers created within the
// configured window, newest first. A failing provider is logged and skipped.
func (r *Reader) RecentIncidents(ctx context.Context) ([]incidents.FeedIncident, error) {
	since := r.now().AddDate(0, 0, -r.config.DaysBack)

	var (
		mu     sync.Mutex
		result []incidents.FeedIncident
		failed int
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range r.config.Providers {
		g.Go(func() error {
			items, err := r.fetch(ctx, p, since)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("status feed unavailable", "provider", p.Name, "error", err)
				failed++
				return nil
			}
			result = append(result, items...)
			return nil
		})
	}
	_ = g.Wait()

	if failed > 0 && failed == len(r.config.Providers) {
		return nil, fmt.Errorf("all %d status feeds failed", failed)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *Reader) fetch(ctx context.Context, p Provider, since time.Time) ([]incidents.FeedIncident, error) {
	var resp feedResponse
	if err := r.api.Do(ctx, http.MethodGet, p.URL+"/api/v2/incidents.json", nil, &resp); err != nil {
		return nil, err
	}

	var out []incidents.FeedIncident
	for _, inc := range resp.Incidents {
		if inc.CreatedAt.Before(since) {
			continue
		}
		out = append(out, incidents.FeedIncident{
			Provider:  p.Name,
			Name:      inc.Name,
			Status:    inc.Status,
			Impact:    inc.Impact,
			URL:       inc.Shortlink,
			CreatedAt: inc.CreatedAt,
		})
	}
	return out, nil
}
