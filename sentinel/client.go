/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package sentinel

import (
	"context"
	"errors"
	"sync"

	"github.com/acronis/go-appkit/log"

	"github.com/secopshub/sentriage/internal/authutil"
)

// Resource is the audience a delegated token must be minted for
// to read incident data.
const Resource = "https://management.azure.com"

const (
	// DefaultIncidentLimit is used when a listing request does not specify a limit.
	DefaultIncidentLimit = 10

	// MaxIncidentLimit caps a single listing request.
	MaxIncidentLimit = 50
)

// ErrDelegatedTokenRequired is returned when incident data is requested
// without a delegated access token.
var ErrDelegatedTokenRequired = errors.New("delegated access token is required")

// ClientOpts are additional options for Client.
type ClientOpts struct {
	// Generator is the data source. A time-seeded one is used if not set.
	Generator *Generator

	// LoggerProvider is a function that provides a logger for the Client.
	LoggerProvider func(ctx context.Context) log.FieldLogger
}

// Client reads incident data on behalf of an authenticated user.
// Every call requires the delegated token minted for Resource; the token is
// not inspected here (the broker already validated the exchange), only its
// presence is enforced.
type Client struct {
	mu             sync.Mutex
	gen            *Generator
	loggerProvider func(ctx context.Context) log.FieldLogger
}

// NewClient creates a new incident data client.
func NewClient() *Client {
	return NewClientWithOpts(ClientOpts{})
}

// NewClientWithOpts creates a new incident data client with options.
func NewClientWithOpts(opts ClientOpts) *Client {
	gen := opts.Generator
	if gen == nil {
		gen = NewGenerator()
	}
	return &Client{gen: gen, loggerProvider: opts.LoggerProvider}
}

// ListIncidents returns up to limit incidents matching the filter.
func (c *Client) ListIncidents(ctx context.Context, delegatedToken string, limit int, filter Filter) ([]Incident, error) {
	if delegatedToken == "" {
		return nil, ErrDelegatedTokenRequired
	}
	if limit <= 0 {
		limit = DefaultIncidentLimit
	}
	if limit > MaxIncidentLimit {
		limit = MaxIncidentLimit
	}

	c.mu.Lock()
	incidents := c.gen.Incidents(limit, filter)
	c.mu.Unlock()

	authutil.GetLoggerFromProvider(ctx, c.loggerProvider).Debug(
		"incidents listed", log.Int("count", len(incidents)))
	return incidents, nil
}

// GetIncident returns the full view of a single incident.
func (c *Client) GetIncident(ctx context.Context, delegatedToken, incidentID string) (IncidentDetail, error) {
	if delegatedToken == "" {
		return IncidentDetail{}, ErrDelegatedTokenRequired
	}

	c.mu.Lock()
	detail := c.gen.IncidentDetail(incidentID)
	c.mu.Unlock()

	authutil.GetLoggerFromProvider(ctx, c.loggerProvider).Debug(
		"incident detail fetched", log.String("incident_id", incidentID))
	return detail, nil
}

// MetricsDashboard returns the security metrics dashboard.
func (c *Client) MetricsDashboard(ctx context.Context, delegatedToken string) (Dashboard, error) {
	if delegatedToken == "" {
		return Dashboard{}, ErrDelegatedTokenRequired
	}

	c.mu.Lock()
	dashboard := c.gen.Dashboard()
	c.mu.Unlock()
	return dashboard, nil
}
