/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package sentinel_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/secopshub/sentriage/sentinel"
)

const testDelegatedToken = "delegated-token"

func newTestClient() *sentinel.Client {
	return sentinel.NewClientWithOpts(sentinel.ClientOpts{
		Generator: sentinel.NewGeneratorWithSeed(42),
	})
}

func TestClientListIncidents(t *testing.T) {
	t.Run("requires delegated token", func(t *testing.T) {
		_, err := newTestClient().ListIncidents(context.Background(), "", 10, sentinel.Filter{})
		require.ErrorIs(t, err, sentinel.ErrDelegatedTokenRequired)
	})

	t.Run("respects limit", func(t *testing.T) {
		incidents, err := newTestClient().ListIncidents(context.Background(), testDelegatedToken, 5, sentinel.Filter{})
		require.NoError(t, err)
		require.Len(t, incidents, 5)
		for _, incident := range incidents {
			require.NotEmpty(t, incident.ID)
			require.Contains(t, sentinel.SeverityLevels, incident.Severity)
			require.Contains(t, sentinel.IncidentStatuses, incident.Status)
		}
	})

	t.Run("zero limit falls back to default", func(t *testing.T) {
		incidents, err := newTestClient().ListIncidents(context.Background(), testDelegatedToken, 0, sentinel.Filter{})
		require.NoError(t, err)
		require.Len(t, incidents, sentinel.DefaultIncidentLimit)
	})

	t.Run("limit is capped", func(t *testing.T) {
		incidents, err := newTestClient().ListIncidents(context.Background(), testDelegatedToken, 1000, sentinel.Filter{})
		require.NoError(t, err)
		require.Len(t, incidents, sentinel.MaxIncidentLimit)
	})

	t.Run("severity and status filters pin values", func(t *testing.T) {
		incidents, err := newTestClient().ListIncidents(context.Background(), testDelegatedToken, 20,
			sentinel.Filter{Severity: "Critical", Status: "Active"})
		require.NoError(t, err)
		require.NotEmpty(t, incidents)
		for _, incident := range incidents {
			require.Equal(t, "Critical", incident.Severity)
			require.Equal(t, "Active", incident.Status)
		}
	})

	t.Run("date filter drops incidents outside the range", func(t *testing.T) {
		dateFrom := time.Now().AddDate(0, 0, -2)
		incidents, err := newTestClient().ListIncidents(context.Background(), testDelegatedToken, 50,
			sentinel.Filter{DateFrom: dateFrom})
		require.NoError(t, err)
		for _, incident := range incidents {
			require.False(t, incident.Created.Before(dateFrom))
		}
	})
}

func TestClientGetIncident(t *testing.T) {
	t.Run("requires delegated token", func(t *testing.T) {
		_, err := newTestClient().GetIncident(context.Background(), "", "incident-1")
		require.ErrorIs(t, err, sentinel.ErrDelegatedTokenRequired)
	})

	t.Run("detail carries the requested id", func(t *testing.T) {
		detail, err := newTestClient().GetIncident(context.Background(), testDelegatedToken,
			"7a1e9c4d-0000-0000-0000-000000000000")
		require.NoError(t, err)
		require.Equal(t, "7a1e9c4d-0000-0000-0000-000000000000", detail.ID)
		require.Contains(t, detail.Title, "7a1e9c4d")
		require.NotEmpty(t, detail.Alerts)
		require.NotEmpty(t, detail.Timeline)
		require.NotEmpty(t, detail.Recommendations)
		require.GreaterOrEqual(t, detail.AlertsCount, 1)
	})
}

func TestClientMetricsDashboard(t *testing.T) {
	t.Run("requires delegated token", func(t *testing.T) {
		_, err := newTestClient().MetricsDashboard(context.Background(), "")
		require.ErrorIs(t, err, sentinel.ErrDelegatedTokenRequired)
	})

	t.Run("dashboard is internally consistent", func(t *testing.T) {
		dashboard, err := newTestClient().MetricsDashboard(context.Background(), testDelegatedToken)
		require.NoError(t, err)

		require.Len(t, dashboard.Trend.Dates, 30)
		require.Len(t, dashboard.Trend.Incidents, 30)

		total := 0
		for _, v := range dashboard.SeverityDistribution.Values {
			total += v
		}
		require.Equal(t, dashboard.Summary.TotalIncidents, total)
		require.Equal(t, dashboard.SeverityDistribution.Values[0], dashboard.Summary.CriticalIncidents)

		require.Len(t, dashboard.TopAffectedResources, 5)
		for i := 1; i < len(dashboard.TopAffectedResources); i++ {
			require.GreaterOrEqual(t,
				dashboard.TopAffectedResources[i-1].Count, dashboard.TopAffectedResources[i].Count)
		}

		require.Equal(t, sentinel.IncidentStatuses, dashboard.StatusDistribution.Labels)
	})
}
