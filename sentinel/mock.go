/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

// Package sentinel serves security-incident data for the triage API.
// Until the real workspace integration lands, data is produced by a mock
// generator that mirrors the shapes of the Sentinel incident API.
package sentinel

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// SeverityLevels are the incident severity levels, lowest first.
var SeverityLevels = []string{"Low", "Medium", "High", "Critical"}

// IncidentStatuses are the lifecycle states of an incident.
var IncidentStatuses = []string{"New", "Active", "Investigating", "Resolved", "Closed"}

// IncidentTypes are the detection categories incidents are generated from.
var IncidentTypes = []string{
	"Suspicious sign-in activity",
	"Malware detected",
	"Suspicious resource deployment",
	"Unusual network activity",
	"Data exfiltration",
	"Privilege escalation",
	"Brute force attack",
}

// Incident is a single row of an incident listing.
type Incident struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Severity       string    `json:"severity"`
	Status         string    `json:"status"`
	Created        time.Time `json:"created"`
	AssignedTo     string    `json:"assignedTo"`
	Type           string    `json:"type"`
	ResourceName   string    `json:"resourceName"`
	SubscriptionID string    `json:"subscriptionId"`
}

// Owner is the analyst an incident is assigned to.
type Owner struct {
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	AssignedTime time.Time `json:"assignedTime"`
}

// RelatedResource is a resource involved in an incident.
type RelatedResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Alert is a single alert grouped under an incident.
type Alert struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Severity string    `json:"severity"`
	Time     time.Time `json:"time"`
}

// TimelineEvent is one entry of the incident's audit timeline, newest first.
type TimelineEvent struct {
	Time   time.Time `json:"time"`
	Action string    `json:"action"`
	User   string    `json:"user"`
}

// Comment is an analyst comment on an incident.
type Comment struct {
	ID   string    `json:"id"`
	User string    `json:"user"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// IncidentDetail is the full view of a single incident.
type IncidentDetail struct {
	Incident

	Description      string            `json:"description"`
	AlertsCount      int               `json:"alertsCount"`
	EntitiesCount    int               `json:"entitiesCount"`
	LastActivityTime time.Time         `json:"lastActivityTime"`
	Owner            Owner             `json:"owner"`
	RelatedResources []RelatedResource `json:"relatedResources"`
	Alerts           []Alert           `json:"alerts"`
	Timeline         []TimelineEvent   `json:"timeline"`
	Comments         []Comment         `json:"comments"`
	Recommendations  []string          `json:"recommendations"`
}

// DashboardSummary aggregates the headline numbers of the metrics dashboard.
type DashboardSummary struct {
	TotalIncidents       int     `json:"totalIncidents"`
	OpenIncidents        int     `json:"openIncidents"`
	ResolvedLast24h      int     `json:"resolvedLast24h"`
	NewLast24h           int     `json:"newLast24h"`
	MeanTimeToResolution float64 `json:"meanTimeToResolution"`
	CriticalIncidents    int     `json:"criticalIncidents"`
}

// Trend is the daily incident count series for the dashboard.
type Trend struct {
	Dates     []string `json:"dates"`
	Incidents []int    `json:"incidents"`
}

// LabeledCounts is a label/value series of integer counts.
type LabeledCounts struct {
	Labels []string `json:"labels"`
	Values []int    `json:"values"`
}

// LabeledHours is a label/value series of durations measured in hours.
type LabeledHours struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// ResourceCount is a single affected resource with its incident count.
type ResourceCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Dashboard is the security metrics dashboard payload.
type Dashboard struct {
	Summary              DashboardSummary `json:"summary"`
	Trend                Trend            `json:"trend"`
	SeverityDistribution LabeledCounts    `json:"severityDistribution"`
	IncidentsByType      LabeledCounts    `json:"incidentsByType"`
	TopAffectedResources []ResourceCount  `json:"topAffectedResources"`
	ResolutionTimes      LabeledHours     `json:"resolutionTimes"`
	StatusDistribution   LabeledCounts    `json:"statusDistribution"`
}

// Filter narrows incident listings. Zero values mean "no constraint".
type Filter struct {
	Severity string
	Status   string
	DateFrom time.Time
	DateTo   time.Time
}

// Generator produces mock incident data. It is not safe for concurrent use;
// Client guards it with a mutex.
type Generator struct {
	rnd *rand.Rand
	now func() time.Time
}

// NewGenerator creates a Generator seeded from the current time.
func NewGenerator() *Generator {
	return NewGeneratorWithSeed(time.Now().UnixNano())
}

// NewGeneratorWithSeed creates a deterministic Generator for tests.
func NewGeneratorWithSeed(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed)), now: time.Now}
}

// Incidents generates up to limit incidents matching the filter.
func (g *Generator) Incidents(limit int, filter Filter) []Incident {
	incidents := make([]Incident, 0, limit)
	for i := 0; i < limit; i++ {
		created := g.now().AddDate(0, 0, -g.rnd.Intn(8))
		if !filter.DateFrom.IsZero() && created.Before(filter.DateFrom) {
			continue
		}
		if !filter.DateTo.IsZero() && created.After(filter.DateTo) {
			continue
		}
		incidents = append(incidents, g.incident(uuid.NewString(), created, filter.Severity, filter.Status))
	}
	return incidents
}

// IncidentDetail generates the full view of the incident with the given id.
func (g *Generator) IncidentDetail(incidentID string) IncidentDetail {
	now := g.now()
	detail := IncidentDetail{
		Incident: g.incident(incidentID, now.AddDate(0, 0, -g.rnd.Intn(8)), "", ""),
		Description: fmt.Sprintf(
			"Detailed description for incident %s. This incident was detected based on anomalous activity patterns.",
			shortID(incidentID)),
		AlertsCount:      1 + g.rnd.Intn(10),
		EntitiesCount:    1 + g.rnd.Intn(20),
		LastActivityTime: now.Add(-time.Duration(1+g.rnd.Intn(48)) * time.Hour),
		Owner: Owner{
			Name:         fmt.Sprintf("User %d", 1+g.rnd.Intn(5)),
			Email:        g.userEmail(),
			AssignedTime: now.Add(-time.Duration(1+g.rnd.Intn(24)) * time.Hour),
		},
	}

	for i := 0; i < 1+g.rnd.Intn(3); i++ {
		detail.RelatedResources = append(detail.RelatedResources, RelatedResource{
			ID:   fmt.Sprintf("resource-%d", 1000+g.rnd.Intn(9000)),
			Name: fmt.Sprintf("vm-%d", 1000+g.rnd.Intn(9000)),
			Type: "VirtualMachine",
		})
	}
	for i := 0; i < 1+g.rnd.Intn(5); i++ {
		detail.Alerts = append(detail.Alerts, Alert{
			ID:       fmt.Sprintf("alert-%d", 1000+g.rnd.Intn(9000)),
			Name:     fmt.Sprintf("Alert %d for %s", i+1, shortID(incidentID)),
			Severity: SeverityLevels[g.rnd.Intn(len(SeverityLevels))],
			Time:     now.Add(-time.Duration(1+g.rnd.Intn(48)) * time.Hour),
		})
	}

	actions := []string{"Created", "StatusChanged", "CommentAdded", "AssigneeChanged"}
	for i, action := range actions[:1+g.rnd.Intn(len(actions))] {
		event := TimelineEvent{
			Time:   now.Add(-time.Duration((i+1)*8+g.rnd.Intn(8)) * time.Hour),
			Action: action,
			User:   g.userEmail(),
		}
		if action == "Created" {
			event.User = "System"
		}
		detail.Timeline = append(detail.Timeline, event)
	}
	for i := 0; i < g.rnd.Intn(4); i++ {
		detail.Comments = append(detail.Comments, Comment{
			ID:   fmt.Sprintf("comment-%d", 1000+g.rnd.Intn(9000)),
			User: g.userEmail(),
			Text: fmt.Sprintf("Comment %d on incident %s", i+1, shortID(incidentID)),
			Time: now.Add(-time.Duration(1+g.rnd.Intn(48)) * time.Hour),
		})
	}
	detail.Recommendations = []string{
		"Investigate suspicious login attempts",
		"Check for unauthorized changes to security groups",
		"Review network traffic logs",
		"Apply latest security patches",
	}[:1+g.rnd.Intn(4)]

	return detail
}

// Dashboard generates the metrics dashboard for the last 30 days.
func (g *Generator) Dashboard() Dashboard {
	const days = 30
	now := g.now()

	trend := Trend{Dates: make([]string, days), Incidents: make([]int, days)}
	for i := 0; i < days; i++ {
		trend.Dates[i] = now.AddDate(0, 0, i-days+1).Format("2006-01-02")
		trend.Incidents[i] = 3 + g.rnd.Intn(13)
	}

	severityCounts := map[string]int{
		"Critical": 5 + g.rnd.Intn(11),
		"High":     15 + g.rnd.Intn(26),
		"Medium":   30 + g.rnd.Intn(41),
		"Low":      40 + g.rnd.Intn(61),
	}
	severityOrder := []string{"Critical", "High", "Medium", "Low"}
	severityDist := LabeledCounts{Labels: severityOrder}
	totalIncidents := 0
	for _, severity := range severityOrder {
		severityDist.Values = append(severityDist.Values, severityCounts[severity])
		totalIncidents += severityCounts[severity]
	}

	byType := LabeledCounts{Labels: IncidentTypes}
	for range IncidentTypes {
		byType.Values = append(byType.Values, 10+g.rnd.Intn(41))
	}

	topResources := make([]ResourceCount, 0, 5)
	for i := 1; i <= 5; i++ {
		topResources = append(topResources, ResourceCount{
			Name:  fmt.Sprintf("resource-%d", i),
			Count: 5 + g.rnd.Intn(21),
		})
	}
	for i := 0; i < len(topResources); i++ {
		for j := i + 1; j < len(topResources); j++ {
			if topResources[j].Count > topResources[i].Count {
				topResources[i], topResources[j] = topResources[j], topResources[i]
			}
		}
	}

	mttr := LabeledHours{Labels: severityOrder}
	mttrRanges := [][2]float64{{1, 8}, {8, 24}, {24, 72}, {72, 168}}
	for _, r := range mttrRanges {
		mttr.Values = append(mttr.Values, roundHours(r[0]+g.rnd.Float64()*(r[1]-r[0])))
	}

	statusDist := LabeledCounts{Labels: IncidentStatuses}
	for range IncidentStatuses {
		statusDist.Values = append(statusDist.Values, 10+g.rnd.Intn(41))
	}

	openLow := totalIncidents * 2 / 10
	openHigh := totalIncidents * 5 / 10
	return Dashboard{
		Summary: DashboardSummary{
			TotalIncidents:       totalIncidents,
			OpenIncidents:        openLow + g.rnd.Intn(openHigh-openLow+1),
			ResolvedLast24h:      5 + g.rnd.Intn(16),
			NewLast24h:           5 + g.rnd.Intn(21),
			MeanTimeToResolution: roundHours(10 + g.rnd.Float64()*38),
			CriticalIncidents:    severityCounts["Critical"],
		},
		Trend:                trend,
		SeverityDistribution: severityDist,
		IncidentsByType:      byType,
		TopAffectedResources: topResources,
		ResolutionTimes:      mttr,
		StatusDistribution:   statusDist,
	}
}

func (g *Generator) incident(id string, created time.Time, severity, status string) Incident {
	if severity == "" {
		severity = SeverityLevels[g.rnd.Intn(len(SeverityLevels))]
	}
	if status == "" {
		status = IncidentStatuses[g.rnd.Intn(len(IncidentStatuses))]
	}
	assignedTo := "unassigned"
	if g.rnd.Float64() >= 0.3 {
		assignedTo = g.userEmail()
	}
	incidentType := IncidentTypes[g.rnd.Intn(len(IncidentTypes))]
	return Incident{
		ID:             id,
		Title:          fmt.Sprintf("%s - %s", incidentType, shortID(id)),
		Severity:       severity,
		Status:         status,
		Created:        created,
		AssignedTo:     assignedTo,
		Type:           incidentType,
		ResourceName:   fmt.Sprintf("vm-%d", 1000+g.rnd.Intn(9000)),
		SubscriptionID: fmt.Sprintf("subscription-%d", 1+g.rnd.Intn(5)),
	}
}

func (g *Generator) userEmail() string {
	return fmt.Sprintf("user%d@example.com", 1+g.rnd.Intn(5))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func roundHours(h float64) float64 {
	return float64(int(h*10+0.5)) / 10
}
