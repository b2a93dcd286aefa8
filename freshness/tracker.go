// Package freshness tracks which endpoints received submissions since an
// operator last looked at them.
package freshness

import (
	"context"
	"log/slog"
	"time"

	"github.com/ruteri/form-intake-backend/interfaces"
)

// Overview aggregates endpoint summaries for the dashboard header.
type Overview struct {
	TotalSubmissions int `json:"totalSubmissions"`
	Endpoints        int `json:"endpoints"`
	NewLeads         int `json:"newLeads"`
}

// Tracker reads and writes per-operator last-viewed markers.
type Tracker struct {
	store interfaces.Store
	now   func() time.Time
	log   *slog.Logger
}

func NewTracker(store interfaces.Store, log *slog.Logger) *Tracker {
	return &Tracker{
		store: store,
		now:   time.Now,
		log:   log,
	}
}

// WithClock replaces the clock used by MarkViewed.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Summarize returns one summary per endpoint, ordered by endpoint name.
func (t *Tracker) Summarize(ctx context.Context, username string) ([]interfaces.EndpointSummary, error) {
	stats, err := t.store.EndpointStats(ctx)
	if err != nil {
		return nil, err
	}
	views, err := t.store.EndpointViews(ctx, username)
	if err != nil {
		return nil, err
	}

	summaries := make([]interfaces.EndpointSummary, 0, len(stats))
	for _, stat := range stats {
		summary := interfaces.EndpointSummary{
			EndpointName: stat.EndpointName,
			Count:        stat.Count,
		}
		if !stat.LatestSubmissionAt.IsZero() {
			latest := stat.LatestSubmissionAt
			summary.LatestSubmissionAt = &latest
		}
		if viewed, ok := views[stat.EndpointName]; ok {
			summary.LastViewedAt = &viewed
		}
		summary.HasUnseen = HasUnseen(summary)
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// HasUnseen reports activity the operator has not looked at yet: a latest
// submission exists and is strictly after the last view, or there is no view.
func HasUnseen(summary interfaces.EndpointSummary) bool {
	if summary.LatestSubmissionAt == nil {
		return false
	}
	if summary.LastViewedAt == nil {
		return true
	}
	return summary.LatestSubmissionAt.After(*summary.LastViewedAt)
}

// MarkViewed records that the operator opened the endpoint now.
// Concurrent calls for the same pair race harmlessly; the last write wins.
func (t *Tracker) MarkViewed(ctx context.Context, username, endpointName string) (time.Time, error) {
	at := t.now().UTC()
	if err := t.store.UpsertEndpointView(ctx, endpointName, username, at); err != nil {
		return time.Time{}, err
	}
	t.log.Debug("Marked endpoint viewed", slog.String("endpoint", endpointName), slog.String("username", username))
	return at, nil
}

// SummarizeOverview totals the summaries for the overview page.
func SummarizeOverview(summaries []interfaces.EndpointSummary) Overview {
	overview := Overview{Endpoints: len(summaries)}
	for _, s := range summaries {
		overview.TotalSubmissions += s.Count
		if s.HasUnseen {
			overview.NewLeads++
		}
	}
	return overview
}
