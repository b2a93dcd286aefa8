// Package analytics turns a window of submissions into the dashboard report:
// a daily time series, geographic, device and browser breakdowns, endpoint
// volumes and summary statistics.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/ruteri/form-intake-backend/interfaces"
	"github.com/ruteri/form-intake-backend/metrics"
)

const (
	DefaultWindowDays = 30
	MaxWindowDays     = 365

	// TopN limits the country and endpoint rankings.
	TopN = 10

	dateLayout = "2006-01-02"
)

// ErrInvalidWindow is returned for a window outside 1..MaxWindowDays.
var ErrInvalidWindow = fmt.Errorf("window must be between 1 and %d days", MaxWindowDays)

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type CountryCount struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

type DeviceCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type BrowserCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type EndpointCount struct {
	Endpoint string `json:"endpoint"`
	Count    int    `json:"count"`
}

type Summary struct {
	TotalSubmissions int     `json:"totalSubmissions"`
	AveragePerDay    float64 `json:"averagePerDay"`
	WindowDays       int     `json:"windowDays"`
	UniqueEndpoints  int     `json:"uniqueEndpoints"`
	BusiestDay       string  `json:"busiestDay,omitempty"`
}

// Report is the analytics payload for one window.
type Report struct {
	TimeSeries []DayCount      `json:"timeSeries"`
	Countries  []CountryCount  `json:"countries"`
	Devices    []DeviceCount   `json:"devices"`
	Browsers   []BrowserCount  `json:"browsers"`
	Endpoints  []EndpointCount `json:"endpoints"`
	Summary    Summary         `json:"summary"`
}

// ValidateWindow checks a requested window size.
func ValidateWindow(windowDays int) error {
	if windowDays < 1 || windowDays > MaxWindowDays {
		return ErrInvalidWindow
	}
	return nil
}

// Engine builds reports from the store.
type Engine struct {
	store interfaces.SubmissionStore
	now   func() time.Time
	log   *slog.Logger
}

// NewEngine creates an engine reading from store.
func NewEngine(store interfaces.SubmissionStore, log *slog.Logger) *Engine {
	return &Engine{
		store: store,
		now:   time.Now,
		log:   log,
	}
}

// WithClock replaces the engine clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Aggregate loads the submissions of the last windowDays days and computes
// the report. It only reads from the store.
func (e *Engine) Aggregate(ctx context.Context, windowDays int) (*Report, error) {
	if err := ValidateWindow(windowDays); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		metrics.AnalyticsDuration.Observe(time.Since(start).Seconds())
	}()

	now := e.now().UTC()
	since := now.Add(-time.Duration(windowDays) * 24 * time.Hour)

	subs, err := e.store.SubmissionsSince(ctx, since)
	if err != nil {
		return nil, err
	}

	report := Compute(subs, windowDays, now)
	e.log.Debug("Computed analytics report",
		slog.Int("windowDays", windowDays),
		slog.Int("submissions", report.Summary.TotalSubmissions))
	return report, nil
}

// Compute builds the report for subs as seen at now. It is deterministic for
// a given input regardless of the order of subs.
func Compute(subs []interfaces.Submission, windowDays int, now time.Time) *Report {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// Every day of the window is present, even without activity.
	series := make([]DayCount, 0, windowDays+1)
	dayIndex := make(map[string]int, windowDays+1)
	for i := windowDays; i >= 0; i-- {
		date := today.AddDate(0, 0, -i).Format(dateLayout)
		dayIndex[date] = len(series)
		series = append(series, DayCount{Date: date})
	}

	countries := map[string]int{}
	endpoints := map[string]int{}
	devices := map[string]int{}
	browsers := map[string]int{}

	for i := range subs {
		sub := &subs[i]
		if idx, ok := dayIndex[sub.CreatedAt.UTC().Format(dateLayout)]; ok {
			series[idx].Count++
		}
		countries[Country(sub.BrowserInfo)]++
		endpoints[sub.EndpointName]++
		devices[ClassifyDevice(sub.BrowserInfo)]++
		browsers[ClassifyBrowser(sub.BrowserInfo.Get(interfaces.BrowserInfoUserAgent))]++
	}

	report := &Report{
		TimeSeries: series,
		Countries:  []CountryCount{},
		Devices:    make([]DeviceCount, 0, len(deviceOrder)),
		Browsers:   make([]BrowserCount, 0, len(browserOrder)),
		Endpoints:  []EndpointCount{},
	}

	for _, rc := range topN(countries, TopN) {
		report.Countries = append(report.Countries, CountryCount{Country: rc.name, Count: rc.count})
	}
	for _, rc := range topN(endpoints, TopN) {
		report.Endpoints = append(report.Endpoints, EndpointCount{Endpoint: rc.name, Count: rc.count})
	}
	for _, device := range deviceOrder {
		report.Devices = append(report.Devices, DeviceCount{Type: device, Count: devices[device]})
	}
	for _, browser := range browserOrder {
		report.Browsers = append(report.Browsers, BrowserCount{Name: browser, Count: browsers[browser]})
	}

	report.Summary = Summary{
		TotalSubmissions: len(subs),
		AveragePerDay:    math.Round(float64(len(subs))/float64(windowDays)*10) / 10,
		WindowDays:       windowDays,
		UniqueEndpoints:  len(endpoints),
	}
	busiest := -1
	for i, day := range series {
		if day.Count > 0 && (busiest < 0 || day.Count > series[busiest].Count) {
			busiest = i
		}
	}
	if busiest >= 0 {
		report.Summary.BusiestDay = series[busiest].Date
	}

	return report
}

type rankedCount struct {
	name  string
	count int
}

// topN orders counts descending with ties broken by name, keeping n entries.
func topN(counts map[string]int, n int) []rankedCount {
	ranked := make([]rankedCount, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, rankedCount{name: name, count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].name < ranked[j].name
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
