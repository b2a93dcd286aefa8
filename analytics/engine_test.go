package analytics

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/ruteri/form-intake-backend/interfaces"
	"github.com/ruteri/form-intake-backend/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	uaChromeDesktop = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	uaSafariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Version/17.0 Mobile/15E148 Safari/604.1"
	uaFirefox       = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	uaLegacyEdge    = "Mozilla/5.0 (Windows NT 10.0) Edge/18.19041"
	uaCurl          = "curl/8.4.0"
)

var reportNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func sub(endpoint, country, ua string, createdAt time.Time) interfaces.Submission {
	info := interfaces.BrowserInfo{interfaces.BrowserInfoUserAgent: ua}
	if country != "" {
		info[interfaces.BrowserInfoCountry] = country
	}
	return interfaces.Submission{
		ID:           endpoint + createdAt.String(),
		EndpointName: endpoint,
		Data:         []byte(`{}`),
		BrowserInfo:  info,
		CreatedAt:    createdAt,
	}
}

func fixtureSet() []interfaces.Submission {
	day := func(daysAgo int, hour int) time.Time {
		return time.Date(2026, 3, 10-daysAgo, hour, 0, 0, 0, time.UTC)
	}
	return []interfaces.Submission{
		sub("contact", "DE", uaChromeDesktop, day(0, 9)),
		sub("contact", "DE", uaSafariIPhone, day(0, 10)),
		sub("contact", "US", uaFirefox, day(1, 12)),
		sub("newsletter", "", uaLegacyEdge, day(3, 8)),
		sub("newsletter", "US", uaCurl, day(3, 18)),
		sub("careers", "FR", uaChromeDesktop, day(7, 16)),
	}
}

func TestCompute_SevenDayWindow(t *testing.T) {
	report := Compute(fixtureSet(), 7, reportNow)

	require.Len(t, report.TimeSeries, 8)
	assert.Equal(t, "2026-03-03", report.TimeSeries[0].Date)
	assert.Equal(t, "2026-03-10", report.TimeSeries[7].Date)

	expected := map[string]int{
		"2026-03-03": 1,
		"2026-03-07": 2,
		"2026-03-09": 1,
		"2026-03-10": 2,
	}
	seriesTotal := 0
	for i, day := range report.TimeSeries {
		assert.Equal(t, expected[day.Date], day.Count, day.Date)
		if i > 0 {
			assert.Less(t, report.TimeSeries[i-1].Date, day.Date)
		}
		seriesTotal += day.Count
	}
	assert.Equal(t, 6, seriesTotal)

	assert.Equal(t, []DeviceCount{{Type: DeviceMobile, Count: 1}, {Type: DeviceDesktop, Count: 5}}, report.Devices)
	assert.Equal(t, []BrowserCount{
		{Name: BrowserChrome, Count: 2},
		{Name: BrowserSafari, Count: 1},
		{Name: BrowserFirefox, Count: 1},
		{Name: BrowserEdge, Count: 1},
		{Name: BrowserOther, Count: 1},
	}, report.Browsers)

	deviceTotal, browserTotal := 0, 0
	for _, d := range report.Devices {
		deviceTotal += d.Count
	}
	for _, b := range report.Browsers {
		browserTotal += b.Count
	}
	assert.Equal(t, 6, deviceTotal)
	assert.Equal(t, 6, browserTotal)

	assert.Equal(t, []CountryCount{
		{Country: "DE", Count: 2},
		{Country: "US", Count: 2},
		{Country: "FR", Count: 1},
		{Country: interfaces.Unknown, Count: 1},
	}, report.Countries)

	assert.Equal(t, []EndpointCount{
		{Endpoint: "contact", Count: 3},
		{Endpoint: "newsletter", Count: 2},
		{Endpoint: "careers", Count: 1},
	}, report.Endpoints)

	assert.Equal(t, Summary{
		TotalSubmissions: 6,
		AveragePerDay:    0.9,
		WindowDays:       7,
		UniqueEndpoints:  3,
		BusiestDay:       "2026-03-07",
	}, report.Summary)
}

func TestCompute_Deterministic(t *testing.T) {
	subs := fixtureSet()
	first := Compute(subs, 7, reportNow)

	shuffled := append([]interfaces.Submission(nil), subs...)
	rand.New(rand.NewSource(1)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	assert.Equal(t, first, Compute(shuffled, 7, reportNow))
}

func TestCompute_Empty(t *testing.T) {
	report := Compute(nil, 30, reportNow)

	assert.Len(t, report.TimeSeries, 31)
	assert.Empty(t, report.Countries)
	assert.Empty(t, report.Endpoints)
	assert.Len(t, report.Devices, 2)
	assert.Len(t, report.Browsers, 5)
	assert.Equal(t, 0.0, report.Summary.AveragePerDay)
	assert.Equal(t, "", report.Summary.BusiestDay)
}

func TestCompute_TopTenWithNameTieBreak(t *testing.T) {
	var subs []interfaces.Submission
	for i := 0; i < 12; i++ {
		name := string(rune('l' - i))
		subs = append(subs, sub("form-"+name, name, uaCurl, reportNow.Add(-time.Duration(i)*time.Minute)))
	}
	report := Compute(subs, 1, reportNow)

	require.Len(t, report.Countries, TopN)
	require.Len(t, report.Endpoints, TopN)
	assert.Equal(t, "a", report.Countries[0].Country)
	assert.Equal(t, "j", report.Countries[9].Country)
	assert.Equal(t, "form-a", report.Endpoints[0].Endpoint)
}

func TestClassifyBrowser(t *testing.T) {
	tests := map[string]string{
		uaChromeDesktop: BrowserChrome,
		uaSafariIPhone:  BrowserSafari,
		uaFirefox:       BrowserFirefox,
		uaLegacyEdge:    BrowserEdge,
		// Chromium Edge reports Chrome and stays classified as Chrome
		"Mozilla/5.0 (Windows NT 10.0) Chrome/120.0 Safari/537.36 Edg/120.0": BrowserChrome,
		uaCurl:            BrowserOther,
		interfaces.Unknown: BrowserOther,
	}
	for ua, expected := range tests {
		assert.Equal(t, expected, ClassifyBrowser(ua), ua)
	}
}

func TestClassifyDevice(t *testing.T) {
	assert.Equal(t, DeviceMobile, ClassifyDevice(interfaces.BrowserInfo{interfaces.BrowserInfoUserAgent: "Mozilla/5.0 (Linux; Android 14)"}))
	assert.Equal(t, DeviceMobile, ClassifyDevice(interfaces.BrowserInfo{interfaces.BrowserInfoUserAgent: "Mozilla/5.0 (iPad; CPU OS 17_0)"}))
	assert.Equal(t, DeviceMobile, ClassifyDevice(interfaces.BrowserInfo{
		interfaces.BrowserInfoUserAgent: uaChromeDesktop,
		interfaces.BrowserInfoMobile:    "true",
	}))
	assert.Equal(t, DeviceDesktop, ClassifyDevice(interfaces.BrowserInfo{interfaces.BrowserInfoUserAgent: uaChromeDesktop}))
	assert.Equal(t, DeviceDesktop, ClassifyDevice(interfaces.BrowserInfo{}))
}

func TestEngine_Aggregate(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	clock := reportNow.Add(-48 * time.Hour)
	store := storage.NewMemoryStore(log).WithClock(func() time.Time { return clock })
	for _, created := range []time.Time{reportNow.Add(-40 * 24 * time.Hour), reportNow.Add(-48 * time.Hour), reportNow.Add(-time.Hour)} {
		clock = created
		_, err := store.CreateSubmission(ctx, &interfaces.NewSubmission{
			EndpointName: "contact",
			Data:         []byte(`{"name":"Jane"}`),
			BrowserInfo:  interfaces.BrowserInfo{interfaces.BrowserInfoUserAgent: uaChromeDesktop},
			IPAddress:    interfaces.Unknown,
		})
		require.NoError(t, err)
	}

	engine := NewEngine(store, log).WithClock(func() time.Time { return reportNow })

	report, err := engine.Aggregate(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Summary.TotalSubmissions)
	assert.Len(t, report.TimeSeries, 31)

	_, err = engine.Aggregate(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)
	_, err = engine.Aggregate(ctx, 366)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}
