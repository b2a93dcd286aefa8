package analytics

import (
	"strings"

	"github.com/ruteri/form-intake-backend/interfaces"
)

const (
	DeviceMobile  = "Mobile"
	DeviceDesktop = "Desktop"
)

const (
	BrowserChrome  = "Chrome"
	BrowserSafari  = "Safari"
	BrowserFirefox = "Firefox"
	BrowserEdge    = "Edge"
	BrowserOther   = "Other"
)

// deviceOrder and browserOrder fix the output order of the breakdowns.
var (
	deviceOrder  = []string{DeviceMobile, DeviceDesktop}
	browserOrder = []string{BrowserChrome, BrowserSafari, BrowserFirefox, BrowserEdge, BrowserOther}
)

var mobileMarkers = []string{"mobile", "android", "iphone", "ipad", "phone"}

// ClassifyDevice returns DeviceMobile when the client hint says so or the
// user agent carries a mobile marker.
func ClassifyDevice(info interfaces.BrowserInfo) string {
	if info.Get(interfaces.BrowserInfoMobile) == "true" {
		return DeviceMobile
	}
	ua := strings.ToLower(info.Get(interfaces.BrowserInfoUserAgent))
	for _, marker := range mobileMarkers {
		if strings.Contains(ua, marker) {
			return DeviceMobile
		}
	}
	return DeviceDesktop
}

// ClassifyBrowser matches the user agent in a fixed priority order.
// Chromium-based browsers advertise Safari too, so Chrome is checked first.
// The order is kept stable even where it misclassifies (e.g. Edge reports Chrome).
func ClassifyBrowser(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "chrome"):
		return BrowserChrome
	case strings.Contains(ua, "safari"):
		return BrowserSafari
	case strings.Contains(ua, "firefox"):
		return BrowserFirefox
	case strings.Contains(ua, "edge"):
		return BrowserEdge
	default:
		return BrowserOther
	}
}

// Country returns the recorded country or interfaces.Unknown.
func Country(info interfaces.BrowserInfo) string {
	if country := strings.TrimSpace(info.Get(interfaces.BrowserInfoCountry)); country != "" {
		return country
	}
	return interfaces.Unknown
}
