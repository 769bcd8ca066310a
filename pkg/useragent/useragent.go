// Package useragent parses HTTP User-Agent strings into the coarse device
// and browser facts the signup funnel and log contexts need. It is not a
// full UA database; unrecognized agents come back as "unknown".
package useragent

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Device type classifications.
const (
	DeviceTypeDesktop = "desktop"
	DeviceTypeMobile  = "mobile"
	DeviceTypeTablet  = "tablet"
	DeviceTypeBot     = "bot"
	DeviceTypeUnknown = "unknown"
)

// UserAgent contains the parsed information from a user agent string.
type UserAgent struct {
	raw         string
	deviceType  string
	os          string
	browserName string
	browserVer  string
}

// String returns the raw user agent string.
func (ua UserAgent) String() string { return ua.raw }

// DeviceType returns the device type (desktop, mobile, tablet, bot, unknown).
func (ua UserAgent) DeviceType() string { return ua.deviceType }

// OS returns the operating system name.
func (ua UserAgent) OS() string { return ua.os }

// BrowserName returns the browser name.
func (ua UserAgent) BrowserName() string { return ua.browserName }

// BrowserVer returns the browser version.
func (ua UserAgent) BrowserVer() string { return ua.browserVer }

// Browser returns "Name/Version" or just the name when the version is
// unknown.
func (ua UserAgent) Browser() string {
	if ua.browserVer == "" {
		return ua.browserName
	}
	return ua.browserName + "/" + ua.browserVer
}

// IsBot returns true if the user agent looks like an automated client.
func (ua UserAgent) IsBot() bool { return ua.deviceType == DeviceTypeBot }

var (
	botRegex     = regexp.MustCompile(`(?i)bot|crawler|spider|curl|wget|python-requests|headless`)
	tabletRegex  = regexp.MustCompile(`(?i)ipad|tablet|kindle|silk`)
	mobileRegex  = regexp.MustCompile(`(?i)mobile|iphone|ipod|android|blackberry|windows phone`)
	versionRegex = regexp.MustCompile(`(firefox|edg|opr|chrome|version)/(\d+(?:\.\d+)*)`)

	titleCaser = cases.Title(language.English)
)

// Parse extracts device, OS, and browser facts from a User-Agent header
// value.
func Parse(raw string) UserAgent {
	ua := UserAgent{
		raw:         raw,
		deviceType:  DeviceTypeUnknown,
		os:          "unknown",
		browserName: "unknown",
	}

	if strings.TrimSpace(raw) == "" {
		return ua
	}

	lower := strings.ToLower(raw)

	switch {
	case botRegex.MatchString(lower):
		ua.deviceType = DeviceTypeBot
	case tabletRegex.MatchString(lower):
		ua.deviceType = DeviceTypeTablet
	case mobileRegex.MatchString(lower):
		ua.deviceType = DeviceTypeMobile
	default:
		ua.deviceType = DeviceTypeDesktop
	}

	ua.os = parseOS(lower)
	ua.browserName, ua.browserVer = parseBrowser(lower)

	return ua
}

func parseOS(lower string) string {
	switch {
	case strings.Contains(lower, "windows"):
		return "Windows"
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipad"), strings.Contains(lower, "ios"):
		return "iOS"
	case strings.Contains(lower, "mac os"), strings.Contains(lower, "macintosh"):
		return "macOS"
	case strings.Contains(lower, "android"):
		return "Android"
	case strings.Contains(lower, "linux"):
		return "Linux"
	default:
		return "unknown"
	}
}

// Order matters: Chrome-derived browsers keep "chrome" in their UA, so the
// more specific markers are checked first.
func parseBrowser(lower string) (name, version string) {
	markers := []struct {
		token string
		name  string
	}{
		{"edg", "Edge"},
		{"opr", "Opera"},
		{"firefox", "Firefox"},
		{"chrome", "Chrome"},
		{"version", "Safari"}, // Safari reports Version/x.y Safari/...
	}

	for _, m := range markers {
		if !strings.Contains(lower, m.token+"/") {
			continue
		}
		if m.name == "Safari" && !strings.Contains(lower, "safari") {
			continue
		}
		name = m.name
		if match := versionRegex.FindStringSubmatch(lower); len(match) == 3 && match[1] == m.token {
			version = match[2]
		}
		return name, version
	}

	if strings.Contains(lower, "safari") {
		return "Safari", ""
	}

	// Fall back to the first product token, e.g. "curl" from "curl/8.4.0".
	if idx := strings.IndexByte(lower, '/'); idx > 0 {
		return titleCaser.String(lower[:idx]), ""
	}

	return "unknown", ""
}
