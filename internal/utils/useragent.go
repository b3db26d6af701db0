package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// ClientInfo holds parsed information from a User-Agent string
type ClientInfo struct {
	DeviceType string `json:"device_type"` // mobile, tablet, desktop
	OS         string `json:"os"`          // Android 12, iOS 15, Windows 10, etc.
	Browser    string `json:"browser"`
	BrowserVer string `json:"browser_ver"`
	IsBot      bool   `json:"is_bot"`
}

// ParseUserAgent parses a User-Agent string
func ParseUserAgent(userAgent string) ClientInfo {
	if userAgent == "" || userAgent == "Unknown" {
		return ClientInfo{DeviceType: "unknown", OS: "Unknown", Browser: "Unknown"}
	}

	parser := ua.New(userAgent)
	name, version := parser.Browser()
	if name == "" {
		name = "Unknown"
	}

	return ClientInfo{
		DeviceType: deviceType(parser),
		OS:         osName(parser),
		Browser:    name,
		BrowserVer: version,
		IsBot:      parser.Bot(),
	}
}

// Summary renders the info as one short audit string, e.g. "Chrome 120 / Android 14 / mobile"
func (c ClientInfo) Summary() string {
	browser := c.Browser
	if c.BrowserVer != "" {
		if major, _, _ := strings.Cut(c.BrowserVer, "."); major != "" {
			browser += " " + major
		}
	}
	summary := browser + " / " + c.OS + " / " + c.DeviceType
	if c.IsBot {
		summary += " (bot)"
	}
	return summary
}

func deviceType(parser *ua.UserAgent) string {
	if !parser.Mobile() {
		return "desktop"
	}
	lower := strings.ToLower(parser.UA())
	for _, indicator := range []string{"ipad", "tablet", "kindle", "sm-t"} {
		if strings.Contains(lower, indicator) {
			return "tablet"
		}
	}
	return "mobile"
}

func osName(parser *ua.UserAgent) string {
	info := parser.OSInfo()
	if info.Name == "" {
		return "Unknown"
	}
	if info.Version != "" {
		return info.Name + " " + info.Version
	}
	return info.Name
}
