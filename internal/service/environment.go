package service

import (
	"strings"

	"github.com/mssola/useragent"
	"github.com/stemsi/exstem-proctoring/internal/model"
)

const defaultTimezone = "UTC"

// ParseEnvironment builds the client snapshot stored on a session. Browser
// and OS are derived from the user agent; unknown agents yield "Unknown".
func ParseEnvironment(userAgent, screenResolution, ip, timezone string) model.Environment {
	env := model.Environment{
		UserAgent:        userAgent,
		ScreenResolution: screenResolution,
		IPAddress:        ip,
		Browser:          "Unknown",
		OS:               "Unknown",
		Timezone:         strings.TrimSpace(timezone),
	}
	if env.Timezone == "" {
		env.Timezone = defaultTimezone
	}

	if strings.TrimSpace(userAgent) == "" {
		return env
	}

	ua := useragent.New(userAgent)
	if name, _ := ua.Browser(); name != "" {
		env.Browser = name
	}
	if os := ua.OS(); os != "" {
		env.OS = os
	}
	return env
}
