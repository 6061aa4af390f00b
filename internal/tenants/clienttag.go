package tenants

import (
	"regexp"

	"github.com/aura-webinar/meeting-pipeline/internal/models"
)

// meetingNumberRe matches the numeric id in Zoom join / personal room URLs (…/j/85012345678?pwd=…).
var meetingNumberRe = regexp.MustCompile(`/(?:j|w|s|wc/join)/(\d{9,12})`)

// MeetingNumber extracts the numeric meeting id from a join URL, or "".
func MeetingNumber(joinURL string) string {
	m := meetingNumberRe.FindStringSubmatch(joinURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// MatchClient returns the client whose registered URL has the same meeting number as joinURL.
// No match returns nil (untagged).
func MatchClient(joinURL string, clients []models.ClientURL) *string {
	id := MeetingNumber(joinURL)
	if id == "" {
		return nil
	}
	for _, c := range clients {
		if MeetingNumber(c.URL) == id {
			name := c.ClientName
			return &name
		}
	}
	return nil
}
