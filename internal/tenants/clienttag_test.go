package tenants

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/meeting-pipeline/internal/models"
)

func TestMeetingNumber(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://us02web.zoom.us/j/85012345678?pwd=abc", "85012345678"},
		{"https://zoom.us/j/123456789", "123456789"},
		{"https://example.zoom.us/wc/join/98765432101", "98765432101"},
		{"https://zoom.us/my/personal.room", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MeetingNumber(tt.url), tt.url)
	}
}

func TestMatchClient(t *testing.T) {
	clients := []models.ClientURL{
		{ClientName: "Acme", URL: "https://zoom.us/j/11122233344"},
		{ClientName: "Globex", URL: "https://us06web.zoom.us/j/85012345678?pwd=zzz"},
	}

	tag := MatchClient("https://us02web.zoom.us/j/85012345678?pwd=other", clients)
	require.NotNil(t, tag)
	assert.Equal(t, "Globex", *tag)

	assert.Nil(t, MatchClient("https://zoom.us/j/99999999999", clients))
	assert.Nil(t, MatchClient("not a url", clients))
}
