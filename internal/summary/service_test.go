package summary

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	prompt   string
	jsonMode bool
}

type fakeCompleter struct {
	calls   []call
	replies []string
	err     error
}

func (f *fakeCompleter) Complete(_ context.Context, _, prompt string, jsonMode bool) (string, error) {
	f.calls = append(f.calls, call{prompt: prompt, jsonMode: jsonMode})
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "summary", nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func TestSummarizeShortTranscriptSingleCall(t *testing.T) {
	c := &fakeCompleter{replies: []string{"  概要です。  "}}
	res, err := NewService(nil).Summarize(context.Background(), c, "今日は採用について話しました。", StyleDefault, "ja")
	require.NoError(t, err)

	assert.Equal(t, "概要です。", res.Text)
	assert.Equal(t, 1, res.Parts)
	assert.Nil(t, res.JSON)
	require.Len(t, c.calls, 1)
	assert.Contains(t, c.calls[0].prompt, "今日は採用について話しました。")
	assert.False(t, c.calls[0].jsonMode)
}

func TestSummarizeLongTranscriptUsesParts(t *testing.T) {
	transcript := strings.Repeat("This sentence is padding for the meeting. ", 1000) // ~42k chars
	c := &fakeCompleter{}
	res, err := NewService(nil).Summarize(context.Background(), c, transcript, StyleBullet, "en")
	require.NoError(t, err)

	parts := len(SplitText(strings.TrimSpace(transcript), PartSize))
	assert.Equal(t, parts, res.Parts)
	require.Len(t, c.calls, parts+1)

	final := c.calls[len(c.calls)-1].prompt
	for i := 1; i <= parts; i++ {
		assert.Contains(t, final, "[Part "+string(rune('0'+i))+"]")
	}
	assert.NotContains(t, final, "padding for the meeting", "final pass sees only partial summaries")
}

func TestSummarizeStructured(t *testing.T) {
	reply := "```json\n" + `{"overview":"Quarterly planning.","key_points":["Budget approved"],` +
		`"decisions":["Hire two engineers"],"action_items":[{"task":"Post job ads","assignee":"Sato","deadline":"6/30"},{"task":""}]}` + "\n```"
	c := &fakeCompleter{replies: []string{reply}}
	res, err := NewService(nil).Summarize(context.Background(), c, "transcript", StyleStructured, "en")
	require.NoError(t, err)

	assert.True(t, c.calls[0].jsonMode)
	assert.Equal(t, []string{"Post job ads (Sato, 6/30)"}, res.ActionItems)
	assert.Contains(t, res.Text, "Quarterly planning.")
	assert.Contains(t, res.Text, "- Hire two engineers")
	assert.JSONEq(t, `{"overview":"Quarterly planning.","key_points":["Budget approved"],"decisions":["Hire two engineers"],
		"action_items":[{"task":"Post job ads","assignee":"Sato","deadline":"6/30"},{"task":"","assignee":"","deadline":""}]}`, string(res.JSON))
}

func TestSummarizeStructuredFallsBackToText(t *testing.T) {
	c := &fakeCompleter{replies: []string{"not json at all"}}
	res, err := NewService(nil).Summarize(context.Background(), c, "transcript", StyleStructured, "en")
	require.NoError(t, err)
	assert.Equal(t, "not json at all", res.Text)
	assert.Nil(t, res.JSON)
}

func TestSummarizeErrors(t *testing.T) {
	_, err := NewService(nil).Summarize(context.Background(), &fakeCompleter{}, "   ", StyleDefault, "ja")
	assert.ErrorIs(t, err, ErrEmptyTranscript)

	boom := errors.New("quota exceeded")
	_, err = NewService(nil).Summarize(context.Background(), &fakeCompleter{err: boom}, "text", StyleDefault, "ja")
	assert.ErrorIs(t, err, boom)
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"short"}, SplitText("short", 100))

	text := strings.Repeat("あ", 90) + "。" + strings.Repeat("い", 50)
	parts := SplitText(text, 100)
	require.Len(t, parts, 2)
	assert.Equal(t, strings.Repeat("あ", 90)+"。", parts[0])
	assert.Equal(t, text, strings.Join(parts, ""))

	noBreak := strings.Repeat("x", 250)
	parts = SplitText(noBreak, 100)
	assert.Len(t, parts, 3)
	for _, p := range parts {
		assert.LessOrEqual(t, len([]rune(p)), 100)
	}
}

func TestParseStyle(t *testing.T) {
	assert.Equal(t, StyleBrief, ParseStyle("brief"))
	assert.Equal(t, StyleDefault, ParseStyle("fancy"))
	assert.Equal(t, StyleDefault, ParseStyle(""))
}
