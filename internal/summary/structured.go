package summary

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ActionItem is one follow-up extracted from a meeting.
type ActionItem struct {
	Task     string `json:"task"`
	Assignee string `json:"assignee"`
	Deadline string `json:"deadline"`
}

// String renders the item as a single line, e.g. "Send the deck (Sato, 6/30)".
func (a ActionItem) String() string {
	var extra []string
	if a.Assignee != "" {
		extra = append(extra, a.Assignee)
	}
	if a.Deadline != "" {
		extra = append(extra, a.Deadline)
	}
	if len(extra) == 0 {
		return a.Task
	}
	return a.Task + " (" + strings.Join(extra, ", ") + ")"
}

// Structured is the JSON layout requested for StyleStructured.
type Structured struct {
	Overview    string       `json:"overview"`
	KeyPoints   []string     `json:"key_points"`
	Decisions   []string     `json:"decisions"`
	ActionItems []ActionItem `json:"action_items"`
}

// ParseStructured decodes a model reply. Code fences around the object are tolerated.
func ParseStructured(raw string) (*Structured, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "{"); i > 0 {
		raw = raw[i:]
	}
	if j := strings.LastIndex(raw, "}"); j >= 0 && j < len(raw)-1 {
		raw = raw[:j+1]
	}
	var s Structured
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode structured summary: %w", err)
	}
	return &s, nil
}

// Render formats the structured summary as plain text for destinations that take prose.
func (s *Structured) Render() string {
	var b strings.Builder
	if s.Overview != "" {
		b.WriteString(strings.TrimSpace(s.Overview))
		b.WriteString("\n")
	}
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(title)
		b.WriteString("\n")
		for _, it := range items {
			b.WriteString("- ")
			b.WriteString(strings.TrimSpace(it))
			b.WriteString("\n")
		}
	}
	section("Key points", s.KeyPoints)
	section("Decisions", s.Decisions)
	section("Action items", s.ActionItemLines())
	return strings.TrimSpace(b.String())
}

// ActionItemLines returns one rendered line per action item.
func (s *Structured) ActionItemLines() []string {
	out := make([]string, 0, len(s.ActionItems))
	for _, a := range s.ActionItems {
		if strings.TrimSpace(a.Task) == "" {
			continue
		}
		out = append(out, a.String())
	}
	return out
}
