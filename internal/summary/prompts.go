package summary

import "fmt"

// Style selects the summary layout.
type Style string

const (
	StyleDefault    Style = "default"
	StyleBrief      Style = "brief"
	StyleBullet     Style = "bullet"
	StyleStructured Style = "structured"
)

// ParseStyle maps a configured value to a Style; unknown values fall back to StyleDefault.
func ParseStyle(s string) Style {
	switch Style(s) {
	case StyleBrief, StyleBullet, StyleStructured:
		return Style(s)
	}
	return StyleDefault
}

type promptSet struct {
	system    string
	styles    map[Style]string
	partial   string
	partLabel string
}

var prompts = map[string]promptSet{
	"ja": {
		system: "あなたは優秀な日本語の議事録作成アシスタントです。",
		styles: map[Style]string{
			StyleDefault: "以下は会議の文字起こしです。日本語で要約してください。\n" +
				"1. 会議の概要（2〜3文）\n2. 主要な議題（箇条書き）\n3. 重要なポイント（箇条書き）\n\n文字起こし：\n%s",
			StyleBrief:  "以下は会議の文字起こしです。3文以内で日本語で要約してください。\n\n文字起こし：\n%s",
			StyleBullet: "以下は会議の文字起こしです。要点を日本語の箇条書きで列挙してください。\n\n文字起こし：\n%s",
			StyleStructured: "以下は会議の文字起こしです。次のキーを持つJSONオブジェクトだけを返してください：" +
				`"overview"（文字列）、"key_points"（文字列の配列）、"decisions"（文字列の配列）、` +
				`"action_items"（"task"、"assignee"、"deadline" を持つオブジェクトの配列。不明な値は空文字）。` +
				"値は日本語で書いてください。\n\n文字起こし：\n%s",
		},
		partial:   "以下は長い会議の文字起こしの一部です。内容を簡潔な箇条書きで要約してください。\n\n%s",
		partLabel: "[Part %d]",
	},
	"en": {
		system: "You are an assistant that writes accurate, concise meeting minutes.",
		styles: map[Style]string{
			StyleDefault: "Below is a meeting transcript. Summarize it with:\n" +
				"1. An overview (2-3 sentences)\n2. Main topics (bullets)\n3. Key points (bullets)\n\nTranscript:\n%s",
			StyleBrief:  "Below is a meeting transcript. Summarize it in at most three sentences.\n\nTranscript:\n%s",
			StyleBullet: "Below is a meeting transcript. List its key points as bullets.\n\nTranscript:\n%s",
			StyleStructured: "Below is a meeting transcript. Reply with only a JSON object with the keys " +
				`"overview" (string), "key_points" (array of strings), "decisions" (array of strings) and ` +
				`"action_items" (array of objects with "task", "assignee" and "deadline"; use "" when unknown).` +
				"\n\nTranscript:\n%s",
		},
		partial:   "Below is one part of a long meeting transcript. Summarize it as terse bullets.\n\n%s",
		partLabel: "[Part %d]",
	},
}

func promptsFor(language string) promptSet {
	if p, ok := prompts[language]; ok {
		return p
	}
	return prompts["en"]
}

func (p promptSet) style(s Style, transcript string) string {
	tmpl, ok := p.styles[s]
	if !ok {
		tmpl = p.styles[StyleDefault]
	}
	return fmt.Sprintf(tmpl, transcript)
}
