package transcription

import "strings"

// ContextRunes is the size of the trailing context carried into the next chunk's prompt.
const ContextRunes = 200

var sentenceEnds = map[rune]bool{
	'。': true, '．': true, '！': true, '？': true,
	'.': true, '!': true, '?': true, '\n': true,
}

func isSentenceEnd(r rune) bool { return sentenceEnds[r] }

// TailContext returns roughly the last max runes of text, starting at a sentence boundary when
// one exists inside that window so the context does not open mid-sentence.
func TailContext(text string, max int) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= max {
		return string(r)
	}
	tail := r[len(r)-max:]
	for i, c := range tail {
		if !isSentenceEnd(c) {
			continue
		}
		if rest := strings.TrimSpace(string(tail[i+1:])); rest != "" {
			return rest
		}
		break
	}
	return strings.TrimSpace(string(tail))
}

// BuildPrompt joins the instruction prompt and the carried context.
func BuildPrompt(base, context string) string {
	switch {
	case context == "":
		return base
	case base == "":
		return context
	}
	return base + " " + context
}

// DefaultPrompt is the instruction prompt for a transcription language.
func DefaultPrompt(language string) string {
	switch language {
	case "ja":
		return "これはビジネス会議の録音です。"
	default:
		return "This is a recording of a business meeting."
	}
}
