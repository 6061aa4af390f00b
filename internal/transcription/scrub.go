package transcription

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	ackRunMin    = 5
	ackKeep      = 3
	repeatRunMin = 3
	repeatKeep   = 2
	terminalMin  = 10
	terminalKeep = 2
	// shortSentenceRunes is the longest sentence the terminal-loop rule considers.
	shortSentenceRunes = 30
	maxScrubPasses     = 4
)

const (
	ackTokens = `(?:\b(?:ok|okay|yes|yeah|yep|right|uh-huh|mm-hmm|hmm)\b|はい|うん|ええ|なるほど|そうですね)`
	ackSep    = `[\s、。，,．.!?！？…ー〜~]*`
)

var (
	ackRunRe   = regexp.MustCompile(`(?i)(?:` + ackTokens + ackSep + `){` + strconv.Itoa(ackRunMin) + `,}`)
	ackTokenRe = regexp.MustCompile(`(?i)` + ackTokens + ackSep)
	spacesRe   = regexp.MustCompile(`[ \t\x{3000}]{2,}`)
)

// Scrubber removes known hallucination patterns from transcripts. The patterns are heuristic;
// a clean transcript passes through unchanged and Scrub(Scrub(x)) == Scrub(x).
type Scrubber struct {
	// Prompts are instruction texts the service tends to echo back verbatim.
	Prompts []string
}

// Scrub applies every rule until the text stops changing.
func (s Scrubber) Scrub(text string) string {
	for i := 0; i < maxScrubPasses; i++ {
		next := s.pass(text)
		if next == text {
			break
		}
		text = next
	}
	return text
}

func (s Scrubber) pass(text string) string {
	text = s.removePromptEcho(text)
	text = collapseAckRuns(text)
	pieces := splitSentences(text)
	pieces = collapseTerminalRun(pieces)
	pieces = collapseRepeats(pieces)
	return normalizeSpace(strings.Join(pieces, ""))
}

func (s Scrubber) removePromptEcho(text string) string {
	for _, p := range s.Prompts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		text = strings.ReplaceAll(text, p, "")
	}
	return text
}

// collapseAckRuns keeps the first ackKeep tokens of every run of ackRunMin or more.
func collapseAckRuns(text string) string {
	return ackRunRe.ReplaceAllStringFunc(text, func(run string) string {
		toks := ackTokenRe.FindAllString(run, ackKeep)
		return strings.Join(toks, "")
	})
}

// splitSentences cuts text after each run of sentence terminators, keeping trailing whitespace
// with the sentence so joining the pieces restores the text.
func splitSentences(text string) []string {
	var pieces []string
	r := []rune(text)
	start := 0
	for i := 0; i < len(r); i++ {
		if !isSentenceEnd(r[i]) {
			continue
		}
		j := i + 1
		for j < len(r) && isSentenceEnd(r[j]) {
			j++
		}
		for j < len(r) && (r[j] == ' ' || r[j] == '\t' || r[j] == '　') {
			j++
		}
		pieces = append(pieces, string(r[start:j]))
		start = j
		i = j - 1
	}
	if start < len(r) {
		pieces = append(pieces, string(r[start:]))
	}
	return pieces
}

func sentenceKey(p string) string { return strings.TrimSpace(p) }

// collapseRepeats keeps repeatKeep copies of any sentence repeated repeatRunMin or more times in a row.
func collapseRepeats(pieces []string) []string {
	out := make([]string, 0, len(pieces))
	for i := 0; i < len(pieces); {
		key := sentenceKey(pieces[i])
		j := i + 1
		for j < len(pieces) && key != "" && sentenceKey(pieces[j]) == key {
			j++
		}
		if key != "" && j-i >= repeatRunMin {
			out = append(out, pieces[i:i+repeatKeep]...)
		} else {
			out = append(out, pieces[i:j]...)
		}
		i = j
	}
	return out
}

// collapseTerminalRun trims a loop of one short sentence at the very end of the transcript.
func collapseTerminalRun(pieces []string) []string {
	end := len(pieces)
	for end > 0 && sentenceKey(pieces[end-1]) == "" {
		end--
	}
	if end == 0 {
		return pieces
	}
	key := sentenceKey(pieces[end-1])
	if len([]rune(key)) > shortSentenceRunes {
		return pieces
	}
	start := end - 1
	for start > 0 && sentenceKey(pieces[start-1]) == key {
		start--
	}
	if end-start < terminalMin {
		return pieces
	}
	out := append([]string{}, pieces[:start+terminalKeep]...)
	return append(out, pieces[end:]...)
}

func normalizeSpace(text string) string {
	return strings.TrimSpace(spacesRe.ReplaceAllString(text, " "))
}
