package transcription

import (
	"strings"
	"unicode"

	"github.com/aura-webinar/meeting-pipeline/internal/models"
)

const (
	// MinOverlap is the shortest suffix/prefix match treated as duplicated text.
	MinOverlap = 20
	// maxOverlapSearch bounds the search window at chunk boundaries.
	maxOverlapSearch = 2000
)

// ChunkResult is the transcription of one chunk, with segment times relative to the chunk file.
type ChunkResult struct {
	Text     string
	Segments []models.Segment
	// Offset is the chunk's position on the original timeline, in seconds.
	Offset float64
}

// OverlapLen returns the length in runes of the longest suffix of prev that is also a prefix of
// cur, or 0 when it is shorter than min.
func OverlapLen(prev, cur string, min int) int {
	p := []rune(prev)
	c := []rune(cur)
	max := len(p)
	if len(c) < max {
		max = len(c)
	}
	if max > maxOverlapSearch {
		max = maxOverlapSearch
	}
	for k := max; k >= min && k > 0; k-- {
		if string(p[len(p)-k:]) == string(c[:k]) {
			return k
		}
	}
	return 0
}

// Stitch removes text duplicated across chunk boundaries. The first chunk is returned as is;
// each later chunk loses the longest prefix (≥ MinOverlap runes) that repeats the end of the
// chunk before it. Returned texts are aligned with results.
func Stitch(results []ChunkResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		if i == 0 {
			out[i] = r.Text
			continue
		}
		prev := strings.TrimSpace(out[i-1])
		cur := strings.TrimLeftFunc(r.Text, unicode.IsSpace)
		if k := OverlapLen(prev, cur, MinOverlap); k > 0 {
			cur = string([]rune(cur)[k:])
		}
		out[i] = cur
	}
	return out
}

// Join concatenates stitched chunk texts. A space is inserted only between Latin-script
// neighbours, so CJK text is not split by stray spaces.
func Join(texts []string) string {
	var b strings.Builder
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if b.Len() > 0 {
			prev := []rune(b.String())
			if needsSpace(prev[len(prev)-1], []rune(t)[0]) {
				b.WriteByte(' ')
			}
		}
		b.WriteString(t)
	}
	return b.String()
}

func needsSpace(a, b rune) bool {
	cjk := func(r rune) bool {
		return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) || (r >= 0x3000 && r <= 0x303f) || (r >= 0xff00 && r <= 0xffef)
	}
	return !cjk(a) && !cjk(b)
}

// RebaseSegments shifts each chunk's segments onto the original timeline. Segments that end
// before the previous chunk's last segment lie inside the overlap and are dropped.
func RebaseSegments(results []ChunkResult) []models.Segment {
	var out []models.Segment
	lastEnd := -1.0
	for _, r := range results {
		for _, s := range r.Segments {
			s.Start += r.Offset
			s.End += r.Offset
			if s.End <= lastEnd {
				continue
			}
			s.Text = strings.TrimSpace(s.Text)
			out = append(out, s)
		}
		if n := len(out); n > 0 {
			lastEnd = out[n-1].End
		}
	}
	return out
}
