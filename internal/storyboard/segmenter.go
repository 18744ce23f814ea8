package storyboard

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segment splits script text into scenes of at most maxSentences sentences.
// Empty text yields no scenes. maxSentences < 1 falls back to the default.
func Segment(text string, maxSentences int) []Scene {
	if maxSentences < 1 {
		maxSentences = DefaultMaxSentences
	}

	sentences := SplitSentences(normalize(text))
	if len(sentences) == 0 {
		return []Scene{}
	}

	scenes := make([]Scene, 0, (len(sentences)+maxSentences-1)/maxSentences)
	for start := 0; start < len(sentences); start += maxSentences {
		end := start + maxSentences
		if end > len(sentences) {
			end = len(sentences)
		}
		chunk := strings.Join(sentences[start:end], " ")

		sc := Scene{
			ID:           len(scenes) + 1,
			Text:         chunk,
			DurationSecs: baseDuration(chunk),
		}
		classify(&sc)
		scenes = append(scenes, sc)
	}
	return scenes
}

// normalize collapses the script into one line, dropping blank lines.
func normalize(text string) string {
	var parts []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

// SplitSentences cuts at '.', '!' or '?' followed by whitespace. A cut is
// skipped when the next word starts lowercase, so "e.g. this" stays whole.
// A trailing fragment without terminal punctuation is its own sentence.
func SplitSentences(blob string) []string {
	var out []string
	start := 0
	for i := 0; i < len(blob); {
		r, size := utf8.DecodeRuneInString(blob[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}

		j := i
		for j < len(blob) {
			ws, wsize := utf8.DecodeRuneInString(blob[j:])
			if !unicode.IsSpace(ws) {
				break
			}
			j += wsize
		}
		if j == i || j == len(blob) {
			continue
		}
		if next, _ := utf8.DecodeRuneInString(blob[j:]); unicode.IsLower(next) {
			continue
		}

		if s := strings.TrimSpace(blob[start:i]); s != "" {
			out = append(out, s)
		}
		start = j
		i = j
	}
	if s := strings.TrimSpace(blob[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// baseDuration is roughly one second per three words, never under 3s.
func baseDuration(chunk string) float64 {
	secs := float64(len(strings.Fields(chunk)) / 3)
	if secs < BaseSceneDuration {
		return BaseSceneDuration
	}
	return secs
}
