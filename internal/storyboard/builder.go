package storyboard

import "strings"

// Build segments the script with the default scene size.
func Build(text string) *Storyboard {
	return BuildWith(text, DefaultMaxSentences)
}

// BuildWith titles the storyboard after the first non-empty line and
// segments the whole script, title line included.
func BuildWith(text string, maxSentences int) *Storyboard {
	return &Storyboard{
		Title:  titleOf(text),
		Scenes: Segment(text, maxSentences),
	}
}

func titleOf(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return UntitledTitle
}
