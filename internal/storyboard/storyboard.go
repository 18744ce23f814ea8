package storyboard

// SceneType classifies a scene for styling and timing.
type SceneType string

const (
	TypeStandard   SceneType = "standard"
	TypeExample    SceneType = "example"
	TypeDefinition SceneType = "definition"
	TypeSummary    SceneType = "summary"
)

const (
	// MinSceneDuration is the floor no adapted scene goes below.
	MinSceneDuration = 2.0
	// BaseSceneDuration is the floor for freshly segmented scenes.
	BaseSceneDuration = 3.0

	DefaultMaxSentences = 2
	UntitledTitle       = "untitled"
)

// Storyboard is the ordered scene list of one video plus its title
type Storyboard struct {
	Title  string  `json:"title" yaml:"title"`
	Scenes []Scene `json:"scenes" yaml:"scenes"`
}

// Scene is one timed visual segment
type Scene struct {
	ID           int       `json:"scene_id" yaml:"scene_id"`
	Text         string    `json:"text" yaml:"text"`
	DurationSecs float64   `json:"duration_secs" yaml:"duration_secs"`
	Type         SceneType `json:"type,omitempty" yaml:"type,omitempty"`
	BgColor      string    `json:"bg_color" yaml:"bg_color"`
	VisualHint   string    `json:"visual_hint" yaml:"visual_hint"`
}

// Clone returns a deep copy so callers can derive a new storyboard
// without touching the original scenes.
func (sb *Storyboard) Clone() *Storyboard {
	if sb == nil {
		return nil
	}
	out := &Storyboard{Title: sb.Title}
	if sb.Scenes != nil {
		out.Scenes = make([]Scene, len(sb.Scenes))
		copy(out.Scenes, sb.Scenes)
	}
	return out
}

// TotalDuration sums scene durations (no transition overlap).
func (sb *Storyboard) TotalDuration() float64 {
	total := 0.0
	for _, sc := range sb.Scenes {
		total += sc.DurationSecs
	}
	return total
}
