package storyboard

import "strings"

const (
	ColorStandard   = "#FFFFFF"
	ColorExample    = "#FFF4CC"
	ColorDefinition = "#E8F0FE"
	ColorSummary    = "#E6F4EA"

	ExampleHint = "Insert an illustrative diagram for this example"

	definitionBonus = 2.0
)

// rule is one row of the classifier. Rules are checked top to bottom and
// the first whose keyword appears in the lowercased text wins.
type rule struct {
	keywords []string
	kind     SceneType
	apply    func(sc *Scene)
}

var rules = []rule{
	{
		keywords: []string{"example", "e.g."},
		kind:     TypeExample,
		apply: func(sc *Scene) {
			sc.BgColor = ColorExample
			sc.VisualHint = ExampleHint
		},
	},
	{
		keywords: []string{"define", "what is"},
		kind:     TypeDefinition,
		apply: func(sc *Scene) {
			sc.BgColor = ColorDefinition
			sc.DurationSecs += definitionBonus
		},
	},
	{
		keywords: []string{"summary", "conclusion"},
		kind:     TypeSummary,
		apply: func(sc *Scene) {
			sc.BgColor = ColorSummary
		},
	},
}

func classify(sc *Scene) {
	lower := strings.ToLower(sc.Text)
	for _, r := range rules {
		if containsAny(lower, r.keywords) {
			sc.Type = r.kind
			r.apply(sc)
			return
		}
	}
	sc.Type = TypeStandard
	sc.BgColor = ColorStandard
	sc.VisualHint = ""
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// ColorFor returns the background color a scene of the given type gets.
func ColorFor(t SceneType) string {
	switch t {
	case TypeExample:
		return ColorExample
	case TypeDefinition:
		return ColorDefinition
	case TypeSummary:
		return ColorSummary
	default:
		return ColorStandard
	}
}
