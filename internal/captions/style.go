package captions

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

type LetterCase string

const (
	CaseOriginal   LetterCase = "original"
	CaseUppercase  LetterCase = "uppercase"
	CaseLowercase  LetterCase = "lowercase"
	CaseCapitalize LetterCase = "capitalize"
)

// Animation selects how the active word is emphasised.
type Animation string

const (
	// AnimationBounce lifts and scales the active word.
	AnimationBounce Animation = "bounce"
	// AnimationPill draws a solid rounded highlight behind the active word.
	AnimationPill Animation = "pill"
)

// Style is a caption rendering preset. Sizes are in pixels on a 1080 px wide
// frame before the settings scale is applied.
type Style struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Font         string    `json:"font"`
	FontSize     float64   `json:"font_size"`
	Fill         string    `json:"fill"`
	ActiveFill   string    `json:"active_fill"`
	Outline      string    `json:"outline"`
	OutlineWidth float64   `json:"outline_width"`
	Shadow       string    `json:"shadow,omitempty"`
	ShadowBlur   float64   `json:"shadow_blur,omitempty"`
	Highlight    string    `json:"highlight,omitempty"`
	Animation    Animation `json:"animation"`
}

const DefaultStyleID = "classic"

var presets = []Style{
	{
		ID: "classic", Name: "Classic", Font: "bold", FontSize: 84,
		Fill: "#ffffff", ActiveFill: "#ffe14d", Outline: "#000000", OutlineWidth: 6,
		Shadow: "#000000", ShadowBlur: 8, Animation: AnimationBounce,
	},
	{
		ID: "pill", Name: "Highlight", Font: "bold", FontSize: 80,
		Fill: "#ffffff", ActiveFill: "#111111", Outline: "#000000", OutlineWidth: 4,
		Highlight: "#ffe14d", Animation: AnimationPill,
	},
	{
		ID: "neon", Name: "Neon", Font: "bold", FontSize: 82,
		Fill: "#e9fffb", ActiveFill: "#3cffd0", Outline: "#0b3d36", OutlineWidth: 5,
		Shadow: "#3cffd0", ShadowBlur: 18, Animation: AnimationBounce,
	},
	{
		ID: "bold", Name: "Bold Yellow", Font: "bold", FontSize: 92,
		Fill: "#ffd400", ActiveFill: "#ffffff", Outline: "#000000", OutlineWidth: 8,
		Animation: AnimationBounce,
	},
}

// Presets lists the selectable styles, default first.
func Presets() []Style {
	out := make([]Style, len(presets))
	copy(out, presets)
	return out
}

// LookupStyle returns the preset with id, falling back to the default.
func LookupStyle(id string) Style {
	for _, s := range presets {
		if s.ID == id {
			return s
		}
	}
	return presets[0]
}

// Scaled returns the style with font size and outline width multiplied by k.
func (s Style) Scaled(k float64) Style {
	s.FontSize *= k
	s.OutlineWidth *= k
	s.ShadowBlur *= k
	return s
}

const (
	MinSizePct     = 50
	MaxSizePct     = 200
	DefaultSizePct = 100
)

// Settings are the user-selected caption presentation options.
type Settings struct {
	StyleID    string     `json:"style_id"`
	LetterCase LetterCase `json:"letter_case"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	SizePct    float64    `json:"size_pct"`
}

func DefaultSettings() Settings {
	return Settings{
		StyleID:    DefaultStyleID,
		LetterCase: CaseOriginal,
		X:          50,
		Y:          72,
		SizePct:    DefaultSizePct,
	}
}

// Validate rejects unknown enumerations; numeric fields are clamped by Normalize.
func (s Settings) Validate() error {
	switch s.LetterCase {
	case "", CaseOriginal, CaseUppercase, CaseLowercase, CaseCapitalize:
	default:
		return fmt.Errorf("unknown letter case %q", s.LetterCase)
	}
	if s.StyleID != "" && LookupStyle(s.StyleID).ID != s.StyleID {
		return fmt.Errorf("unknown caption style %q", s.StyleID)
	}
	return nil
}

func (s *Settings) Normalize() {
	if s.StyleID == "" {
		s.StyleID = DefaultStyleID
	}
	if s.LetterCase == "" {
		s.LetterCase = CaseOriginal
	}
	s.X = math.Max(0, math.Min(100, s.X))
	s.Y = math.Max(0, math.Min(100, s.Y))
	if s.SizePct == 0 {
		s.SizePct = DefaultSizePct
	}
	s.SizePct = math.Max(MinSizePct, math.Min(MaxSizePct, s.SizePct))
}

// Scale is the multiplier applied to the style's sizes.
func (s Settings) Scale() float64 {
	if s.SizePct <= 0 {
		return 1
	}
	return s.SizePct / 100
}

// ApplyLetterCase transforms display text only; stored cue text is untouched.
func ApplyLetterCase(text string, mode LetterCase) string {
	switch mode {
	case CaseUppercase:
		return strings.ToUpper(text)
	case CaseLowercase:
		return strings.ToLower(text)
	case CaseCapitalize:
		return capitalize(text)
	default:
		return text
	}
}

func capitalize(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if r == utf8.RuneError {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

// BounceOffset is the upward lift, as a fraction of font size, of the active
// word at progress p. It peaks a quarter of the way through the cue.
func BounceOffset(p float64) float64 {
	p = math.Max(0, math.Min(1, p))
	if p >= 0.5 {
		return 0
	}
	return 0.12 * math.Sin(p*2*math.Pi)
}

// PopScale is the size multiplier for the active word at progress p. The word
// starts enlarged and settles back to 1 by the middle of the cue.
func PopScale(p float64) float64 {
	p = math.Max(0, math.Min(1, p))
	if p >= 0.5 {
		return 1
	}
	return 1 + 0.18*(1-p*2)
}

// PillAlpha fades the highlight pill from 40% to opaque over the first fifth
// of the cue.
func PillAlpha(p float64) float64 {
	p = math.Max(0, math.Min(1, p))
	return 0.4 + 0.6*math.Min(1, p/0.2)
}
