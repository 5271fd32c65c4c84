package templates

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"contentforge/internal/domain"
)

type Mascot struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Emotions    []string `json:"emotions"`
}

// Preset is the visual treatment for one kind of content.
type Preset struct {
	AspectRatio   string   `json:"aspect_ratio"`
	StyleKeywords []string `json:"style_keywords"`
	ColorScheme   string   `json:"color_scheme"`
	Composition   string   `json:"composition"`
}

// Style is the brand configuration applied to every visual prompt.
type Style struct {
	Mascot  Mascot            `json:"mascot"`
	Colors  []string          `json:"colors"`
	Style   string            `json:"style"`
	Presets map[string]Preset `json:"presets"`
}

const (
	DefaultEmotion     = "happy"
	DefaultPreset      = "social_media"
	DefaultAspectRatio = "1:1"
)

var allowedAspectRatios = map[string]struct{}{
	"1:1":  {},
	"4:5":  {},
	"4:3":  {},
	"3:4":  {},
	"16:9": {},
	"9:16": {},
}

// ValidAspectRatio reports whether backends accept ratio.
func ValidAspectRatio(ratio string) bool {
	_, ok := allowedAspectRatios[ratio]
	return ok
}

func DefaultStyle() *Style {
	return &Style{
		Mascot: Mascot{
			Name:        "CryptoBuddy",
			Description: "Friendly cartoon character",
			Emotions:    []string{"happy", "excited", "thinking", "surprised"},
		},
		Colors: []string{"#3B82F6", "#8B5CF6", "#EC4899"},
		Style:  "modern digital art, vibrant colors, clean design",
		Presets: map[string]Preset{
			"social_media": {
				AspectRatio:   "1:1",
				StyleKeywords: []string{"clean", "modern", "engaging"},
				ColorScheme:   "vibrant",
				Composition:   "centered",
			},
			"infographic": {
				AspectRatio:   "4:5",
				StyleKeywords: []string{"informative", "clear", "professional"},
				ColorScheme:   "balanced",
				Composition:   "structured",
			},
			"announcement": {
				AspectRatio:   "16:9",
				StyleKeywords: []string{"bold", "eye-catching", "exciting"},
				ColorScheme:   "dramatic",
				Composition:   "dynamic",
			},
		},
	}
}

// LoadStyle reads a brand configuration file. An empty path yields the
// defaults; fields the file leaves out keep their default values.
func LoadStyle(path string) (*Style, error) {
	style := DefaultStyle()
	if strings.TrimSpace(path) == "" {
		return style, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return style, fmt.Errorf("read brand config: %w", err)
	}
	var loaded Style
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return style, fmt.Errorf("decode brand config: %w", err)
	}
	loaded.normalize(style)
	return &loaded, nil
}

func (s *Style) normalize(defaults *Style) {
	if s.Mascot.Name == "" {
		s.Mascot.Name = defaults.Mascot.Name
	}
	if s.Mascot.Description == "" {
		s.Mascot.Description = defaults.Mascot.Description
	}
	if len(s.Mascot.Emotions) == 0 {
		s.Mascot.Emotions = defaults.Mascot.Emotions
	}
	if len(s.Colors) == 0 {
		s.Colors = defaults.Colors
	}
	if s.Style == "" {
		s.Style = defaults.Style
	}
	if s.Presets == nil {
		s.Presets = map[string]Preset{}
	}
	for name, p := range defaults.Presets {
		if _, ok := s.Presets[name]; !ok {
			s.Presets[name] = p
		}
	}
	for name, p := range s.Presets {
		if !ValidAspectRatio(p.AspectRatio) {
			p.AspectRatio = DefaultAspectRatio
			s.Presets[name] = p
		}
	}
}

// MascotPrompt describes the mascot consistently across images.
func (s *Style) MascotPrompt(emotion, action string) (string, error) {
	if emotion == "" {
		emotion = DefaultEmotion
	}
	if !s.hasEmotion(emotion) {
		return "", fmt.Errorf("%w: mascot emotion %q is not one of %s", domain.ErrValidation, emotion, strings.Join(s.Mascot.Emotions, ", "))
	}
	desc := fmt.Sprintf("%s, %s, %s expression", s.Mascot.Name, s.Mascot.Description, emotion)
	if action = strings.TrimSpace(action); action != "" {
		desc += ", " + action
	}
	return desc, nil
}

func (s *Style) hasEmotion(emotion string) bool {
	for _, e := range s.Mascot.Emotions {
		if strings.EqualFold(e, emotion) {
			return true
		}
	}
	return false
}

// BrandLine is the style suffix carried by every visual prompt.
func (s *Style) BrandLine() string {
	if len(s.Colors) == 0 {
		return s.Style
	}
	return s.Style + ", brand colors " + strings.Join(s.Colors, " ")
}

// Apply decorates a free-form visual prompt with the brand style.
func (s *Style) Apply(base string, includeMascot bool) string {
	out := strings.TrimSpace(base)
	if includeMascot {
		if mascot, err := s.MascotPrompt(DefaultEmotion, ""); err == nil {
			out += ", with " + mascot
		}
	}
	return out + ", " + s.BrandLine()
}

// Preset returns the named preset, falling back to social_media.
func (s *Style) Preset(contentType string) Preset {
	if p, ok := s.Presets[contentType]; ok {
		return p
	}
	return s.Presets[DefaultPreset]
}
