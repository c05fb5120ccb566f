package narrative

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// StoryBible is the static baseline written before production starts. New
// characters are checked against it until the universe has its own state for them.
type StoryBible struct {
	PrimaryTheme string                    `yaml:"primary_theme" json:"primary_theme,omitempty"`
	Subthemes    []string                  `yaml:"subthemes" json:"subthemes,omitempty"`
	Characters   map[string]BibleCharacter `yaml:"characters" json:"characters,omitempty"`
	Locations    map[string]string         `yaml:"locations" json:"locations,omitempty"`
}

// BibleCharacter is the baseline profile of one character.
type BibleCharacter struct {
	Voice           string   `yaml:"voice" json:"voice,omitempty"`
	Background      string   `yaml:"background" json:"background,omitempty"`
	Goals           []string `yaml:"goals" json:"goals,omitempty"`
	BaselineEmotion string   `yaml:"baseline_emotion" json:"baseline_emotion,omitempty"`
}

// LoadStoryBible reads a YAML story bible. An empty path yields an empty bible.
func LoadStoryBible(path string) (*StoryBible, error) {
	if path == "" {
		return &StoryBible{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading story bible: %w", err)
	}
	var bible StoryBible
	if err := yaml.Unmarshal(data, &bible); err != nil {
		return nil, fmt.Errorf("parsing story bible: %w", err)
	}
	return &bible, nil
}

// Character looks up a bible entry case-insensitively.
func (b *StoryBible) Character(name string) (BibleCharacter, bool) {
	if b == nil {
		return BibleCharacter{}, false
	}
	if c, ok := b.Characters[name]; ok {
		return c, true
	}
	for k, c := range b.Characters {
		if strings.EqualFold(k, name) {
			return c, true
		}
	}
	return BibleCharacter{}, false
}

// HasCharacters reports whether the bible declares a cast at all.
func (b *StoryBible) HasCharacters() bool {
	return b != nil && len(b.Characters) > 0
}

// Seed copies the bible's thematic framework into a universe that has none yet.
func (b *StoryBible) Seed(u *NarrativeUniverse) {
	if b == nil || !u.ThematicFramework.Empty() {
		return
	}
	u.ThematicFramework.PrimaryTheme = b.PrimaryTheme
	u.ThematicFramework.Subthemes = append([]string(nil), b.Subthemes...)
}
