package content

import (
	"maps"
	"slices"
	"strings"
)

// Extraction is the set of narrative references found in one payload. Entities
// mentioned more than once are merged in order of appearance, later statements
// overriding earlier ones.
type Extraction struct {
	Episode      int
	Characters   []CharacterMention
	Locations    []LocationMention
	Objects      []ObjectMention
	Rules        []RuleMention
	Beats        []PlotBeat
	Themes       []ThemeMention
	PrimaryTheme string
	Subthemes    []string
}

// Empty reports whether nothing usable was extracted.
func (e Extraction) Empty() bool {
	return len(e.Characters) == 0 && len(e.Locations) == 0 && len(e.Objects) == 0 &&
		len(e.Rules) == 0 && len(e.Beats) == 0 && len(e.Themes) == 0 && e.PrimaryTheme == ""
}

type extractor struct {
	out     Extraction
	chars   map[string]int
	locs    map[string]int
	objects map[string]int
	rules   map[string]int
}

func newExtractor(episode int) *extractor {
	return &extractor{
		out:     Extraction{Episode: episode},
		chars:   make(map[string]int),
		locs:    make(map[string]int),
		objects: make(map[string]int),
		rules:   make(map[string]int),
	}
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (x *extractor) character(m CharacterMention) {
	if key(m.Name) == "" {
		return
	}
	i, ok := x.chars[key(m.Name)]
	if !ok {
		m.Goals = slices.Clone(m.Goals)
		m.Dialogue = slices.Clone(m.Dialogue)
		m.Knowledge = slices.Clone(m.Knowledge)
		m.Relationships = maps.Clone(m.Relationships)
		x.chars[key(m.Name)] = len(x.out.Characters)
		x.out.Characters = append(x.out.Characters, m)
		return
	}
	cur := &x.out.Characters[i]
	overrideString(&cur.EmotionalState, m.EmotionalState)
	overrideString(&cur.PhysicalState, m.PhysicalState)
	overrideString(&cur.Location, m.Location)
	overrideString(&cur.Voice, m.Voice)
	overrideString(&cur.Background, m.Background)
	cur.Goals = appendUnique(cur.Goals, m.Goals...)
	cur.Dialogue = append(cur.Dialogue, m.Dialogue...)
	cur.Knowledge = appendUnique(cur.Knowledge, m.Knowledge...)
	if len(m.Relationships) > 0 {
		if cur.Relationships == nil {
			cur.Relationships = make(map[string]string, len(m.Relationships))
		}
		maps.Copy(cur.Relationships, m.Relationships)
	}
	if m.Arc != nil {
		arc := *m.Arc
		cur.Arc = &arc
	}
}

func (x *extractor) location(m LocationMention) {
	if key(m.Name) == "" {
		return
	}
	i, ok := x.locs[key(m.Name)]
	if !ok {
		x.locs[key(m.Name)] = len(x.out.Locations)
		x.out.Locations = append(x.out.Locations, m)
		return
	}
	cur := &x.out.Locations[i]
	overrideString(&cur.Description, m.Description)
	overrideString(&cur.Status, m.Status)
	cur.Changed = cur.Changed || m.Changed
}

func (x *extractor) object(m ObjectMention) {
	if key(m.Name) == "" {
		return
	}
	i, ok := x.objects[key(m.Name)]
	if !ok {
		x.objects[key(m.Name)] = len(x.out.Objects)
		x.out.Objects = append(x.out.Objects, m)
		return
	}
	cur := &x.out.Objects[i]
	overrideString(&cur.Description, m.Description)
	overrideString(&cur.Status, m.Status)
	overrideString(&cur.Owner, m.Owner)
	overrideString(&cur.Location, m.Location)
	cur.Changed = cur.Changed || m.Changed
}

func (x *extractor) rule(m RuleMention) {
	if key(m.Name) == "" {
		return
	}
	i, ok := x.rules[key(m.Name)]
	if !ok {
		x.rules[key(m.Name)] = len(x.out.Rules)
		x.out.Rules = append(x.out.Rules, m)
		return
	}
	cur := &x.out.Rules[i]
	overrideString(&cur.Statement, m.Statement)
	cur.Changed = cur.Changed || m.Changed
}

func (x *extractor) beats(bs []PlotBeat) {
	for _, b := range bs {
		if strings.TrimSpace(b.ThreadID) == "" {
			continue
		}
		x.out.Beats = append(x.out.Beats, b)
	}
}

func (x *extractor) themes(ts []ThemeMention) {
	for _, t := range ts {
		if strings.TrimSpace(t.Theme) == "" {
			continue
		}
		x.out.Themes = append(x.out.Themes, t)
	}
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func appendUnique(dst []string, vs ...string) []string {
	for _, v := range vs {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}

func (s *Script) Extract() Extraction {
	x := newExtractor(s.Episode)
	for _, sc := range s.Scenes {
		x.location(sc.Location)
		for _, c := range sc.Characters {
			if c.Location == "" {
				c.Location = sc.Location.Name
			}
			x.character(c)
		}
		for _, o := range sc.Objects {
			x.object(o)
		}
		for _, r := range sc.Rules {
			x.rule(r)
		}
		x.beats(sc.Beats)
		x.themes(sc.Themes)
	}
	return x.out
}

func (c *Casting) Extract() Extraction {
	x := newExtractor(c.Episode)
	for _, r := range c.Roles {
		x.character(CharacterMention{
			Name:           r.Character,
			EmotionalState: r.EmotionalState,
			Voice:          r.Voice,
			Background:     r.Background,
			Goals:          r.Goals,
			Dialogue:       r.SampleLines,
			Relationships:  r.Relationships,
		})
	}
	return x.out
}

func (s *Storyboard) Extract() Extraction {
	x := newExtractor(s.Episode)
	for _, p := range s.Panels {
		x.location(p.Location)
		for _, c := range p.Characters {
			if c.Location == "" {
				c.Location = p.Location.Name
			}
			x.character(c)
		}
		for _, o := range p.Objects {
			x.object(o)
		}
	}
	return x.out
}

func (s *Schedule) Extract() Extraction {
	episode := 0
	for _, d := range s.Days {
		episode = max(episode, d.Episode)
	}
	x := newExtractor(episode)
	for _, d := range s.Days {
		for _, l := range d.Locations {
			x.location(LocationMention{Name: l})
		}
		for _, c := range d.Cast {
			x.character(CharacterMention{Name: c})
		}
	}
	return x.out
}

func (w *Worldbuilding) Extract() Extraction {
	x := newExtractor(w.Episode)
	for _, l := range w.Locations {
		x.location(l)
	}
	for _, o := range w.Objects {
		x.object(o)
	}
	for _, r := range w.Rules {
		x.rule(r)
	}
	return x.out
}

func (o *Outline) Extract() Extraction {
	x := newExtractor(o.Episode)
	x.beats(o.Beats)
	x.themes(o.Themes)
	x.out.PrimaryTheme = strings.TrimSpace(o.PrimaryTheme)
	x.out.Subthemes = slices.Clone(o.Subthemes)
	return x.out
}
