package content

import (
	"maps"
	"slices"
)

func cloneCharacters(in []CharacterMention) []CharacterMention {
	if in == nil {
		return nil
	}
	out := make([]CharacterMention, len(in))
	for i, m := range in {
		m.Goals = slices.Clone(m.Goals)
		m.Dialogue = slices.Clone(m.Dialogue)
		m.Knowledge = slices.Clone(m.Knowledge)
		m.Relationships = maps.Clone(m.Relationships)
		if m.Arc != nil {
			arc := *m.Arc
			m.Arc = &arc
		}
		out[i] = m
	}
	return out
}

func (s *Script) Clone() Payload {
	out := *s
	out.Scenes = make([]Scene, len(s.Scenes))
	for i, sc := range s.Scenes {
		sc.Characters = cloneCharacters(sc.Characters)
		sc.Objects = slices.Clone(sc.Objects)
		sc.Rules = slices.Clone(sc.Rules)
		sc.Beats = slices.Clone(sc.Beats)
		sc.Themes = slices.Clone(sc.Themes)
		out.Scenes[i] = sc
	}
	return &out
}

func (c *Casting) Clone() Payload {
	out := *c
	out.Roles = make([]CastingRole, len(c.Roles))
	for i, r := range c.Roles {
		r.Goals = slices.Clone(r.Goals)
		r.SampleLines = slices.Clone(r.SampleLines)
		r.Relationships = maps.Clone(r.Relationships)
		out.Roles[i] = r
	}
	return &out
}

func (s *Storyboard) Clone() Payload {
	out := *s
	out.Panels = make([]Panel, len(s.Panels))
	for i, p := range s.Panels {
		p.Characters = cloneCharacters(p.Characters)
		p.Objects = slices.Clone(p.Objects)
		out.Panels[i] = p
	}
	return &out
}

func (s *Schedule) Clone() Payload {
	out := *s
	out.Days = make([]ShootDay, len(s.Days))
	for i, d := range s.Days {
		d.Locations = slices.Clone(d.Locations)
		d.Cast = slices.Clone(d.Cast)
		out.Days[i] = d
	}
	return &out
}

func (w *Worldbuilding) Clone() Payload {
	out := *w
	out.Locations = slices.Clone(w.Locations)
	out.Objects = slices.Clone(w.Objects)
	out.Rules = slices.Clone(w.Rules)
	return &out
}

func (o *Outline) Clone() Payload {
	out := *o
	out.Subthemes = slices.Clone(o.Subthemes)
	out.Beats = slices.Clone(o.Beats)
	out.Themes = slices.Clone(o.Themes)
	return &out
}
