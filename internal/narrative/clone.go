package narrative

import "slices"

// Clone returns a deep copy of the universe. Validators only ever see clones,
// so a snapshot can be read without holding the store's lock.
func (u *NarrativeUniverse) Clone() *NarrativeUniverse {
	if u == nil {
		return nil
	}
	out := *u

	out.Characters = make(map[string]*CharacterState, len(u.Characters))
	for name, c := range u.Characters {
		out.Characters[name] = c.clone()
	}

	out.WorldState = u.WorldState.clone()
	out.PlotContinuity = u.PlotContinuity.clone()
	out.ThematicFramework = u.ThematicFramework.clone()
	out.EpisodeHistory = cloneHistory(u.EpisodeHistory)
	return &out
}

func (c *CharacterState) clone() *CharacterState {
	out := *c
	out.Profile.Goals = slices.Clone(c.Profile.Goals)
	out.CurrentState.Knowledge = slices.Clone(c.CurrentState.Knowledge)
	out.ArcProgression = slices.Clone(c.ArcProgression)
	out.Relationships = make(map[string]*Relationship, len(c.Relationships))
	for other, r := range c.Relationships {
		rel := *r
		out.Relationships[other] = &rel
	}
	return &out
}

func (w WorldState) clone() WorldState {
	out := w
	out.Locations = make(map[string]*LocationState, len(w.Locations))
	for k, v := range w.Locations {
		loc := *v
		out.Locations[k] = &loc
	}
	out.Objects = make(map[string]*ObjectState, len(w.Objects))
	for k, v := range w.Objects {
		obj := *v
		out.Objects[k] = &obj
	}
	out.Rules = make(map[string]*WorldRule, len(w.Rules))
	for k, v := range w.Rules {
		rule := *v
		out.Rules[k] = &rule
	}
	out.Timeline = slices.Clone(w.Timeline)
	return out
}

func (p PlotContinuity) clone() PlotContinuity {
	out := p
	if p.MainPlot != nil {
		out.MainPlot = p.MainPlot.clone()
	}
	out.Subplots = cloneThreads(p.Subplots)
	out.ResolvedThreads = cloneThreads(p.ResolvedThreads)
	out.ActiveConflicts = cloneThreads(p.ActiveConflicts)
	out.PendingForeshadowing = cloneThreads(p.PendingForeshadowing)
	out.PendingCallbacks = cloneThreads(p.PendingCallbacks)
	return out
}

func (t *PlotThread) clone() *PlotThread {
	out := *t
	out.Callbacks = slices.Clone(t.Callbacks)
	return &out
}

func cloneThreads(in map[string]*PlotThread) map[string]*PlotThread {
	out := make(map[string]*PlotThread, len(in))
	for k, v := range in {
		out[k] = v.clone()
	}
	return out
}

func (t ThematicFramework) clone() ThematicFramework {
	out := t
	out.Subthemes = slices.Clone(t.Subthemes)
	out.Elements = cloneWeights(t.Elements)
	out.Symbols = cloneWeights(t.Symbols)
	out.Motifs = cloneWeights(t.Motifs)
	return out
}

func cloneWeights(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneHistory(in []EpisodeSnapshot) []EpisodeSnapshot {
	out := make([]EpisodeSnapshot, len(in))
	for i, s := range in {
		s.Characters = slices.Clone(s.Characters)
		s.Locations = slices.Clone(s.Locations)
		s.Threads = slices.Clone(s.Threads)
		out[i] = s
	}
	return out
}

// Normalize fills nil collections, which appear after decoding universes persisted
// before a collection existed.
func (u *NarrativeUniverse) Normalize() {
	if u.Characters == nil {
		u.Characters = make(map[string]*CharacterState)
	}
	for _, c := range u.Characters {
		if c.Relationships == nil {
			c.Relationships = make(map[string]*Relationship)
		}
	}
	w := &u.WorldState
	if w.Locations == nil {
		w.Locations = make(map[string]*LocationState)
	}
	if w.Objects == nil {
		w.Objects = make(map[string]*ObjectState)
	}
	if w.Rules == nil {
		w.Rules = make(map[string]*WorldRule)
	}
	p := &u.PlotContinuity
	for _, m := range []*map[string]*PlotThread{
		&p.Subplots, &p.ResolvedThreads, &p.ActiveConflicts, &p.PendingForeshadowing, &p.PendingCallbacks,
	} {
		if *m == nil {
			*m = make(map[string]*PlotThread)
		}
	}
	t := &u.ThematicFramework
	for _, m := range []*map[string]float64{&t.Elements, &t.Symbols, &t.Motifs} {
		if *m == nil {
			*m = make(map[string]float64)
		}
	}
}
