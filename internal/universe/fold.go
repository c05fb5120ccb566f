package universe

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dotcommander/continuity/internal/content"
	"github.com/dotcommander/continuity/internal/narrative"
)

// folder merges one extraction into a universe.
type folder struct {
	tab         string
	contentType string
	hash        string
	now         time.Time
	bible       *narrative.StoryBible
	episode     int
}

func (f *folder) ref(excerpt string) narrative.ContentRef {
	return narrative.ContentRef{TabType: f.tab, Excerpt: excerpt, Timestamp: f.now}
}

func (f *folder) fold(u *narrative.NarrativeUniverse, ext content.Extraction) {
	f.episode = ext.Episode
	if f.episode == 0 {
		f.episode = u.WorldState.CurrentEpisode
	}

	for _, m := range ext.Characters {
		f.character(u, m)
	}
	for _, m := range ext.Locations {
		f.location(u, m)
	}
	for _, m := range ext.Objects {
		f.object(u, m)
	}
	for _, m := range ext.Rules {
		f.rule(u, m)
	}
	for _, b := range ext.Beats {
		f.beat(&u.PlotContinuity, b)
	}
	f.themes(&u.ThematicFramework, ext)

	w := &u.WorldState
	w.CurrentEpisode = max(w.CurrentEpisode, f.episode)
	if !ext.Empty() {
		w.Timeline = append(w.Timeline, narrative.TimelineEvent{
			Episode:    f.episode,
			Summary:    summarize(ext),
			TabType:    f.tab,
			RecordedAt: f.now,
		})
	}

	snap := narrative.EpisodeSnapshot{
		Episode:     f.episode,
		Revision:    u.Revision + 1,
		TabType:     f.tab,
		ContentType: f.contentType,
		ContentHash: f.hash,
		RecordedAt:  f.now,
	}
	for _, m := range ext.Characters {
		snap.Characters = append(snap.Characters, strings.TrimSpace(m.Name))
	}
	for _, m := range ext.Locations {
		snap.Locations = append(snap.Locations, strings.TrimSpace(m.Name))
	}
	for _, b := range ext.Beats {
		if !slices.Contains(snap.Threads, b.ThreadID) {
			snap.Threads = append(snap.Threads, b.ThreadID)
		}
	}
	u.EpisodeHistory = append(u.EpisodeHistory, snap)
}

func summarize(ext content.Extraction) string {
	var parts []string
	add := func(n int, noun string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, noun))
		}
	}
	add(len(ext.Characters), "characters")
	add(len(ext.Locations), "locations")
	add(len(ext.Objects), "objects")
	add(len(ext.Rules), "rules")
	add(len(ext.Beats), "plot beats")
	add(len(ext.Themes), "themes")
	if len(parts) == 0 {
		return "theme declared"
	}
	return strings.Join(parts, ", ")
}

func set(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// establish moves an established state to v when an arc beat motivates the
// change, nothing was established yet, or v restates it. It reports false when
// v was left unestablished.
func establish(dst *string, v string, attributed bool) bool {
	if v == "" {
		return true
	}
	if narrative.Key(*dst) == narrative.Key(v) {
		return true
	}
	if attributed || *dst == "" {
		*dst = v
		return true
	}
	return false
}

func appendUnique(dst []string, vs ...string) []string {
	for _, v := range vs {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}

// character upserts a character and appends exactly one arc point.
func (f *folder) character(u *narrative.NarrativeUniverse, m content.CharacterMention) {
	key := narrative.Key(m.Name)
	c, ok := u.Characters[key]
	if !ok {
		c = &narrative.CharacterState{
			Name:          strings.TrimSpace(m.Name),
			Relationships: make(map[string]*narrative.Relationship),
		}
		if b, found := f.bible.Character(m.Name); found {
			c.Profile = narrative.CharacterProfile{
				Voice:      b.Voice,
				Background: b.Background,
				Goals:      slices.Clone(b.Goals),
			}
			c.CurrentState.EmotionalState = b.BaselineEmotion
		}
		u.Characters[key] = c
	}

	set(&c.Profile.Voice, m.Voice)
	set(&c.Profile.Background, m.Background)
	c.Profile.Goals = appendUnique(c.Profile.Goals, m.Goals...)

	attributed := m.Arc != nil
	cur := &c.CurrentState
	emotionSettled := establish(&cur.EmotionalState, m.EmotionalState, attributed)
	establish(&cur.PhysicalState, m.PhysicalState, attributed)
	set(&cur.Location, m.Location)
	cur.Knowledge = appendUnique(cur.Knowledge, m.Knowledge...)
	if f.episode > 0 {
		cur.Episode = f.episode
	}

	for other, status := range m.Relationships {
		k := narrative.Key(other)
		if r, exists := c.Relationships[k]; exists {
			if r.Status != status {
				r.Status = status
				r.Since = f.episode
			}
			continue
		}
		c.Relationships[k] = &narrative.Relationship{Status: status, Since: f.episode}
	}

	point := narrative.ArcPoint{
		Episode:        f.episode,
		Event:          fmt.Sprintf("appears in %s", f.tab),
		ResultingState: cur.EmotionalState,
		Attributed:     attributed,
		TabType:        f.tab,
		RecordedAt:     f.now,
	}
	if !emotionSettled {
		point.Observed = m.EmotionalState
	}
	if attributed {
		set(&point.Event, m.Arc.Event)
		point.Growth = m.Arc.Growth
	}
	c.ArcProgression = append(c.ArcProgression, point)
	c.LastSeen = f.ref(point.Event)
}

func (f *folder) location(u *narrative.NarrativeUniverse, m content.LocationMention) {
	key := narrative.Key(m.Name)
	l, ok := u.WorldState.Locations[key]
	if !ok {
		l = &narrative.LocationState{Name: strings.TrimSpace(m.Name), FirstSeen: f.episode}
		u.WorldState.Locations[key] = l
	}
	set(&l.Description, m.Description)
	set(&l.Status, m.Status)
	l.Appearances++
	l.LastSeen = f.ref(m.Description)
}

func (f *folder) object(u *narrative.NarrativeUniverse, m content.ObjectMention) {
	key := narrative.Key(m.Name)
	o, ok := u.WorldState.Objects[key]
	if !ok {
		o = &narrative.ObjectState{Name: strings.TrimSpace(m.Name)}
		u.WorldState.Objects[key] = o
	}
	set(&o.Description, m.Description)
	set(&o.Status, m.Status)
	set(&o.Owner, m.Owner)
	set(&o.Location, m.Location)
	o.Appearances++
	o.LastSeen = f.ref(m.Description)
}

func (f *folder) rule(u *narrative.NarrativeUniverse, m content.RuleMention) {
	key := narrative.Key(m.Name)
	r, ok := u.WorldState.Rules[key]
	if !ok {
		r = &narrative.WorldRule{Name: strings.TrimSpace(m.Name)}
		u.WorldState.Rules[key] = r
	}
	set(&r.Statement, m.Statement)
	r.Appearances++
	r.LastSeen = f.ref(m.Statement)
}

// detach removes a thread from every bucket, returning it (or a new thread).
func (f *folder) detach(p *narrative.PlotContinuity, id string) *narrative.PlotThread {
	t, _ := p.Lookup(id)
	if t == nil {
		t = &narrative.PlotThread{ID: id, Status: narrative.ThreadActive, OpenedIn: f.episode}
	}
	for _, m := range []map[string]*narrative.PlotThread{
		p.Subplots, p.ResolvedThreads, p.ActiveConflicts, p.PendingForeshadowing, p.PendingCallbacks,
	} {
		delete(m, id)
	}
	return t
}

func (f *folder) close(t *narrative.PlotThread, status narrative.ThreadStatus) {
	t.Status = status
	t.ClosedIn = f.episode
}

func (f *folder) beat(p *narrative.PlotContinuity, b content.PlotBeat) {
	_, bucket := p.Lookup(b.ThreadID)
	if bucket == "main" {
		f.mainBeat(p.MainPlot, b)
		return
	}

	t := f.detach(p, b.ThreadID)
	set(&t.Description, b.Description)
	t.LastSeen = f.ref(b.Description)

	switch b.Kind {
	case content.BeatMain:
		t.Status = declaredOr(b, narrative.ThreadActive)
		if p.MainPlot != nil {
			p.Subplots[p.MainPlot.ID] = p.MainPlot
		}
		p.MainPlot = t
	case content.BeatSubplot:
		t.Status = declaredOr(b, narrative.ThreadActive)
		p.Subplots[t.ID] = t
	case content.BeatConflict:
		t.Status = narrative.ThreadActive
		t.ClosedIn = 0
		p.ActiveConflicts[t.ID] = t
	case content.BeatResolution:
		f.close(t, narrative.ThreadResolved)
		p.ResolvedThreads[t.ID] = t
	case content.BeatForeshadow:
		t.Status = narrative.ThreadPending
		p.PendingForeshadowing[t.ID] = t
	case content.BeatCallbackSeed:
		t.Status = narrative.ThreadPending
		p.PendingCallbacks[t.ID] = t
	case content.BeatPayoff:
		f.close(t, narrative.ThreadPaidOff)
		p.ResolvedThreads[t.ID] = t
	case content.BeatCallback:
		t.Callbacks = append(t.Callbacks, f.episode)
		if bucket == "callbacks" {
			f.close(t, narrative.ThreadPaidOff)
			p.ResolvedThreads[t.ID] = t
			return
		}
		refile(p, t, bucket)
	default:
		t.Status = declaredOr(b, t.Status)
		refile(p, t, bucket)
	}
}

// mainBeat advances the main plot in place; it never leaves its slot.
func (f *folder) mainBeat(t *narrative.PlotThread, b content.PlotBeat) {
	set(&t.Description, b.Description)
	t.LastSeen = f.ref(b.Description)
	switch b.Kind {
	case content.BeatResolution:
		f.close(t, narrative.ThreadResolved)
	case content.BeatCallback:
		t.Callbacks = append(t.Callbacks, f.episode)
	case content.BeatConflict:
		t.Status = narrative.ThreadActive
		t.ClosedIn = 0
	default:
		t.Status = declaredOr(b, t.Status)
	}
}

func declaredOr(b content.PlotBeat, fallback narrative.ThreadStatus) narrative.ThreadStatus {
	if b.Status != "" {
		return narrative.ThreadStatus(b.Status)
	}
	return fallback
}

// refile puts a thread back in the bucket it came from; new threads become subplots.
func refile(p *narrative.PlotContinuity, t *narrative.PlotThread, bucket string) {
	switch bucket {
	case "active_conflicts":
		p.ActiveConflicts[t.ID] = t
	case "resolved":
		p.ResolvedThreads[t.ID] = t
	case "foreshadowing":
		p.PendingForeshadowing[t.ID] = t
	case "callbacks":
		p.PendingCallbacks[t.ID] = t
	default:
		p.Subplots[t.ID] = t
	}
}

func (f *folder) themes(t *narrative.ThematicFramework, ext content.Extraction) {
	if ext.PrimaryTheme != "" {
		t.PrimaryTheme = ext.PrimaryTheme
	}
	t.Subthemes = appendUnique(t.Subthemes, ext.Subthemes...)
	for _, m := range ext.Themes {
		key := narrative.Key(m.Theme)
		switch strings.ToLower(m.Kind) {
		case "symbol":
			t.Symbols[key]++
		case "motif":
			t.Motifs[key]++
		default:
			t.Elements[key]++
		}
	}
}
