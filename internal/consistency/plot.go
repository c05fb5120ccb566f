package consistency

import (
	"fmt"
	"slices"

	"github.com/dotcommander/continuity/internal/content"
	"github.com/dotcommander/continuity/internal/narrative"
)

// PlotValidator checks that beats reference threads which exist and are in a
// status the beat can follow. A missing reference breaks continuity (critical);
// a thread in the wrong state is a major problem.
type PlotValidator struct{}

func (PlotValidator) Dimension() narrative.Dimension { return narrative.DimensionPlot }

func (v PlotValidator) Validate(in Input) Findings {
	f := newFinding(in, v.Dimension())
	p := &in.Universe.PlotContinuity
	for _, b := range in.Extraction.Beats {
		t, bucket := p.Lookup(b.ThreadID)
		switch b.Kind {
		case content.BeatCallback:
			if t == nil {
				missing(f, p, b, "callback")
			} else if !slices.Contains([]string{"resolved", "active_conflicts", "callbacks"}, bucket) {
				mismatch(f, b, t, fmt.Sprintf("a callback needs a resolved thread, an active conflict or a planted setup, but %s is %s", t.ID, describe(bucket)))
			}
		case content.BeatRevelation:
			if t == nil {
				missing(f, p, b, "revelation")
			}
		case content.BeatResolution:
			if t == nil {
				missing(f, p, b, "resolution")
			} else if closed(t) {
				mismatch(f, b, t, fmt.Sprintf("%s is resolved again, but it was already closed in episode %d", t.ID, t.ClosedIn))
			}
		case content.BeatPayoff:
			if t == nil {
				missing(f, p, b, "payoff")
			} else if bucket != "foreshadowing" {
				mismatch(f, b, t, fmt.Sprintf("a payoff needs pending foreshadowing, but %s is %s", t.ID, describe(bucket)))
			}
		case content.BeatConflict:
			if t != nil && closed(t) {
				mismatch(f, b, t, fmt.Sprintf("%s is reopened as a conflict after being resolved", t.ID))
			}
		}
		declared(f, b, t)
	}
	return f.out
}

func closed(t *narrative.PlotThread) bool {
	return t.Status == narrative.ThreadResolved || t.Status == narrative.ThreadPaidOff
}

func describe(bucket string) string {
	switch bucket {
	case "main":
		return "the main plot"
	case "subplots":
		return "an open subplot"
	case "active_conflicts":
		return "an active conflict"
	case "resolved":
		return "resolved"
	case "foreshadowing":
		return "unpaid foreshadowing"
	case "callbacks":
		return "a planted setup"
	}
	return "unknown"
}

func threadIDs(p *narrative.PlotContinuity) []string {
	var ids []string
	if p.MainPlot != nil {
		ids = append(ids, p.MainPlot.ID)
	}
	for _, m := range []map[string]*narrative.PlotThread{
		p.ActiveConflicts, p.Subplots, p.ResolvedThreads, p.PendingForeshadowing, p.PendingCallbacks,
	} {
		for id := range m {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// missing reports a beat whose thread does not exist. A near-miss id makes the
// violation correctable by renaming the reference.
func missing(f *finding, p *narrative.PlotContinuity, b content.PlotBeat, kind string) {
	v := narrative.Violation{
		Severity:     narrative.SeverityCritical,
		Description:  fmt.Sprintf("%s references plot thread %q, which was never established", kind, b.ThreadID),
		Entity:       b.ThreadID,
		Field:        content.FieldThreadID,
		Observed:     b.ThreadID,
		SuggestedFix: fmt.Sprintf("establish %q before this %s, or reference an existing thread", b.ThreadID, kind),
	}
	if match, score := closest(b.ThreadID, threadIDs(p)); match != "" && score >= f.in.Policy.NearMatch {
		t, _ := p.Lookup(match)
		v.Expected = match
		v.ConflictsWith = t.LastSeen
		v.SuggestedFix = fmt.Sprintf("did you mean %q?", match)
		v.AutoCorrectible = true
	}
	f.add(v)
}

func mismatch(f *finding, b content.PlotBeat, t *narrative.PlotThread, desc string) {
	f.add(narrative.Violation{
		Severity:      narrative.SeverityMajor,
		Description:   desc,
		Entity:        t.ID,
		Field:         "thread." + string(b.Kind),
		Observed:      string(b.Kind),
		Expected:      string(t.Status),
		ConflictsWith: t.LastSeen,
		SuggestedFix:  fmt.Sprintf("check where %s stands before writing a %s beat", t.ID, b.Kind),
	})
}

// declared compares a status the beat asserts with the stored status.
func declared(f *finding, b content.PlotBeat, t *narrative.PlotThread) {
	if t == nil || b.Status == "" || narrative.ThreadStatus(b.Status) == t.Status {
		return
	}
	switch b.Kind {
	case content.BeatMain, content.BeatSubplot, content.BeatRevelation, content.BeatCallback:
	default:
		return
	}
	f.add(narrative.Violation{
		Severity:        narrative.SeverityMajor,
		Description:     fmt.Sprintf("plot thread %s is declared %s, but is %s", t.ID, b.Status, t.Status),
		Entity:          t.ID,
		Field:           content.FieldThreadStatus,
		Observed:        b.Status,
		Expected:        string(t.Status),
		ConflictsWith:   t.LastSeen,
		SuggestedFix:    fmt.Sprintf("declare %s as %s", t.ID, t.Status),
		AutoCorrectible: true,
	})
}
