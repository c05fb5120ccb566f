package consistency

import (
	"time"

	"github.com/dotcommander/continuity/internal/content"
	"github.com/dotcommander/continuity/internal/narrative"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// maraUniverse holds Mara, grieving, and the Lighthouse.
func maraUniverse() *narrative.NarrativeUniverse {
	u := narrative.NewUniverse("pilot", fixedNow)
	u.Characters["mara"] = &narrative.CharacterState{
		Name:    "Mara",
		Profile: narrative.CharacterProfile{Voice: "terse"},
		CurrentState: narrative.CurrentState{
			EmotionalState: "grieving",
			PhysicalState:  "injured",
			Episode:        1,
		},
		Relationships: map[string]*narrative.Relationship{
			"theo": {Status: "estranged", Since: 1},
		},
		LastSeen: narrative.ContentRef{TabType: "script", Excerpt: "Mara at the funeral", Timestamp: fixedNow},
	}
	u.WorldState.Locations["lighthouse"] = &narrative.LocationState{
		Name:        "Lighthouse",
		Description: "abandoned, collapsing roof",
		Status:      "derelict",
		Appearances: 2,
	}
	u.WorldState.Objects["brass key"] = &narrative.ObjectState{Name: "Brass key", Status: "missing", Appearances: 1}
	u.WorldState.Rules["tides"] = &narrative.WorldRule{Name: "Tides", Statement: "the causeway floods at dusk", Appearances: 1}
	return u
}

func scriptWith(chars []content.CharacterMention, loc content.LocationMention, beats ...content.PlotBeat) *content.Script {
	return &content.Script{
		Episode: 2,
		Scenes: []content.Scene{{
			Number:     1,
			Location:   loc,
			Characters: chars,
			Beats:      beats,
		}},
	}
}

func input(u *narrative.NarrativeUniverse, p content.Payload) Input {
	return Input{
		UniverseID: u.ID,
		Tab:        p.TabType(),
		Extraction: p.Extract(),
		Universe:   u,
		Policy:     DefaultPolicy(),
	}
}

func violation(sev narrative.Severity) narrative.Violation {
	return narrative.Violation{Severity: sev}
}
