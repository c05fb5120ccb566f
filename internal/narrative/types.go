package narrative

import (
	"strings"
	"time"
)

// Severity ranks how badly a violation breaks continuity.
type Severity string

const (
	SeverityCritical   Severity = "critical"
	SeverityMajor      Severity = "major"
	SeverityMinor      Severity = "minor"
	SeveritySuggestion Severity = "suggestion"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityMajor, SeverityMinor, SeveritySuggestion}

// Dimension is one of the four independent consistency axes.
type Dimension string

const (
	DimensionCharacter Dimension = "character"
	DimensionWorld     Dimension = "world"
	DimensionPlot      Dimension = "plot"
	DimensionTheme     Dimension = "theme"
)

// Dimensions lists the axes in the order their violations are reported.
var Dimensions = []Dimension{DimensionCharacter, DimensionWorld, DimensionPlot, DimensionTheme}

// CorrectionType says whether a correction may be applied without a human.
type CorrectionType string

const (
	CorrectionAutomatic CorrectionType = "automatic"
	CorrectionSuggested CorrectionType = "suggested"
	CorrectionManual    CorrectionType = "manual"
)

// ThreadStatus is the lifecycle state of a plot thread.
type ThreadStatus string

const (
	ThreadActive   ThreadStatus = "active"
	ThreadDormant  ThreadStatus = "dormant"
	ThreadResolved ThreadStatus = "resolved"
	ThreadPending  ThreadStatus = "pending"
	ThreadPaidOff  ThreadStatus = "paid_off"
)

// NarrativeUniverse is the root aggregate of narrative state for one project or series.
type NarrativeUniverse struct {
	ID                string                     `json:"id"`
	Revision          uint64                     `json:"revision"`
	Characters        map[string]*CharacterState `json:"characters"`
	WorldState        WorldState                 `json:"world_state"`
	PlotContinuity    PlotContinuity             `json:"plot_continuity"`
	ThematicFramework ThematicFramework          `json:"thematic_framework"`
	EpisodeHistory    []EpisodeSnapshot          `json:"episode_history"`
	CreatedAt         time.Time                  `json:"created_at"`
	LastUpdated       time.Time                  `json:"last_updated"`
}

// NewUniverse returns an empty universe with every collection initialised.
func NewUniverse(id string, now time.Time) *NarrativeUniverse {
	return &NarrativeUniverse{
		ID:         id,
		Characters: make(map[string]*CharacterState),
		WorldState: WorldState{
			Locations: make(map[string]*LocationState),
			Objects:   make(map[string]*ObjectState),
			Rules:     make(map[string]*WorldRule),
		},
		PlotContinuity: PlotContinuity{
			Subplots:             make(map[string]*PlotThread),
			ResolvedThreads:      make(map[string]*PlotThread),
			ActiveConflicts:      make(map[string]*PlotThread),
			PendingForeshadowing: make(map[string]*PlotThread),
			PendingCallbacks:     make(map[string]*PlotThread),
		},
		ThematicFramework: ThematicFramework{
			Elements: make(map[string]float64),
			Symbols:  make(map[string]float64),
			Motifs:   make(map[string]float64),
		},
		CreatedAt:   now,
		LastUpdated: now,
	}
}

// Key normalises an entity name for use as a map key. Every universe map
// (characters, relationships, locations, objects, rules) is keyed this way.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Character looks up a character by display name.
func (u *NarrativeUniverse) Character(name string) (*CharacterState, bool) {
	c, ok := u.Characters[Key(name)]
	return c, ok
}

// ContentRef points at the content unit that produced or touched a piece of state.
type ContentRef struct {
	TabType   string    `json:"tab_type"`
	Excerpt   string    `json:"excerpt"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// CharacterProfile holds the slow-moving baseline traits of a character.
type CharacterProfile struct {
	Voice      string   `json:"voice,omitempty"`
	Background string   `json:"background,omitempty"`
	Goals      []string `json:"goals,omitempty"`
}

// CurrentState holds the mutable, episode-local facts about a character. The
// emotional and physical states are the established ones new content is
// compared against.
type CurrentState struct {
	EmotionalState string   `json:"emotional_state,omitempty"`
	PhysicalState  string   `json:"physical_state,omitempty"`
	Location       string   `json:"location,omitempty"`
	Knowledge      []string `json:"knowledge,omitempty"`
	Episode        int      `json:"episode"`
}

// ArcPoint is one step of a character's growth. Arc points are append-only.
// Attributed points carry an explicit arc beat; only they may move a
// character's established state. Observed holds a state the content stated
// that was not established.
type ArcPoint struct {
	Episode        int       `json:"episode"`
	Event          string    `json:"event"`
	Growth         string    `json:"growth,omitempty"`
	ResultingState string    `json:"resulting_state,omitempty"`
	Observed       string    `json:"observed,omitempty"`
	Attributed     bool      `json:"attributed"`
	TabType        string    `json:"tab_type"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// Relationship is the stored state of one character's relation to another.
type Relationship struct {
	Status  string `json:"status"`
	Since   int    `json:"since"`
	Details string `json:"details,omitempty"`
}

// CharacterState is one character's evolving profile.
type CharacterState struct {
	Name           string                   `json:"name"`
	Profile        CharacterProfile         `json:"profile"`
	CurrentState   CurrentState             `json:"current_state"`
	ArcProgression []ArcPoint               `json:"arc_progression"`
	Relationships  map[string]*Relationship `json:"relationships"`
	LastSeen       ContentRef               `json:"last_seen"`
}

// EstablishedEmotion reports the emotional state backed by the latest
// attributed arc point, or "" when no arc beat ever motivated one.
func (c *CharacterState) EstablishedEmotion() string {
	for i := len(c.ArcProgression) - 1; i >= 0; i-- {
		if p := c.ArcProgression[i]; p.Attributed {
			return p.ResultingState
		}
	}
	return ""
}

// LocationState is the stored description of a place.
type LocationState struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status,omitempty"`
	FirstSeen   int        `json:"first_seen"`
	Appearances int        `json:"appearances"`
	LastSeen    ContentRef `json:"last_seen"`
}

// ObjectState is the stored description of a prop or artefact.
type ObjectState struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status,omitempty"`
	Owner       string     `json:"owner,omitempty"`
	Location    string     `json:"location,omitempty"`
	Appearances int        `json:"appearances"`
	LastSeen    ContentRef `json:"last_seen"`
}

// WorldRule is a stated law of the setting (magic system, technology limit, ...).
type WorldRule struct {
	Name        string     `json:"name"`
	Statement   string     `json:"statement"`
	Appearances int        `json:"appearances"`
	LastSeen    ContentRef `json:"last_seen"`
}

// TimelineEvent is one entry of the chronological world timeline.
type TimelineEvent struct {
	Episode    int       `json:"episode"`
	Summary    string    `json:"summary"`
	TabType    string    `json:"tab_type"`
	RecordedAt time.Time `json:"recorded_at"`
}

// WorldState groups the physical facts of the setting.
type WorldState struct {
	Locations      map[string]*LocationState `json:"locations"`
	Objects        map[string]*ObjectState   `json:"objects"`
	Rules          map[string]*WorldRule     `json:"rules"`
	Timeline       []TimelineEvent           `json:"timeline"`
	CurrentEpisode int                       `json:"current_episode"`
}

// PlotThread is a conflict, subplot, foreshadowing beat or callback target.
type PlotThread struct {
	ID          string       `json:"id"`
	Description string       `json:"description,omitempty"`
	Status      ThreadStatus `json:"status"`
	OpenedIn    int          `json:"opened_in"`
	ClosedIn    int          `json:"closed_in,omitempty"`
	Callbacks   []int        `json:"callbacks,omitempty"`
	LastSeen    ContentRef   `json:"last_seen"`
}

// PlotContinuity tracks every open and closed plot thread.
type PlotContinuity struct {
	MainPlot             *PlotThread            `json:"main_plot,omitempty"`
	Subplots             map[string]*PlotThread `json:"subplots"`
	ResolvedThreads      map[string]*PlotThread `json:"resolved_threads"`
	ActiveConflicts      map[string]*PlotThread `json:"active_conflicts"`
	PendingForeshadowing map[string]*PlotThread `json:"pending_foreshadowing"`
	PendingCallbacks     map[string]*PlotThread `json:"pending_callbacks"`
}

// Lookup finds a thread by id anywhere in the continuity, reporting where it lives.
func (p *PlotContinuity) Lookup(id string) (*PlotThread, string) {
	if p.MainPlot != nil && p.MainPlot.ID == id {
		return p.MainPlot, "main"
	}
	for _, bucket := range []struct {
		name    string
		threads map[string]*PlotThread
	}{
		{"active_conflicts", p.ActiveConflicts},
		{"subplots", p.Subplots},
		{"resolved", p.ResolvedThreads},
		{"foreshadowing", p.PendingForeshadowing},
		{"callbacks", p.PendingCallbacks},
	} {
		if t, ok := bucket.threads[id]; ok {
			return t, bucket.name
		}
	}
	return nil, ""
}

// ThematicFramework holds the project's themes and their weighted tallies.
type ThematicFramework struct {
	PrimaryTheme string             `json:"primary_theme,omitempty"`
	Subthemes    []string           `json:"subthemes,omitempty"`
	Elements     map[string]float64 `json:"elements"`
	Symbols      map[string]float64 `json:"symbols"`
	Motifs       map[string]float64 `json:"motifs"`
}

// Empty reports whether no theme has been declared yet.
func (t *ThematicFramework) Empty() bool {
	return t.PrimaryTheme == "" && len(t.Subthemes) == 0 && len(t.Elements) == 0 &&
		len(t.Symbols) == 0 && len(t.Motifs) == 0
}

// EpisodeSnapshot is one append-only audit entry written by each universe update.
type EpisodeSnapshot struct {
	Episode     int       `json:"episode"`
	Revision    uint64    `json:"revision"`
	TabType     string    `json:"tab_type"`
	ContentType string    `json:"content_type"`
	ContentHash string    `json:"content_hash"`
	Characters  []string  `json:"characters,omitempty"`
	Locations   []string  `json:"locations,omitempty"`
	Threads     []string  `json:"threads,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Violation is a detected contradiction between new content and the universe.
// Violations are never mutated once built.
type Violation struct {
	ID              string     `json:"id"`
	Type            Dimension  `json:"type"`
	Severity        Severity   `json:"severity"`
	Description     string     `json:"description"`
	Entity          string     `json:"entity"`
	Field           string     `json:"field"`
	Observed        string     `json:"observed,omitempty"`
	Expected        string     `json:"expected,omitempty"`
	AffectedContent ContentRef `json:"affected_content"`
	ConflictsWith   ContentRef `json:"conflicts_with"`
	SuggestedFix    string     `json:"suggested_fix,omitempty"`
	AutoCorrectible bool       `json:"auto_correctible"`
}

// Correction is a proposed edit resolving exactly one violation.
type Correction struct {
	ID               string         `json:"id"`
	ViolationID      string         `json:"violation_id"`
	Dimension        Dimension      `json:"dimension"`
	Entity           string         `json:"entity"`
	Field            string         `json:"field"`
	OriginalContent  string         `json:"original_content"`
	CorrectedContent string         `json:"corrected_content"`
	Explanation      string         `json:"explanation"`
	Confidence       float64        `json:"confidence"`
	CorrectionType   CorrectionType `json:"correction_type"`
}

// Stage is a step of the validation pipeline state machine.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageValidating Stage = "validating"
	StageScored     Stage = "scored"
	StageCorrecting Stage = "correcting"
	StageComplete   Stage = "complete"
)

// ValidationResult is the immutable output of one validation run.
type ValidationResult struct {
	UniverseID   string       `json:"universe_id"`
	ContentHash  string       `json:"content_hash"`
	Revision     uint64       `json:"revision"`
	ValidatedAt  time.Time    `json:"validated_at"`
	IsValid      bool         `json:"is_valid"`
	OverallScore float64      `json:"overall_score"`
	Violations   []Violation  `json:"violations"`
	Warnings     []string     `json:"warnings"`
	Suggestions  []string     `json:"suggestions"`
	Corrections  []Correction `json:"corrections"`
	Stages       []Stage      `json:"stages"`
	Degraded     bool         `json:"degraded"`
}

// CountBySeverity tallies the violations of one severity.
func (r *ValidationResult) CountBySeverity(s Severity) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == s {
			n++
		}
	}
	return n
}
