package content

// TabType identifies the surface a content unit was produced on.
type TabType string

const (
	TabScript        TabType = "script"
	TabCasting       TabType = "casting"
	TabStoryboard    TabType = "storyboard"
	TabSchedule      TabType = "schedule"
	TabWorldbuilding TabType = "worldbuilding"
	TabOutline       TabType = "outline"
)

// KnownTabs lists the tab types with a dedicated payload.
var KnownTabs = []TabType{TabScript, TabCasting, TabStoryboard, TabSchedule, TabWorldbuilding, TabOutline}

// Payload is one strongly-typed content unit. Each tab type carries its own
// extraction and edit logic; tabs without a payload decode to Unknown.
type Payload interface {
	TabType() TabType
	Extract() Extraction
	ApplyEdit(Edit) error
	Clone() Payload
}

// ArcBeat attributes a character's state change to an explicit story event.
type ArcBeat struct {
	Event  string `json:"event"`
	Growth string `json:"growth,omitempty"`
}

// CharacterMention is everything a content unit states about one character.
type CharacterMention struct {
	Name           string            `json:"name"`
	EmotionalState string            `json:"emotional_state,omitempty"`
	PhysicalState  string            `json:"physical_state,omitempty"`
	Location       string            `json:"location,omitempty"`
	Voice          string            `json:"voice,omitempty"`
	Background     string            `json:"background,omitempty"`
	Goals          []string          `json:"goals,omitempty"`
	Dialogue       []string          `json:"dialogue,omitempty"`
	Relationships  map[string]string `json:"relationships,omitempty"`
	Knowledge      []string          `json:"knowledge,omitempty"`
	Arc            *ArcBeat          `json:"arc,omitempty"`
}

// LocationMention describes a place. Changed marks a deliberate state change.
type LocationMention struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Changed     bool   `json:"changed,omitempty"`
}

// ObjectMention describes a prop. Changed marks a deliberate state change.
type ObjectMention struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Location    string `json:"location,omitempty"`
	Changed     bool   `json:"changed,omitempty"`
}

// RuleMention states a world rule.
type RuleMention struct {
	Name      string `json:"name"`
	Statement string `json:"statement"`
	Changed   bool   `json:"changed,omitempty"`
}

// BeatKind classifies a plot beat.
type BeatKind string

const (
	BeatMain         BeatKind = "main"
	BeatSubplot      BeatKind = "subplot"
	BeatConflict     BeatKind = "conflict"
	BeatRevelation   BeatKind = "revelation"
	BeatCallback     BeatKind = "callback"
	BeatResolution   BeatKind = "resolution"
	BeatForeshadow   BeatKind = "foreshadowing"
	BeatPayoff       BeatKind = "payoff"
	BeatCallbackSeed BeatKind = "setup"
)

// PlotBeat introduces, advances or references a plot thread.
type PlotBeat struct {
	Kind        BeatKind `json:"kind"`
	ThreadID    string   `json:"thread_id"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status,omitempty"`
}

// ThemeMention asserts a theme, symbol or motif.
type ThemeMention struct {
	Theme string `json:"theme"`
	Kind  string `json:"kind,omitempty"`
}

// Scene is one scene of a script.
type Scene struct {
	Number     int                `json:"number"`
	Heading    string             `json:"heading,omitempty"`
	Location   LocationMention    `json:"location"`
	Characters []CharacterMention `json:"characters,omitempty"`
	Objects    []ObjectMention    `json:"objects,omitempty"`
	Rules      []RuleMention      `json:"rules,omitempty"`
	Beats      []PlotBeat         `json:"beats,omitempty"`
	Themes     []ThemeMention     `json:"themes,omitempty"`
}

// Script is the content of the script tab.
type Script struct {
	Episode int     `json:"episode"`
	Title   string  `json:"title,omitempty"`
	Scenes  []Scene `json:"scenes"`
}

func (*Script) TabType() TabType { return TabScript }

// CastingRole is one role breakdown from the casting tab.
type CastingRole struct {
	Character      string            `json:"character"`
	Voice          string            `json:"voice,omitempty"`
	Background     string            `json:"background,omitempty"`
	Goals          []string          `json:"goals,omitempty"`
	EmotionalState string            `json:"emotional_state,omitempty"`
	Relationships  map[string]string `json:"relationships,omitempty"`
	SampleLines    []string          `json:"sample_lines,omitempty"`
}

// Casting is the content of the casting tab.
type Casting struct {
	Episode int           `json:"episode"`
	Roles   []CastingRole `json:"roles"`
}

func (*Casting) TabType() TabType { return TabCasting }

// Panel is one storyboard frame.
type Panel struct {
	Shot       string             `json:"shot"`
	Location   LocationMention    `json:"location"`
	Characters []CharacterMention `json:"characters,omitempty"`
	Objects    []ObjectMention    `json:"objects,omitempty"`
}

// Storyboard is the content of the storyboard tab.
type Storyboard struct {
	Episode int     `json:"episode"`
	Scene   int     `json:"scene,omitempty"`
	Panels  []Panel `json:"panels"`
}

func (*Storyboard) TabType() TabType { return TabStoryboard }

// ShootDay is one day of the production schedule.
type ShootDay struct {
	Date      string   `json:"date"`
	Episode   int      `json:"episode"`
	Locations []string `json:"locations,omitempty"`
	Cast      []string `json:"cast,omitempty"`
}

// Schedule is the content of the schedule tab. It only names entities.
type Schedule struct {
	Days []ShootDay `json:"days"`
}

func (*Schedule) TabType() TabType { return TabSchedule }

// Worldbuilding is the content of the world bible tab.
type Worldbuilding struct {
	Episode   int               `json:"episode"`
	Locations []LocationMention `json:"locations,omitempty"`
	Objects   []ObjectMention   `json:"objects,omitempty"`
	Rules     []RuleMention     `json:"rules,omitempty"`
}

func (*Worldbuilding) TabType() TabType { return TabWorldbuilding }

// Outline is the content of the story outline tab.
type Outline struct {
	Episode      int            `json:"episode"`
	Logline      string         `json:"logline,omitempty"`
	PrimaryTheme string         `json:"primary_theme,omitempty"`
	Subthemes    []string       `json:"subthemes,omitempty"`
	Beats        []PlotBeat     `json:"beats,omitempty"`
	Themes       []ThemeMention `json:"themes,omitempty"`
}

func (*Outline) TabType() TabType { return TabOutline }
