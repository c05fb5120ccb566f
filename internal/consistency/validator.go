package consistency

import (
	"strings"

	"github.com/google/uuid"

	"github.com/dotcommander/continuity/internal/content"
	"github.com/dotcommander/continuity/internal/narrative"
)

var idSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/dotcommander/continuity"))

// Input is everything a validator may look at. Universe is a private snapshot
// shared by all validators of one run and must not be modified.
type Input struct {
	UniverseID string
	Tab        content.TabType
	Extraction content.Extraction
	Universe   *narrative.NarrativeUniverse
	Bible      *narrative.StoryBible
	Policy     Policy
}

// Findings is the output of one validator.
type Findings struct {
	Violations  []narrative.Violation
	Warnings    []string
	Suggestions []string
}

// Validator checks one consistency dimension.
type Validator interface {
	Dimension() narrative.Dimension
	Validate(in Input) Findings
}

// DefaultValidators returns the four dimension validators in reporting order.
func DefaultValidators() []Validator {
	return []Validator{CharacterValidator{}, WorldValidator{}, PlotValidator{}, ThemeValidator{}}
}

// finding collects violations for one dimension of one run.
type finding struct {
	in  Input
	dim narrative.Dimension
	out Findings
}

func newFinding(in Input, dim narrative.Dimension) *finding {
	return &finding{in: in, dim: dim}
}

// affected points at the incoming content. It carries no timestamp: the content
// is not recorded yet, and the run time lives on the result.
func (f *finding) affected(excerpt string) narrative.ContentRef {
	return narrative.ContentRef{TabType: string(f.in.Tab), Excerpt: excerpt}
}

func (f *finding) warn(msg string) {
	f.out.Warnings = append(f.out.Warnings, msg)
}

func (f *finding) suggest(msg string) {
	f.out.Suggestions = append(f.out.Suggestions, msg)
}

// add records v, filling the fields every violation of the run shares.
func (f *finding) add(v narrative.Violation) {
	v.Type = f.dim
	v.ID = violationID(f.in.UniverseID, v)
	if v.AffectedContent.TabType == "" {
		v.AffectedContent = f.affected(v.Observed)
	}
	f.out.Violations = append(f.out.Violations, v)
}

// violationID is a name-based UUID, so a rerun over the same input yields the same ids.
func violationID(universeID string, v narrative.Violation) string {
	name := strings.Join([]string{universeID, string(v.Type), v.Entity, v.Field, v.Description}, "\x00")
	return uuid.NewSHA1(idSpace, []byte(name)).String()
}

func correctionID(violationID, corrected string) string {
	return uuid.NewSHA1(idSpace, []byte(violationID+"\x00"+corrected)).String()
}
