package consistency

import (
	"fmt"
	"slices"

	"github.com/dotcommander/continuity/internal/content"
	"github.com/dotcommander/continuity/internal/narrative"
)

// ThemeValidator checks thematic assertions against the declared themes and
// tallied elements. It never blocks: the worst it reports is minor.
type ThemeValidator struct{}

func (ThemeValidator) Dimension() narrative.Dimension { return narrative.DimensionTheme }

func (v ThemeValidator) Validate(in Input) Findings {
	f := newFinding(in, v.Dimension())
	t := &in.Universe.ThematicFramework
	if t.Empty() {
		return f.out
	}
	known := knownThemes(t)

	var assertions []string
	if in.Extraction.PrimaryTheme != "" {
		assertions = append(assertions, in.Extraction.PrimaryTheme)
	}
	assertions = append(assertions, in.Extraction.Subthemes...)
	for _, m := range in.Extraction.Themes {
		assertions = append(assertions, m.Theme)
	}

	seen := make(map[string]bool)
	for _, a := range assertions {
		key := narrative.Key(a)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if slices.ContainsFunc(known, func(k string) bool { return narrative.Key(k) == key }) {
			continue
		}
		theme(f, a, known, t.PrimaryTheme)
	}
	return f.out
}

func theme(f *finding, asserted string, known []string, primary string) {
	if match, score := closest(asserted, known); match != "" && score >= f.in.Policy.NearMatch {
		f.suggest(fmt.Sprintf("theme %q looks like the established theme %q", asserted, match))
		f.add(narrative.Violation{
			Severity:        narrative.SeveritySuggestion,
			Description:     fmt.Sprintf("theme %q is close to, but not the same as, %q", asserted, match),
			Entity:          asserted,
			Field:           content.FieldTheme,
			Observed:        asserted,
			Expected:        match,
			SuggestedFix:    fmt.Sprintf("use %q", match),
			AutoCorrectible: true,
		})
		return
	}
	f.add(narrative.Violation{
		Severity:     narrative.SeverityMinor,
		Description:  fmt.Sprintf("theme %q is not part of the thematic framework", asserted),
		Entity:       asserted,
		Field:        content.FieldTheme,
		Observed:     asserted,
		Expected:     primary,
		SuggestedFix: fmt.Sprintf("tie %q back to %q, or add it as a subtheme", asserted, primary),
	})
}

func knownThemes(t *narrative.ThematicFramework) []string {
	var known []string
	if t.PrimaryTheme != "" {
		known = append(known, t.PrimaryTheme)
	}
	known = append(known, t.Subthemes...)
	var tallied []string
	for _, m := range []map[string]float64{t.Elements, t.Symbols, t.Motifs} {
		for k := range m {
			tallied = append(tallied, k)
		}
	}
	slices.Sort(tallied)
	return append(known, slices.Compact(tallied)...)
}
