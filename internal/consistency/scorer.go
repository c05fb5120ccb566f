package consistency

import "github.com/dotcommander/continuity/internal/narrative"

// Score turns violations and warnings into a score in [0, 1] and a verdict.
// Arithmetic runs in integer basis points so equal inputs give equal floats
// and thresholds compare exactly.
func Score(p Policy, violations []narrative.Violation, warnings int) (score float64, valid bool) {
	bp := 10000
	critical := 0
	for _, v := range violations {
		bp -= basisPoints(p.Weights.of(v.Severity))
		if v.Severity == narrative.SeverityCritical {
			critical++
		}
	}
	bp -= warnings * basisPoints(p.WarningPenalty)
	bp = min(max(bp, 0), 10000)
	return float64(bp) / 10000, bp >= basisPoints(p.ValidThreshold) && critical == 0
}
