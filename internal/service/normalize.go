package service

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// lookupKey normalises a lookup string: NFKC, trimmed, case-folded.
// "Recolección", "RECOLECCIÓN" and the decomposed form all compare equal.
func lookupKey(s string) string {
	// cases.Caser holds state and is not safe for concurrent use.
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(s)))
}
