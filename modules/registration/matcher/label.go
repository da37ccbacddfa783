package matcher

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var emailInLabel = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)

// fold normalizes s for case-insensitive comparison. A Caser keeps state, so
// each call gets its own.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

func containsFold(s, sub string) bool {
	return strings.Contains(fold(s), fold(sub))
}

// LabelMatches is the pre-filter run before any detail lookup: the label
// must name both first and last name, and an email shown in the label must be
// the submitted one.
func LabelMatches(label string, u UserData) bool {
	if !containsFold(label, u.FirstName) || !containsFold(label, u.LastName) {
		return false
	}
	shown := emailInLabel.FindString(label)
	if shown != "" && strings.TrimSpace(u.Email) != "" && fold(shown) != fold(u.Email) {
		return false
	}
	return true
}
