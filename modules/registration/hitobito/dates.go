package hitobito

import (
	"fmt"
	"strings"
	"time"
)

const (
	isoDate  = "2006-01-02"
	formDate = "02.01.2006"
)

// IsActive reports whether a role is current on the calendar day of now.
// A role without an end date never expires; one ending today is still active.
func IsActive(role RoleResource, now time.Time) bool {
	end := Str(role.Attributes.EndOn)
	if end == "" || end == "null" {
		return true
	}
	if len(end) > len(isoDate) {
		end = end[:len(isoDate)]
	}
	endDay, err := time.ParseInLocation(isoDate, end, now.Location())
	if err != nil {
		// Unparseable end dates are treated as open-ended.
		return true
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return !endDay.Before(today)
}

// FormDate renders t in the dd.mm.yyyy form the registry's Rails forms expect.
func FormDate(t time.Time) string {
	return t.Format(formDate)
}

// ISOToFormDate converts "yyyy-mm-dd" (optionally with a time part) to
// dd.mm.yyyy. An empty input yields an empty string.
func ISOToFormDate(iso string) (string, error) {
	iso = strings.TrimSpace(iso)
	if iso == "" {
		return "", nil
	}
	if len(iso) > len(isoDate) {
		iso = iso[:len(isoDate)]
	}
	t, err := time.Parse(isoDate, iso)
	if err != nil {
		return "", fmt.Errorf("hitobito: invalid ISO date %q: %w", iso, err)
	}
	return FormDate(t), nil
}

// ISODate renders t as yyyy-mm-dd.
func ISODate(t time.Time) string {
	return t.Format(isoDate)
}
