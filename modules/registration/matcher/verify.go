package matcher

import (
	"fmt"
	"strings"

	"github.com/iota-uz/registrar/modules/registration/hitobito"
)

const (
	weightName      = 30
	weightExactName = 5
	weightEmail     = 40
	weightBirthday  = 20
	weightNickname  = 10
	maxScore        = 100
)

// Verification compares submitted data with registry attributes. Fields
// missing on either side are not compared and count as matching.
type Verification struct {
	Verified      bool
	Score         int
	Mismatches    []string
	NameMatch     bool
	NicknameMatch bool
	BirthdayMatch bool
	EmailMatch    bool
}

func similar(a, b string) bool {
	fa, fb := fold(a), fold(b)
	return fa == fb || strings.Contains(fa, fb) || strings.Contains(fb, fa)
}

func Verify(u UserData, attrs hitobito.PersonAttributes) Verification {
	v := Verification{NameMatch: true, NicknameMatch: true, BirthdayMatch: true, EmailMatch: true}

	inputName := strings.TrimSpace(u.FirstName + " " + u.LastName)
	apiName := strings.TrimSpace(hitobito.Str(attrs.FirstName) + " " + hitobito.Str(attrs.LastName))
	if similar(inputName, apiName) {
		v.Score += weightName
		if fold(inputName) == fold(apiName) {
			v.Score += weightExactName
		}
	} else {
		v.NameMatch = false
		v.Mismatches = append(v.Mismatches, fmt.Sprintf("Name: expected %q, got %q", inputName, apiName))
	}

	if nick, apiNick := strings.TrimSpace(u.Nickname), hitobito.Str(attrs.Nickname); nick != "" && apiNick != "" {
		if similar(nick, apiNick) {
			v.Score += weightNickname
		} else {
			v.NicknameMatch = false
			v.Mismatches = append(v.Mismatches, fmt.Sprintf("Nickname: expected %q, got %q", nick, apiNick))
		}
	}

	if bd, apiBD := strings.TrimSpace(u.BirthDate), hitobito.Str(attrs.Birthday); bd != "" && apiBD != "" {
		if bd == apiBD {
			v.Score += weightBirthday
		} else {
			v.BirthdayMatch = false
			v.Mismatches = append(v.Mismatches, fmt.Sprintf("Birthday: expected %s, got %s", bd, apiBD))
		}
	}

	if email, apiEmail := strings.TrimSpace(u.Email), hitobito.Str(attrs.Email); email != "" && apiEmail != "" {
		if strings.EqualFold(email, apiEmail) {
			v.Score += weightEmail
		} else {
			v.EmailMatch = false
			v.Mismatches = append(v.Mismatches, fmt.Sprintf("Email: expected %s, got %s", email, apiEmail))
		}
	}

	v.Score = min(v.Score, maxScore)
	v.Verified = len(v.Mismatches) == 0 && v.Score > 0
	return v
}
