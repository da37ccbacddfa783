package hitobito

import (
	"net/url"
	"sync"

	"github.com/go-playground/form"
)

var formEncoder = sync.OnceValue(func() *form.Encoder {
	return form.NewEncoder()
})

// encodeForm flattens a tagged struct into form values. Tags carry the Rails
// parameter names verbatim.
func encodeForm(v any) (url.Values, error) {
	return formEncoder().Encode(v)
}

// roleForm is the "new role" form of a group.
type roleForm struct {
	PersonID  string `form:"role[person_id]"`
	Person    string `form:"role[person]"`
	GroupID   string `form:"role[group_id]"`
	Type      string `form:"role[type]"`
	Label     string `form:"role[label]"`
	StartOn   string `form:"role[start_on]"`
	EndOn     string `form:"role[end_on]"`
	Button    string `form:"button"`
	ReturnURL string `form:"return_url"`

	// The form also renders a nested "new person" subform; Rails rejects the
	// submission unless these are present.
	NewFirstName     string `form:"role[new_person][first_name]"`
	NewLastName      string `form:"role[new_person][last_name]"`
	NewNickname      string `form:"role[new_person][nickname]"`
	NewCompanyName   string `form:"role[new_person][company_name]"`
	NewCompany       string `form:"role[new_person][company]"`
	NewEmail         string `form:"role[new_person][email]"`
	NewPrivacyPolicy string `form:"role[new_person][privacy_policy_accepted]"`
}

type eventRoleForm struct {
	Type     string `form:"event_role[type]"`
	PersonID string `form:"event_role[person_id]"`
	Person   string `form:"event_role[person]"`
	Label    string `form:"event_role[label]"`
	Button   string `form:"button"`
}

const participantRoleType = "Event::Role::Participant"
