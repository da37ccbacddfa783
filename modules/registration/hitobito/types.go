package hitobito

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ID is a registry identifier. The registry emits ids both as JSON strings
// and as numbers; both decode to the decimal string form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("hitobito: id %s is neither string nor number", string(b))
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Candidate is a search hit. Label is the display string, usually
// "First Last" with an optional nickname or email suffix.
type Candidate struct {
	ID    ID     `json:"id"`
	Label string `json:"label"`
}

func (c *Candidate) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID    ID     `json:"id"`
		Label string `json:"label"`
		Text  string `json:"text"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	c.ID = raw.ID
	c.Label = raw.Label
	if c.Label == "" {
		c.Label = raw.Text
	}
	return nil
}

// PersonAttributes mirrors the JSON:API person attributes. Every field is
// nullable in the registry.
type PersonAttributes struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Nickname  *string `json:"nickname"`
	Email     *string `json:"email"`
	Zip       *string `json:"zip"`
	Town      *string `json:"town"`
	Address   *string `json:"address"`
	Birthday  *string `json:"birthday"`
}

// Str dereferences a nullable attribute, trimming whitespace.
func Str(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

type personDocument struct {
	Data struct {
		ID         ID               `json:"id"`
		Type       string           `json:"type"`
		Attributes PersonAttributes `json:"attributes"`
	} `json:"data"`
}

type peopleDocument struct {
	Data []struct {
		ID         ID               `json:"id"`
		Attributes PersonAttributes `json:"attributes"`
	} `json:"data"`
}

type RoleAttributes struct {
	PersonID ID      `json:"person_id"`
	GroupID  ID      `json:"group_id"`
	Type     string  `json:"type"`
	Label    *string `json:"label"`
	StartOn  *string `json:"start_on"`
	EndOn    *string `json:"end_on"`
}

type RoleResource struct {
	ID         ID             `json:"id"`
	Type       string         `json:"type"`
	Attributes RoleAttributes `json:"attributes"`
}

type rolesDocument struct {
	Data []RoleResource `json:"data"`
}

// searchResults accepts a bare array or an object wrapping it under
// "results" or "people".
type searchResults []Candidate

func (s *searchResults) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var list []Candidate
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*s = list
		return nil
	}
	var wrapped struct {
		Results []Candidate `json:"results"`
		People  []Candidate `json:"people"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return err
	}
	if wrapped.Results != nil {
		*s = wrapped.Results
	} else {
		*s = wrapped.People
	}
	return nil
}

type participationsDocument struct {
	EventParticipations []struct {
		ID    ID `json:"id"`
		Links struct {
			Person ID `json:"person"`
		} `json:"links"`
	} `json:"event_participations"`
}
