package hitobito

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Answer is a questionnaire answer: a single text value or the selected
// options of a multi-select. It decodes from a JSON string or string array.
type Answer struct {
	Values []string
	Multi  bool
}

func SingleAnswer(v string) Answer {
	return Answer{Values: []string{v}}
}

func MultiAnswer(vs ...string) Answer {
	return Answer{Values: vs, Multi: true}
}

func (a Answer) String() string {
	return strings.Join(a.Values, ", ")
}

func (a *Answer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var vs []string
		if err := json.Unmarshal(b, &vs); err != nil {
			return err
		}
		*a = MultiAnswer(vs...)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*a = Answer{}
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*a = SingleAnswer(v)
	return nil
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Multi {
		if a.Values == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.Values)
	}
	return json.Marshal(a.String())
}
