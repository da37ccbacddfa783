package blockedjob

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/wI2L/jsondiff"
)

// Effect is a side effect the lifecycle asks the caller to carry out.
type Effect interface {
	isEffect()
}

// Requeue starts the workflow again with the merged input.
type Requeue struct {
	Slug  string
	Input json.RawMessage
}

type DeleteOriginal struct {
	JobID uuid.UUID
}

type DeleteBlockedJob struct {
	ID uuid.UUID
}

type NoOp struct{}

func (Requeue) isEffect()          {}
func (DeleteOriginal) isEffect()   {}
func (DeleteBlockedJob) isEffect() {}
func (NoOp) isEffect()             {}

// Transition returns the effects of moving doc from previous to next. Only a
// pending record leaving pending has effects; a resolved record is requeued
// with its resolution data merged into the original input.
func Transition(previous, next Status, doc BlockedJob) ([]Effect, error) {
	if previous != StatusPending {
		return []Effect{NoOp{}}, nil
	}
	switch next {
	case StatusResolved:
		merged, err := MergeInput(doc.Input, doc.ResolutionData)
		if err != nil {
			return nil, err
		}
		return []Effect{
			Requeue{Slug: doc.WorkflowSlug, Input: merged},
			DeleteOriginal{JobID: doc.OriginalJobID},
			DeleteBlockedJob{ID: doc.ID},
		}, nil
	case StatusRejected:
		return []Effect{
			DeleteOriginal{JobID: doc.OriginalJobID},
			DeleteBlockedJob{ID: doc.ID},
		}, nil
	}
	return []Effect{NoOp{}}, nil
}

// MergeInput overwrites the top-level keys of input with those of
// resolution. Nested values are replaced whole and null is stored as null.
func MergeInput(input, resolution json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(input)) == 0 {
		input = json.RawMessage("{}")
	}
	if isEmpty(resolution) {
		return input, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(resolution, &fields); err != nil {
		return nil, errors.Wrap(ErrInvalidResolution, err.Error())
	}
	if len(fields) == 0 {
		return input, nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ops := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		ops = append(ops, map[string]any{
			"op":    "add",
			"path":  "/" + pointerEscaper.Replace(k),
			"value": fields[k],
		})
	}
	raw, err := json.Marshal(ops)
	if err != nil {
		return nil, errors.Wrap(err, "encode resolution patch")
	}
	patch, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode resolution patch")
	}
	merged, err := patch.Apply(input)
	if err != nil {
		return nil, errors.Wrap(err, "merge resolution data")
	}
	return merged, nil
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

// ValidateResolution accepts an empty value or a JSON object.
func ValidateResolution(resolution json.RawMessage) error {
	if isEmpty(resolution) {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(resolution, &obj); err != nil {
		return errors.Wrap(ErrInvalidResolution, err.Error())
	}
	return nil
}

// Diff describes how the input changed as a JSON Patch (RFC 6902).
func Diff(before, after json.RawMessage) (jsondiff.Patch, error) {
	if len(bytes.TrimSpace(before)) == 0 {
		before = json.RawMessage("{}")
	}
	patch, err := jsondiff.CompareJSON(before, after)
	if err != nil {
		return nil, errors.Wrap(err, "diff input")
	}
	return patch, nil
}

func isEmpty(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
