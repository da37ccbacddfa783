package jobs

import (
	"errors"
	"testing"
)

func TestParseQueueList(t *testing.T) {
	t.Parallel()

	got, err := ParseQueueList(" default, registration ,default,")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "default" || got[1] != "registration" {
		t.Fatalf("unexpected queues: %v", got)
	}

	if got, err := ParseQueueList(""); err != nil || got != nil {
		t.Fatalf("expected nil for empty input, got %v %v", got, err)
	}
}

func TestParseQueue_Invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "  ", "bad queue", "drop;table"} {
		if _, err := ParseQueue(in); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%q: expected ErrInvalidConfig, got %v", in, err)
		}
	}
}
