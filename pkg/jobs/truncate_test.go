package jobs

import (
	"errors"
	"testing"
)

func TestTruncateError(t *testing.T) {
	t.Parallel()

	if got := truncateError(nil, 10); got != "" {
		t.Fatalf("expected empty for nil error, got %q", got)
	}

	err := errors.New("hello world")
	if got := truncateError(err, 5); got != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}
}

func TestTruncateString_KeepsRunesWhole(t *testing.T) {
	t.Parallel()

	// "ü" is two bytes; cutting inside it must drop the partial rune.
	if got := truncateString("Müller", 2); got != "M" {
		t.Fatalf("expected %q, got %q", "M", got)
	}
	if got := truncateString("Müller", 0); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
