package jobs

import (
	"regexp"
	"strings"
)

var queueNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ParseQueue validates a single queue name.
func ParseQueue(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalidConfig("queue name is empty")
	}
	if !queueNameRe.MatchString(s) {
		return "", invalidConfig("invalid queue name %q", s)
	}
	return s, nil
}

// ParseQueueList parses comma-separated queue names, dropping duplicates.
func ParseQueueList(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, item := range strings.Split(s, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		q, err := ParseQueue(item)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out, nil
}
