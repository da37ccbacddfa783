package hitobito

import (
	"fmt"
	"strings"

	"github.com/iota-uz/registrar/pkg/serrors"
)

var (
	// ErrSessionExpired means a cookie-authenticated endpoint answered with
	// an HTML page (the login form) instead of data.
	ErrSessionExpired  = serrors.NewError("HITOBITO_SESSION_EXPIRED", "registry browser session expired", "Errors.Hitobito.SessionExpired")
	ErrNoParticipation = serrors.NewError("HITOBITO_NO_PARTICIPATION", "participation id could not be determined", "")
)

// HTTPError is a non-2xx answer from the registry.
type HTTPError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("hitobito: %s failed: %d - %s at %s", e.Method, e.Status, preview(e.Body, 300), e.URL)
}

// FormError is a rejected Rails form submission.
type FormError struct {
	Status           int
	ValidationErrors []string
}

func (e *FormError) Error() string {
	msg := fmt.Sprintf("hitobito: frontend returned %d", e.Status)
	if len(e.ValidationErrors) > 0 {
		msg += ". Validation errors: " + strings.Join(e.ValidationErrors, ", ")
	}
	return msg
}

// ApprovalRequiredError means the registry accepted a role request but parked
// it for manual approval by the group's administrators.
type ApprovalRequiredError struct {
	GroupName string
	GroupURL  string
}

func (e *ApprovalRequiredError) Error() string {
	return fmt.Sprintf("hitobito: manual approval required in group %q", e.GroupName)
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
