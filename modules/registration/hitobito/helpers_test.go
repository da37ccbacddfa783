package hitobito

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{
		BaseURL:       srv.URL,
		APIToken:      "secret-token",
		FrontendURL:   srv.URL,
		BrowserCookie: "_hitobito_session=abc; remember_person_token=xyz",
		Timeout:       5 * time.Second,
		Now:           func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func railsForm(action, fields string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta name="csrf-token" content="meta-token"></head>
<body>
<form action="/search" method="get"><input name="q" value=""></form>
<form action="%s" method="post">
<input type="hidden" name="authenticity_token" value="form-token">
%s
<button type="submit" name="button" value="">Save</button>
</form>
</body></html>`, action, fields)
}

func rolesJSON(roles ...string) string {
	out := `{"data":[`
	for i, r := range roles {
		if i > 0 {
			out += ","
		}
		out += r
	}
	return out + `]}`
}

func roleJSON(id, endOn string) string {
	end := "null"
	if endOn != "" {
		end = `"` + endOn + `"`
	}
	return fmt.Sprintf(`{"id":"%s","type":"roles","attributes":{"person_id":42,"group_id":7,"type":"Group::Member","end_on":%s}}`, id, end)
}
