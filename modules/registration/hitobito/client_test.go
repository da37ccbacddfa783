package hitobito

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_APIRequestHeaders(t *testing.T) {
	var got http.Header
	var query url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/people/42", func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		query = r.URL.Query()
		writeJSON(w, http.StatusOK, `{"data":{"id":"42","type":"people","attributes":{"first_name":"Anna"}}}`)
	})
	c := newTestClient(t, mux)

	var doc personDocument
	require.NoError(t, c.APIGet(context.Background(), "/api/people/42", url.Values{"include": {"roles"}}, &doc))

	assert.Equal(t, "secret-token", got.Get("X-TOKEN"))
	assert.Equal(t, jsonAPIContentType, got.Get("Accept"))
	assert.Equal(t, jsonAPIContentType, got.Get("Content-Type"))
	assert.Empty(t, got.Get("Cookie"), "api requests must not carry the browser session")
	assert.Equal(t, "roles", query.Get("include"))
	assert.Equal(t, "Anna", Str(doc.Data.Attributes.FirstName))
	assert.Equal(t, ID("42"), doc.Data.ID)
}

func TestClient_APIErrorStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/roles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"errors":[{"title":"boom"}]}`)
	})
	c := newTestClient(t, mux)

	err := c.APIGet(context.Background(), "/api/roles", nil, &rolesDocument{})
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusInternalServerError, herr.Status)
	assert.Equal(t, http.MethodGet, herr.Method)
	assert.Contains(t, herr.Body, "boom")
}

func TestClient_APIDeleteNotFoundIsSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/roles/9", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"errors":[]}`)
	})
	c := newTestClient(t, mux)

	require.NoError(t, c.APIDelete(context.Background(), "/api/roles/9"))
}

func TestClient_APIEmptyAndInvalidBodies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/roles/1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/roles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `not json`)
	})
	c := newTestClient(t, mux)

	out := map[string]any{"untouched": true}
	require.NoError(t, c.APIPatch(context.Background(), "/api/roles/1", map[string]any{"x": 1}, &out))
	assert.Equal(t, map[string]any{"untouched": true}, out)

	err := c.APIGet(context.Background(), "/api/roles", nil, &rolesDocument{})
	require.Error(t, err)
	var herr *HTTPError
	assert.False(t, errors.As(err, &herr))
}

func TestClient_FrontendCookiesCarryOver(t *testing.T) {
	var cookies []string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /first", func(w http.ResponseWriter, r *http.Request) {
		cookies = append(cookies, r.Header.Get("Cookie"))
		http.SetCookie(w, &http.Cookie{Name: "_hitobito_session", Value: "rotated", Path: "/"})
		writeHTML(w, http.StatusOK, "<html></html>")
	})
	mux.HandleFunc("GET /second", func(w http.ResponseWriter, r *http.Request) {
		cookies = append(cookies, r.Header.Get("Cookie"))
		assert.Equal(t, defaultUserAgent, r.Header.Get("User-Agent"))
		writeHTML(w, http.StatusOK, "<html></html>")
	})
	c := newTestClient(t, mux)

	_, err := c.HTTPGet(context.Background(), "/first", RequestOptions{})
	require.NoError(t, err)
	_, err = c.HTTPGet(context.Background(), "/second", RequestOptions{})
	require.NoError(t, err)

	require.Len(t, cookies, 2)
	assert.Contains(t, cookies[0], "_hitobito_session=abc")
	assert.Contains(t, cookies[0], "remember_person_token=xyz")
	assert.Contains(t, cookies[1], "_hitobito_session=rotated")
}

func TestClient_FrontendJSONSessionExpired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /full.json", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/users/sign_in", http.StatusFound)
	})
	mux.HandleFunc("GET /users/sign_in", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, http.StatusOK, `<!DOCTYPE html><html><body><form action="/users/sign_in"></form></body></html>`)
	})
	c := newTestClient(t, mux)

	var res searchResults
	err := c.frontendJSON(context.Background(), "/full.json", url.Values{"q": {"x"}}, &res)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestClient_SubmitRailsForm(t *testing.T) {
	var posted url.Values
	var headers http.Header
	mux := http.NewServeMux()
	mux.HandleFunc("GET /things/1/edit", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, http.StatusOK, railsForm("/things/1", `
<input type="text" name="thing[name]" value="old">
<input type="text" name="thing[color]" value="red">
<input type="checkbox" name="thing[tags][]" value="a" checked>
<input type="checkbox" name="thing[tags][]" value="b">
<textarea name="thing[notes]">keep me</textarea>
<select name="thing[size]"><option value="s">S</option><option value="m" selected>M</option></select>`))
	})
	mux.HandleFunc("POST /things/1", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		posted, _ = url.ParseQuery(string(body))
		headers = r.Header.Clone()
		http.Redirect(w, r, "/things/1", http.StatusSeeOther)
	})
	mux.HandleFunc("GET /things/1", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, http.StatusOK, "<html>saved</html>")
	})
	c := newTestClient(t, mux)

	resp, err := c.SubmitRailsForm(context.Background(), FormSubmission{
		GetFormURL: "/things/1/edit",
		PostURL:    "/things/1",
		Method:     "PATCH",
		FormData: url.Values{
			"thing[name]":   {"new"},
			"thing[tags][]": {"c"},
		},
		ExtractExtraFields: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "patch", posted.Get("_method"))
	assert.Equal(t, "form-token", posted.Get("authenticity_token"))
	assert.Equal(t, []string{"new"}, posted["thing[name]"])
	assert.Equal(t, "red", posted.Get("thing[color]"))
	assert.Equal(t, []string{"a", "c"}, posted["thing[tags][]"])
	assert.Equal(t, "keep me", posted.Get("thing[notes]"))
	assert.Equal(t, "m", posted.Get("thing[size]"))
	assert.NotContains(t, posted, "q")
	assert.NotContains(t, posted, "button")

	assert.Equal(t, "meta-token", headers.Get("X-CSRF-Token"))
	assert.NotEmpty(t, headers.Get("X-Turbo-Request-Id"))
	assert.Contains(t, headers.Get("Referer"), "/things/1/edit")
	assert.Equal(t, formContentType, headers.Get("Content-Type"))

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, resp.FinalURL, "/things/1")
	assert.Equal(t, "<html>saved</html>", resp.Body)
}

func TestClient_SubmitRailsFormFetchFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /things/new", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, http.StatusForbidden, "<html>no</html>")
	})
	c := newTestClient(t, mux)

	_, err := c.SubmitRailsForm(context.Background(), FormSubmission{GetFormURL: "/things/new", PostURL: "/things"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
