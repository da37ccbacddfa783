package hitobito

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupService_CheckActiveRole(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/roles", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42", r.URL.Query().Get("filter[person_id][eq]"))
		assert.Equal(t, "7", r.URL.Query().Get("filter[group_id][eq]"))
		writeJSON(w, http.StatusOK, rolesJSON(roleJSON("1", "2025-03-13"), roleJSON("2", "2025-03-14")))
	})
	svc := NewGroupService(newTestClient(t, mux))

	id, ok, err := svc.CheckActiveRole(context.Background(), "42", "7")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", id, "a role ending today is still active")
}

func TestGroupService_AddPersonIsIdempotent(t *testing.T) {
	var posts atomic.Int32
	var active atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/roles", func(w http.ResponseWriter, r *http.Request) {
		if active.Load() {
			writeJSON(w, http.StatusOK, rolesJSON(roleJSON("11", "")))
			return
		}
		writeJSON(w, http.StatusOK, rolesJSON())
	})
	mux.HandleFunc("GET /groups/7/roles/new", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, http.StatusOK, railsForm("/groups/7/roles", `<input type="hidden" name="role[group_id]" value="7">`))
	})
	mux.HandleFunc("POST /groups/7/roles", func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		active.Store(true)
		http.Redirect(w, r, "/groups/7/people", http.StatusFound)
	})
	mux.HandleFunc("GET /groups/7/people", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, http.StatusOK, `<html><div class="alert alert-success">Role created</div></html>`)
	})
	svc := NewGroupService(newTestClient(t, mux))

	for i := 0; i < 3; i++ {
		ok, err := svc.AddPerson(context.Background(), "42", "7", "Group::Member", AddPersonOptions{})
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, int32(1), posts.Load())
}

func TestGroupService_AddPersonFormFields(t *testing.T) {
	var posted url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/roles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rolesJSON(roleJSON("3", "2024-01-01")))
	})
	mux.HandleFunc("GET /groups/7/roles/new", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, http.StatusOK, railsForm("/groups/7/roles", `<input type="hidden" name="role[label]" value="prefilled">`))
	})
	mux.HandleFunc("POST /groups/7/roles", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		posted, _ = url.ParseQuery(string(b))
		writeHTML(w, http.StatusOK, "<html>ok</html>")
	})
	svc := NewGroupService(newTestClient(t, mux))

	ok, err := svc.AddPerson(context.Background(), "42", "7", "Group::ExternalRole", AddPersonOptions{
		EndOn:      "2025-04-13",
		PersonName: "Anna Muster",
	})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "42", posted.Get("role[person_id]"))
	assert.Equal(t, "Anna Muster", posted.Get("role[person]"))
	assert.Equal(t, "7", posted.Get("role[group_id]"))
	assert.Equal(t, "Group::ExternalRole", posted.Get("role[type]"))
	assert.Equal(t, []string{""}, posted["role[label]"])
	assert.Equal(t, "14.03.2025", posted.Get("role[start_on]"))
	assert.Equal(t, "13.04.2025", posted.Get("role[end_on]"))
	assert.Equal(t, "0", posted.Get("role[new_person][company]"))
	assert.Equal(t, "1", posted.Get("role[new_person][privacy_policy_accepted]"))
	assert.Contains(t, posted, "role[new_person][first_name]")
	assert.Equal(t, "form-token", posted.Get("authenticity_token"))
	assert.NotContains(t, posted, "_method")
}

func TestGroupService_AddPersonValidationErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/roles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rolesJSON())
	})
	mux.HandleFunc("GET /groups/7/roles/new", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, http.StatusOK, railsForm("/groups/7/roles", ""))
	})
	mux.HandleFunc("POST /groups/7/roles", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, http.StatusUnprocessableEntity, `<html><form>
<div class="invalid-feedback">Person <b>muss</b> ausgefüllt werden</div>
<div class="form-text invalid-feedback d-block">Typ ist ungültig</div>
</form></html>`)
	})
	svc := NewGroupService(newTestClient(t, mux))

	ok, err := svc.AddPerson(context.Background(), "42", "7", "Group::Member", AddPersonOptions{})
	require.False(t, ok)
	var ferr *FormError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, http.StatusUnprocessableEntity, ferr.Status)
	assert.Equal(t, []string{"Person muss ausgefüllt werden", "Typ ist ungültig"}, ferr.ValidationErrors)
}

func TestGroupService_AddPersonPendingApproval(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/roles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rolesJSON())
	})
	mux.HandleFunc("GET /groups/7/roles/new", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, http.StatusOK, railsForm("/groups/7/roles", ""))
	})
	mux.HandleFunc("POST /groups/7/roles", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, http.StatusOK, `<html><div id="flash"><div class="alert alert-info">
Die Anfrage wurde an <a href="/groups/99">Pfadi Helfer</a> zur Freigabe gesendet.
</div></div></html>`)
	})
	c := newTestClient(t, mux)
	svc := NewGroupService(c)

	ok, err := svc.AddPerson(context.Background(), "42", "7", "Group::Member", AddPersonOptions{})
	require.False(t, ok)
	var aerr *ApprovalRequiredError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "Pfadi Helfer", aerr.GroupName)
	assert.Equal(t, c.frontend.String()+"/groups/99", aerr.GroupURL)
}

func TestGroupService_RemoveRoleAlreadyGone(t *testing.T) {
	var deletes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/roles/{id}", func(w http.ResponseWriter, r *http.Request) {
		deletes.Add(1)
		writeJSON(w, http.StatusNotFound, `{}`)
	})
	svc := NewGroupService(newTestClient(t, mux))

	ok, err := svc.RemoveRole(context.Background(), "5")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), deletes.Load())
}
