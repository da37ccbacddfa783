package hitobito

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventService_FindParticipationPrefersActiveRole(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/roles", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "300", r.URL.Query().Get("filter[group_id][eq]"))
		writeJSON(w, http.StatusOK, rolesJSON(roleJSON("70", "2020-01-01"), roleJSON("71", "")))
	})
	svc := NewEventService(newTestClient(t, mux))

	id, ok, err := svc.FindParticipationID(context.Background(), "42", "300", FindParticipationOptions{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "71", id)
}

func TestEventService_FindParticipationFallsBackToFrontend(t *testing.T) {
	frontendCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/roles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rolesJSON())
	})
	mux.HandleFunc("GET /groups/5/events/300/participations.json", func(w http.ResponseWriter, r *http.Request) {
		frontendCalls++
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("returning"))
		assert.Equal(t, "1", q.Get("page"))
		assert.Equal(t, "Anna Muster", q.Get("q"))
		writeJSON(w, http.StatusOK, `{"event_participations":[
			{"id":"900","links":{"person":"41"}},
			{"id":901,"links":{"person":42}}
		]}`)
	})
	svc := NewEventService(newTestClient(t, mux))

	id, ok, err := svc.FindParticipationID(context.Background(), "42", "300", FindParticipationOptions{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.Equal(t, 0, frontendCalls, "fallback needs both group and name")

	id, ok, err = svc.FindParticipationID(context.Background(), "42", "300", FindParticipationOptions{GroupID: "5", SearchName: "Anna Muster"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "901", id)
}

func TestEventService_AddPersonToEvent(t *testing.T) {
	var posted url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("GET /groups/5/events/300/roles/new", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, participantRoleType, r.URL.Query().Get("event_role[type]"))
		writeHTML(w, http.StatusOK, railsForm("/groups/5/events/300/roles", ""))
	})
	mux.HandleFunc("POST /groups/5/events/300/roles", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		posted, _ = url.ParseQuery(string(b))
		http.Redirect(w, r, "/groups/5/events/300/participations/1234", http.StatusFound)
	})
	mux.HandleFunc("GET /groups/5/events/300/participations/1234", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, http.StatusOK, "<html>participation</html>")
	})
	svc := NewEventService(newTestClient(t, mux))

	id, ok, err := svc.AddPersonToEvent(context.Background(), "42", "Anna Muster", "5", "300")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1234", id)
	assert.Equal(t, participantRoleType, posted.Get("event_role[type]"))
	assert.Equal(t, "42", posted.Get("event_role[person_id]"))
	assert.Equal(t, "Anna Muster", posted.Get("event_role[person]"))
}

func TestEventService_AddPersonToEventIDFromBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /groups/5/events/300/roles/new", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, http.StatusOK, railsForm("/groups/5/events/300/roles", ""))
	})
	mux.HandleFunc("POST /groups/5/events/300/roles", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, http.StatusOK, `<turbo-stream><a href="/groups/5/events/300/participations/77">Anna</a></turbo-stream>`)
	})
	svc := NewEventService(newTestClient(t, mux))

	id, ok, err := svc.AddPersonToEvent(context.Background(), "42", "Anna Muster", "5", "300")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "77", id)
}

func TestEventService_UpdateParticipation(t *testing.T) {
	var posted url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events/300/participations/77/edit", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, http.StatusOK, railsForm("/events/300/participations/77", `
<input type="text" name="participation[answer_10]" value="old">
<textarea name="participation[internal_comment]">first note</textarea>
<input type="text" name="participation[additional_information]" value="vegetarian">`))
	})
	mux.HandleFunc("POST /events/300/participations/77", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		posted, _ = url.ParseQuery(string(b))
		writeHTML(w, http.StatusOK, "<html>ok</html>")
	})
	svc := NewEventService(newTestClient(t, mux))

	err := svc.UpdateParticipation(context.Background(), "77", "300", ParticipationUpdate{
		Answers: map[string]Answer{
			"10": SingleAnswer("new"),
			"11": MultiAnswer("a", "b"),
		},
		InternalComment: "registered via workflow",
	})
	require.NoError(t, err)

	assert.Equal(t, "patch", posted.Get("_method"))
	assert.Equal(t, []string{"new"}, posted["participation[answer_10]"])
	assert.Equal(t, []string{"a", "b"}, posted["participation[answer_11][]"])
	assert.Equal(t, "vegetarian", posted.Get("participation[additional_information]"))

	comment := posted.Get(internalCommentField)
	lines := strings.Split(comment, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "first note", lines[0])
	assert.Equal(t, "[2025-03-14T09:30:00Z] registered via workflow", lines[1])
}
