package hitobito

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersonService_GetDetails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/people/1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":{"id":"1","type":"people","attributes":{
			"first_name":"Anna","last_name":"Muster","nickname":null,"email":"anna@example.org",
			"birthday":"2001-05-06","zip":"8000","town":"Zürich","address":"Weg 1"}}}`)
	})
	mux.HandleFunc("GET /api/people/2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, `{}`)
	})
	mux.HandleFunc("GET /api/people/3", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{}`)
	})
	mux.HandleFunc("GET /api/people/4", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, `{}`)
	})
	svc := NewPersonService(newTestClient(t, mux))
	ctx := context.Background()

	res, err := svc.GetDetails(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, res.Attributes)
	assert.Equal(t, DetailsOK, res.Failure)
	assert.Equal(t, "Anna", Str(res.Attributes.FirstName))
	assert.Nil(t, res.Attributes.Nickname)
	assert.Equal(t, "8000", Str(res.Attributes.Zip))

	res, err = svc.GetDetails(ctx, "2")
	require.NoError(t, err)
	assert.True(t, res.Forbidden())
	assert.Nil(t, res.Attributes)

	res, err = svc.GetDetails(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, DetailsNotFound, res.Failure)

	_, err = svc.GetDetails(ctx, "4")
	require.Error(t, err)
}

func TestPersonService_Search(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /full.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Cookie"), "_hitobito_session=abc")
		switch r.URL.Query().Get("q") {
		case "anna":
			writeJSON(w, http.StatusOK, `[{"id":1,"label":"Anna Muster"},{"id":"2","text":"Anna Beispiel"}]`)
		default:
			writeJSON(w, http.StatusOK, `{"people":[{"id":3,"label":"Bea Test"}]}`)
		}
	})
	svc := NewPersonService(newTestClient(t, mux))

	got, err := svc.Search(context.Background(), "anna")
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{ID: "1", Label: "Anna Muster"}, {ID: "2", Label: "Anna Beispiel"}}, got)

	got, err = svc.Search(context.Background(), "bea")
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{ID: "3", Label: "Bea Test"}}, got)

	got, err = svc.Search(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPersonService_LookupByEmail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/people", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("filter[email]") == "anna@example.org" {
			writeJSON(w, http.StatusOK, `{"data":[{"id":"1","attributes":{"first_name":"Anna","last_name":"Muster"}}]}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"data":[]}`)
	})
	svc := NewPersonService(newTestClient(t, mux))

	c, err := svc.LookupByEmail(context.Background(), "anna@example.org")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, Candidate{ID: "1", Label: "Anna Muster"}, *c)

	c, err = svc.LookupByEmail(context.Background(), "nobody@example.org")
	require.NoError(t, err)
	assert.Nil(t, c)
}
