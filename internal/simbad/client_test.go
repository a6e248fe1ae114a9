package simbad

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryObjectIDs_Success(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sync", r.URL.Path)
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		assert.Contains(t, r.Header.Get("User-Agent"), "gaiacurves")

		q := r.URL.Query()
		assert.Equal(t, "doQuery", q.Get("REQUEST"))
		assert.Equal(t, "ADQL", q.Get("LANG"))
		assert.Equal(t, "json", q.Get("FORMAT"))
		assert.Contains(t, q.Get("QUERY"), "WHERE id1.id = 'NQ Dra'")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"metadata": [{"name": "id", "datatype": "char"}],
			"data": [
				["V* NQ Dra"],
				["Gaia DR2 2154100169676165120"],
				[null],
				["  2MASS J18240779+5557367  "],
				["Gaia DR3 2154100169676165120"]
			]
		}`))
	}))
	defer mockServer.Close()

	client := NewClient(mockServer.URL)
	ids, err := client.QueryObjectIDs(context.Background(), "NQ Dra")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"V* NQ Dra",
		"Gaia DR2 2154100169676165120",
		"2MASS J18240779+5557367",
		"Gaia DR3 2154100169676165120",
	}, ids)
}

func TestQueryObjectIDs_UnknownNameIsEmpty(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"metadata": [{"name": "id"}], "data": []}`))
	}))
	defer mockServer.Close()

	ids, err := NewClient(mockServer.URL).QueryObjectIDs(context.Background(), "gibberish")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestQueryObjectIDs_EscapesQuotes(t *testing.T) {
	var gotQuery string
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("QUERY")
		_, _ = w.Write([]byte(`{"metadata": [], "data": []}`))
	}))
	defer mockServer.Close()

	_, err := NewClient(mockServer.URL).QueryObjectIDs(context.Background(), "Barnard's Star")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(gotQuery, "'Barnard''s Star'"), gotQuery)
}

func TestQueryObjectIDs_EmptyName(t *testing.T) {
	_, err := NewClient(DefaultBaseURL).QueryObjectIDs(context.Background(), "  ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be empty")
}

func TestQueryObjectIDs_ServerError(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer mockServer.Close()

	_, err := NewClient(mockServer.URL).QueryObjectIDs(context.Background(), "NQ Dra")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "maintenance", statusErr.Body)
}

func TestQueryObjectIDs_MalformedJSON(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<VOTABLE/>`))
	}))
	defer mockServer.Close()

	_, err := NewClient(mockServer.URL).QueryObjectIDs(context.Background(), "NQ Dra")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse object ids")
}

func TestQueryObjectIDs_ColumnLookupByName(t *testing.T) {
	resp := tapResponse{
		Metadata: []Column{{Name: "oidref"}, {Name: "ID"}},
		Data: [][]any{
			{float64(1), "Gaia DR2 1"},
			{float64(1)},
		},
	}
	assert.Equal(t, []string{"Gaia DR2 1"}, resp.identifiers())
}
