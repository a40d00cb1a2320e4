package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(version int64) *domain.AvailabilitySnapshot {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return &domain.AvailabilitySnapshot{
		UnitID: 12,
		From:   from,
		To:     from.AddDate(0, 1, 0),
		Ranges: []domain.DateRange{
			{Start: from, End: from.AddDate(0, 0, 3)},
			{Start: from.AddDate(0, 0, 10), End: from.AddDate(0, 0, 11)},
		},
		Version: version,
	}
}

func TestSolrIndex_PushAvailability(t *testing.T) {
	var updates [][]map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/solr/units/get":
			assert.Equal(t, "unit-12", r.URL.Query().Get("id"))
			_, _ = io.WriteString(w, `{"doc":{"availability_version":5}}`)
		case "/solr/units/update":
			var docs []map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&docs))
			updates = append(updates, docs)
			_, _ = io.WriteString(w, `{"responseHeader":{"status":0}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	idx := NewSolrIndex(srv.URL+"/solr/", "units", time.Second)
	require.NoError(t, idx.PushAvailability(context.Background(), snapshot(9)))

	require.Len(t, updates, 1)
	doc := updates[0][0]
	assert.Equal(t, "unit-12", doc["id"])
	assert.Equal(t, map[string]interface{}{"set": []interface{}{"[2024-06-01 TO 2024-06-03]", "[2024-06-11 TO 2024-06-11]"}}, doc["available_ranges"])
	assert.Equal(t, map[string]interface{}{"set": float64(4)}, doc["available_days"])
}

func TestSolrIndex_SkipsOlderSnapshot(t *testing.T) {
	updated := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/units/get" {
			_, _ = io.WriteString(w, `{"doc":{"availability_version":10}}`)
			return
		}
		updated = true
	}))
	defer srv.Close()

	idx := NewSolrIndex(srv.URL, "units", time.Second)
	require.NoError(t, idx.PushAvailability(context.Background(), snapshot(9)))
	assert.False(t, updated)
}

func TestSolrIndex_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/units/get" {
			_, _ = io.WriteString(w, `{"doc":null}`)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"msg":"undefined field available_ranges","code":400}}`)
	}))
	defer srv.Close()

	idx := NewSolrIndex(srv.URL, "units", time.Second)
	err := idx.PushAvailability(context.Background(), snapshot(1))
	assert.ErrorContains(t, err, "solr returned status 400")

	srv.Close()
	err = idx.PushAvailability(context.Background(), snapshot(1))
	assert.ErrorContains(t, err, "error executing request")
}

func TestSolrIndex_ComparesFullVersionPrecision(t *testing.T) {
	updated := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/units/get" {
			_, _ = io.WriteString(w, `{"doc":{"availability_version":1718000000000000001}}`)
			return
		}
		updated = true
		_, _ = io.WriteString(w, `{"responseHeader":{"status":0}}`)
	}))
	defer srv.Close()

	idx := NewSolrIndex(srv.URL, "units", time.Second)
	require.NoError(t, idx.PushAvailability(context.Background(), snapshot(1718000000000000002)))
	assert.True(t, updated)
}
