// backend/socrata/client_test.go
package socrata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		maxTries:   3,
		selector:   ".metadata-pair",
	}
}

func TestCountRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/resource/abcd-1234.json", r.URL.Path)
		assert.Equal(t, "count(*) as count", r.URL.Query().Get("$select"))
		w.Write([]byte(`[{"count":"5387291"}]`))
	}))
	defer srv.Close()

	count, err := testClient(srv.URL).CountRows(context.Background(), "abcd-1234")
	require.NoError(t, err)
	assert.Equal(t, int64(5387291), count)
}

func TestCountRowsMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CountRows(context.Background(), "abcd-1234")
	assert.ErrorIs(t, err, ErrProbeUnavailable)
}

func TestGetRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"count":"10"}]`))
	}))
	defer srv.Close()

	count, err := testClient(srv.URL).CountRows(context.Background(), "abcd-1234")
	require.NoError(t, err)
	assert.Equal(t, int64(10), count)
	assert.Equal(t, int64(2), calls.Load())
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CountRows(context.Background(), "abcd-1234")
	assert.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestFetchPageQueryParams(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		assert.Equal(t, "/resource/abcd-1234.json", r.URL.Path)
		assert.Equal(t, "1000", r.URL.Query().Get("$limit"))
		assert.Equal(t, "2000", r.URL.Query().Get("$offset"))
		assert.Equal(t, "issuance_date", r.URL.Query().Get("$order"))
		assert.Equal(t, "issuance_date > '2026-07-01T00:00:00'", r.URL.Query().Get("$where"))
		w.Write([]byte(`[{"id":"1"}]`))
	}))
	defer srv.Close()

	since := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	rows, err := testClient(srv.URL).FetchPage(context.Background(), PageRequest{
		DatasetID: "abcd-1234",
		Limit:     1000,
		Offset:    2000,
		DateField: "issuance_date",
		Since:     &since,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotEmpty(t, query)
}

func TestFetchPageFullScanOmitsWhere(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("$where"))
		assert.False(t, r.URL.Query().Has("$order"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	rows, err := testClient(srv.URL).FetchPage(context.Background(), PageRequest{
		DatasetID: "abcd-1234",
		Limit:     100,
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFetchPageCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/resource/usep-8jbt.csv", r.URL.Path)
		w.Write([]byte("a,b\n1,2\n"))
	}))
	defer srv.Close()

	body, err := testClient(srv.URL).FetchPageCSV(context.Background(), PageRequest{
		DatasetID: "usep-8jbt",
		Limit:     100,
	})
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(body))
}

func TestGetSendsAppToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-token", r.Header.Get("X-App-Token"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.appToken = "secret-token"
	_, err := c.FetchPage(context.Background(), PageRequest{DatasetID: "abcd-1234", Limit: 1})
	require.NoError(t, err)
}
