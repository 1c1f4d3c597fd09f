// backend/socrata/page_probe_test.go
package socrata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const landingPageHTML = `<html><body>
<div class="metadata-section">
  <div class="metadata-pair">
    <div class="metadata-pair-key">Updated</div>
    <div class="metadata-pair-value">August 27, 2026</div>
  </div>
  <div class="metadata-pair">
    <div class="metadata-pair-key">Rows</div>
    <div class="metadata-pair-value">5,387,291</div>
  </div>
</div>
</body></html>`

func TestScrapeRowCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/d/abcd-1234", r.URL.Path)
		w.Write([]byte(landingPageHTML))
	}))
	defer srv.Close()

	count, err := testClient(srv.URL).ScrapeRowCount(context.Background(), "abcd-1234")
	require.NoError(t, err)
	assert.Equal(t, int64(5387291), count)
}

func TestScrapeRowCountMissingMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>nothing here</p></body></html>`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ScrapeRowCount(context.Background(), "abcd-1234")
	assert.ErrorIs(t, err, ErrProbeUnavailable)
}

func TestScrapeRowCountUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ScrapeRowCount(context.Background(), "abcd-1234")
	assert.ErrorIs(t, err, ErrProbeUnavailable)
}

func TestScrapeRowCountIgnoresNonNumericValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
<div class="metadata-pair">
  <div class="metadata-pair-key">Rows</div>
  <div class="metadata-pair-value">about 5 million</div>
</div>
</body></html>`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ScrapeRowCount(context.Background(), "abcd-1234")
	assert.ErrorIs(t, err, ErrProbeUnavailable)
}
