// backend/socrata/client.go
package socrata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/parcelview/propertydata/backend/config"
)

// ErrProbeUnavailable reports that the remote row-count probe could not be
// completed. The scorer treats this as "unknown freshness", never as an
// error worth surfacing to the scheduler.
var ErrProbeUnavailable = errors.New("remote count probe unavailable")

// floatingTimestampLayout is Socrata's timestamp-literal format, used both
// for parsing response fields and for $where comparisons.
const floatingTimestampLayout = "2006-01-02T15:04:05"

// PageRequest describes one page of a watermark-filtered dataset fetch.
type PageRequest struct {
	DatasetID string
	Limit     int
	Offset    int
	DateField string     // watermark column; also the sort order
	Since     *time.Time // exclusive lower bound, nil for a full scan
}

// Client talks to a Socrata-backed open data portal (SODA 2.1).
type Client struct {
	httpClient *http.Client
	baseURL    string
	appToken   string
	maxTries   uint
	selector   string // metadata selector for the landing-page fallback probe
}

// NewClient builds a client from the socrata config section.
func NewClient(cfg config.SocrataConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.BaseURL,
		appToken:   cfg.AppToken,
		maxTries:   cfg.MaxRetries,
		selector:   cfg.RowCountSelector,
	}
}

// CountRows probes the live record count of a dataset.
func (c *Client) CountRows(ctx context.Context, datasetID string) (int64, error) {
	params := url.Values{}
	params.Set("$select", "count(*) as count")

	body, err := c.get(ctx, c.resourceURL(datasetID, "json"), params)
	if err != nil {
		return 0, fmt.Errorf("%w: count query for %s: %v", ErrProbeUnavailable, datasetID, err)
	}

	var rows []map[string]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, fmt.Errorf("%w: malformed count response for %s: %v", ErrProbeUnavailable, datasetID, err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("%w: empty count response for %s", ErrProbeUnavailable, datasetID)
	}
	count, err := strconv.ParseInt(rows[0]["count"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unparseable count %q for %s", ErrProbeUnavailable, rows[0]["count"], datasetID)
	}
	return count, nil
}

// FetchPage retrieves one JSON page ordered by the watermark column.
// A short page (fewer rows than requested) means the source is exhausted,
// which is a normal terminal condition, not an error.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) ([]map[string]any, error) {
	body, err := c.get(ctx, c.resourceURL(req.DatasetID, "json"), pageParams(req))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page for %s (offset %d): %w", req.DatasetID, req.Offset, err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode page for %s (offset %d): %w", req.DatasetID, req.Offset, err)
	}
	return rows, nil
}

// FetchPageCSV retrieves one page in CSV form (header row included) for
// datasets whose transform decodes typed CSV records.
func (c *Client) FetchPageCSV(ctx context.Context, req PageRequest) ([]byte, error) {
	body, err := c.get(ctx, c.resourceURL(req.DatasetID, "csv"), pageParams(req))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch CSV page for %s (offset %d): %w", req.DatasetID, req.Offset, err)
	}
	return body, nil
}

func (c *Client) resourceURL(datasetID, format string) string {
	return fmt.Sprintf("%s/resource/%s.%s", c.baseURL, datasetID, format)
}

func pageParams(req PageRequest) url.Values {
	params := url.Values{}
	params.Set("$limit", strconv.Itoa(req.Limit))
	params.Set("$offset", strconv.Itoa(req.Offset))
	if req.DateField != "" {
		params.Set("$order", req.DateField)
		if req.Since != nil {
			params.Set("$where", fmt.Sprintf("%s > '%s'",
				req.DateField, req.Since.UTC().Format(floatingTimestampLayout)))
		}
	}
	return params
}

// get performs a GET with bounded exponential retry. Timeouts, connection
// errors, 429 and 5xx responses are retried; anything else fails fast so a
// genuinely bad request is distinguishable from a flaky source.
func (c *Client) get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	fullURL := rawURL
	if len(params) > 0 {
		fullURL = rawURL + "?" + params.Encode()
	}

	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if c.appToken != "" {
			req.Header.Set("X-App-Token", c.appToken)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err // network errors and timeouts are retryable
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return io.ReadAll(resp.Body)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			log.Printf("Socrata: transient %d from %s, will retry.\n", resp.StatusCode, rawURL)
			return nil, fmt.Errorf("transient status %d from %s", resp.StatusCode, rawURL)
		default:
			return nil, backoff.Permanent(fmt.Errorf("status %d from %s", resp.StatusCode, rawURL))
		}
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries),
	)
}
