// backend/socrata/page_probe.go
package socrata

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// rowCountRegex matches the advertised row count on a dataset landing page,
// e.g. "5,387,291".
var rowCountRegex = regexp.MustCompile(`^[\d,]+$`)

// ScrapeRowCount is the fallback probe: when the count API is unavailable
// it scrapes the dataset landing page's metadata block for the advertised
// "Rows" figure. The portal publishes this alongside the update cadence, so
// it lags the API count slightly; good enough for a staleness ratio.
func (c *Client) ScrapeRowCount(ctx context.Context, datasetID string) (int64, error) {
	pageURL := fmt.Sprintf("%s/d/%s", c.baseURL, datasetID)
	log.Printf("Socrata: Falling back to landing-page row count scrape for %s (%s)\n", datasetID, pageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProbeUnavailable, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get %s: %v", ErrProbeUnavailable, pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d from %s", ErrProbeUnavailable, resp.StatusCode, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to parse HTML from %s: %v", ErrProbeUnavailable, pageURL, err)
	}

	count, found := findRowCount(doc, c.selector)
	if !found {
		return 0, fmt.Errorf("%w: no row count found on %s (selector %q)", ErrProbeUnavailable, pageURL, c.selector)
	}
	return count, nil
}

// findRowCount walks the metadata label/value pairs looking for a "Rows"
// label and parses its comma-grouped value.
func findRowCount(doc *goquery.Document, selector string) (int64, bool) {
	var count int64
	var found bool
	doc.Find(selector).EachWithBreak(func(_ int, pair *goquery.Selection) bool {
		label := strings.TrimSpace(pair.Find(".metadata-pair-key").Text())
		if !strings.EqualFold(label, "Rows") {
			return true
		}
		value := strings.TrimSpace(pair.Find(".metadata-pair-value").Text())
		if !rowCountRegex.MatchString(value) {
			return true
		}
		parsed, err := strconv.ParseInt(strings.ReplaceAll(value, ",", ""), 10, 64)
		if err != nil {
			return true
		}
		count, found = parsed, true
		return false
	})
	return count, found
}
