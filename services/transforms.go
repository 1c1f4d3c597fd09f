// backend/services/transforms.go
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"

	"github.com/parcelview/propertydata/backend/models"
	"github.com/parcelview/propertydata/backend/utils"
)

// RawPage is one fetched page before transformation: either decoded JSON
// rows or raw CSV bytes (header included), depending on the dataset's
// source format.
type RawPage struct {
	Rows []map[string]any
	CSV  []byte
}

// Count returns the number of source rows in the page.
func (p RawPage) Count() int {
	if p.Rows != nil {
		return len(p.Rows)
	}
	if len(p.CSV) == 0 {
		return 0
	}
	lines := bytes.Count(p.CSV, []byte("\n"))
	if p.CSV[len(p.CSV)-1] != '\n' {
		lines++
	}
	if lines <= 1 { // header only
		return 0
	}
	return lines - 1
}

// TransformFunc maps one raw page to normalized records. Rows it cannot key
// are dropped; the pipeline counts the difference into records_failed.
type TransformFunc func(cfg *models.DatasetConfig, page RawPage) ([]models.SourceRecord, error)

// GenericJSONTransform is the default transform: it keys each row by the
// configured primary key fields and keeps the full row as the payload.
func GenericJSONTransform(cfg *models.DatasetConfig, page RawPage) ([]models.SourceRecord, error) {
	if page.Rows == nil {
		return nil, fmt.Errorf("dataset %s is configured as json but the page carries no rows", cfg.DatasetID)
	}

	records := make([]models.SourceRecord, 0, len(page.Rows))
	for _, row := range page.Rows {
		key := naturalKey(row, cfg.PrimaryKeyFields)
		if key == "" {
			continue // unkeyable row, counted as failed by the pipeline
		}
		payload, err := json.Marshal(row)
		if err != nil {
			continue
		}
		records = append(records, models.SourceRecord{
			Key:        key,
			RecordDate: parseSocrataTime(stringField(row, cfg.DateField)),
			Payload:    payload,
		})
	}
	return records, nil
}

// annualizedSale is the typed shape of the DOF annualized sales extract,
// which is only reliable as CSV. Headers are the Socrata API field names.
type annualizedSale struct {
	Borough      string `csv:"borough" json:"borough"`
	Neighborhood string `csv:"neighborhood" json:"neighborhood"`
	Block        string `csv:"block" json:"block"`
	Lot          string `csv:"lot" json:"lot"`
	Address      string `csv:"address" json:"address"`
	ZipCode      string `csv:"zip_code" json:"zip_code"`
	SalePrice    string `csv:"sale_price" json:"sale_price"`
	SaleDate     string `csv:"sale_date" json:"sale_date"`
}

// AnnualizedSalesTransform decodes the CSV sales extract into typed records
// keyed by borough/block/lot/sale date, normalizing the numeric borough code.
func AnnualizedSalesTransform(cfg *models.DatasetConfig, page RawPage) ([]models.SourceRecord, error) {
	if len(page.CSV) == 0 {
		return nil, nil
	}

	var sales []annualizedSale
	if err := csvutil.Unmarshal(page.CSV, &sales); err != nil {
		return nil, fmt.Errorf("failed to decode sales CSV for %s: %w", cfg.DatasetID, err)
	}

	records := make([]models.SourceRecord, 0, len(sales))
	for _, sale := range sales {
		if sale.Block == "" || sale.Lot == "" || sale.SaleDate == "" {
			continue
		}
		sale.Borough = utils.NormalizeBorough(sale.Borough)
		payload, err := json.Marshal(sale)
		if err != nil {
			continue
		}
		records = append(records, models.SourceRecord{
			Key:        strings.Join([]string{sale.Borough, sale.Block, sale.Lot, sale.SaleDate}, ":"),
			RecordDate: parseSocrataTime(sale.SaleDate),
			Payload:    payload,
		})
	}
	return records, nil
}

// naturalKey joins the configured key fields with ":". Empty when any key
// field is missing, which marks the row undeduplicatable.
func naturalKey(row map[string]any, keyFields []string) string {
	if len(keyFields) == 0 {
		return ""
	}
	parts := make([]string, 0, len(keyFields))
	for _, field := range keyFields {
		v := stringField(row, field)
		if v == "" {
			return ""
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, ":")
}

func stringField(row map[string]any, field string) string {
	if field == "" {
		return ""
	}
	switch v := row[field].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// socrataTimeLayouts covers the timestamp shapes seen across the portal's
// datasets; MM/DD/YYYY shows up in the DOF extracts.
var socrataTimeLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
}

func parseSocrataTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range socrataTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
