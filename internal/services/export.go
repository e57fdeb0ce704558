package services

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
	"time"
)

type LongRow struct {
	SubmissionID string
	Source       string
	Field        string
	Value        string
	SubmittedAt  string
}

// ExportLongCSV renders one row per answered field.
func ExportLongCSV(rows []LongRow) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"submission_id", "source", "field", "value", "submitted_at"})
	for _, r := range rows {
		if err := w.Write([]string{r.SubmissionID, r.Source, r.Field, r.Value, r.SubmittedAt}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportResultsCSV renders records with one column per category field,
// followed by the computed metrics in a stable order.
func ExportResultsCSV(cat *Category, records []ResultRecord) ([]byte, error) {
	metrics := metricColumns(cat, records)
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := []string{"id", "source", "owner_name", "created_at"}
	for _, f := range cat.Fields {
		header = append(header, f.Name)
	}
	for _, m := range metrics {
		header = append(header, "metric_"+m)
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, r := range records {
		row := make([]string, 0, len(header))
		row = append(row, r.ID, string(r.Source), r.OwnerName, r.CreatedAt.UTC().Format(time.RFC3339))
		for _, f := range cat.Fields {
			row = append(row, r.Answers[f.Name])
		}
		for _, m := range metrics {
			row = append(row, formatMetric(r.Metrics[m]))
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// metricColumns lists numeric answers and the primary metric first, then any
// other derived metric seen in the records, each once.
func metricColumns(cat *Category, records []ResultRecord) []string {
	seen := map[string]struct{}{}
	var cols []string
	for _, n := range append(append([]string(nil), cat.Results.Numeric...), cat.Results.Primary) {
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			cols = append(cols, n)
		}
	}
	var derived []string
	for _, r := range records {
		for name := range r.Metrics {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				derived = append(derived, name)
			}
		}
	}
	sort.Strings(derived)
	return append(cols, derived...)
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
