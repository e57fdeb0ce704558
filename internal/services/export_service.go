package services

import (
	"context"
	"time"
)

type ExportParams struct {
	Category CategoryKey
	Format   string
	Locale   string
}

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders the visible results of a category as CSV. Admin only.
type ExportService struct {
	results *ResultsService
}

func NewExportService(results *ResultsService) *ExportService {
	return &ExportService{results: results}
}

func (s *ExportService) ExportCSV(ctx context.Context, actor Identity, params ExportParams) (*ExportResult, error) {
	cat, ok := s.results.catalog.Category(params.Category)
	if !ok {
		return nil, NewNotFoundError("unknown category")
	}
	format := params.Format
	if format == "" {
		format = "wide"
	}
	if format != "wide" && format != "long" {
		return nil, NewInvalidError("unsupported format")
	}
	if err := s.results.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	records, err := s.results.Records(ctx, cat, actor, params.Locale)
	if err != nil {
		return nil, err
	}
	var b []byte
	if format == "long" {
		b, err = ExportLongCSV(buildLongRows(cat, records))
	} else {
		b, err = ExportResultsCSV(cat, records)
	}
	if err != nil {
		return nil, err
	}
	s.results.audit(ctx, actor, "results.export", string(cat.Key), format)
	return &ExportResult{
		Filename:    string(cat.Key) + "-" + format + ".csv",
		ContentType: "text/csv; charset=utf-8",
		Data:        b,
	}, nil
}

func buildLongRows(cat *Category, records []ResultRecord) []LongRow {
	out := make([]LongRow, 0, len(records)*len(cat.Fields))
	for _, r := range records {
		for _, f := range cat.Fields {
			v, ok := r.Answers[f.Name]
			if !ok {
				continue
			}
			out = append(out, LongRow{
				SubmissionID: r.ID,
				Source:       string(r.Source),
				Field:        f.Name,
				Value:        v,
				SubmittedAt:  r.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
	}
	return out
}
