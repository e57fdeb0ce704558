package services

import (
	"context"
	"sort"
)

type AnalyticsBucket struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Count int    `json:"count"`
}

type AnalyticsHistogram struct {
	Group   string            `json:"group"`
	Buckets []AnalyticsBucket `json:"buckets"`
}

type AnalyticsTimeseries struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type MetricStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

type AnalyticsSummary struct {
	Category   CategoryKey           `json:"category"`
	Primary    string                `json:"primary"`
	Total      int                   `json:"total"`
	Accounts   int                   `json:"accounts"`
	Visitors   int                   `json:"visitors"`
	Stats      MetricStats           `json:"stats"`
	Histograms []AnalyticsHistogram  `json:"histograms"`
	Timeseries []AnalyticsTimeseries `json:"timeseries"`
}

// AnalyticsService summarizes the visible results of a category.
type AnalyticsService struct {
	results *ResultsService
}

func NewAnalyticsService(results *ResultsService) *AnalyticsService {
	return &AnalyticsService{results: results}
}

func (s *AnalyticsService) Summary(ctx context.Context, category CategoryKey, viewer Identity) (*AnalyticsSummary, error) {
	cat, ok := s.results.catalog.Category(category)
	if !ok {
		return nil, NewNotFoundError("unknown category")
	}
	records, err := s.results.Records(ctx, cat, viewer, "en")
	if err != nil {
		return nil, err
	}
	return Summarize(cat, records), nil
}

// Summarize computes counts, primary metric statistics, bucket histograms
// and a per-day submission series.
func Summarize(cat *Category, records []ResultRecord) *AnalyticsSummary {
	out := &AnalyticsSummary{Category: cat.Key, Primary: cat.Results.Primary, Total: len(records)}
	values := make([]float64, 0, len(records))
	countsByDay := map[string]int{}
	for _, r := range records {
		if r.Source == SourceAccount {
			out.Accounts++
		} else {
			out.Visitors++
		}
		values = append(values, r.Primary)
		countsByDay[r.CreatedAt.UTC().Format("2006-01-02")]++
	}
	out.Stats = metricStats(values)
	out.Histograms = buildHistograms(cat, records)
	out.Timeseries = buildTimeseries(countsByDay)
	return out
}

func metricStats(values []float64) MetricStats {
	if len(values) == 0 {
		return MetricStats{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return MetricStats{Min: sorted[0], Max: sorted[n-1], Mean: sum / float64(n), Median: median}
}

func buildHistograms(cat *Category, records []ResultRecord) []AnalyticsHistogram {
	var out []AnalyticsHistogram
	for _, g := range cat.Results.Filters {
		if g.Kind != FilterNumeric {
			continue
		}
		h := AnalyticsHistogram{Group: g.Name, Buckets: make([]AnalyticsBucket, 0, len(g.Buckets))}
		for _, b := range g.Buckets {
			lo, hi, err := ParseBucket(b.Value)
			if err != nil {
				continue
			}
			count := 0
			for _, r := range records {
				if v := r.Metrics[g.Field]; v >= lo && v <= hi {
					count++
				}
			}
			h.Buckets = append(h.Buckets, AnalyticsBucket{Label: b.Label, Value: b.Value, Count: count})
		}
		out = append(out, h)
	}
	return out
}

func buildTimeseries(counts map[string]int) []AnalyticsTimeseries {
	days := make([]string, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Strings(days)
	out := make([]AnalyticsTimeseries, 0, len(days))
	for _, d := range days {
		out = append(out, AnalyticsTimeseries{Date: d, Count: counts[d]})
	}
	return out
}
