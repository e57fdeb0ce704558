package services

import (
	"context"
	"testing"
	"time"
)

func TestSummaryStatsAndSeries(t *testing.T) {
	store := newStubStore()
	seedBankResults(store)
	store.putAccount(&Submission{ID: "a4", AccountID: "acct-4", Category: CategoryBankFees, Answers: FormState{"monthly_fee": "30"}, CreatedAt: t0.Add(48 * time.Hour)})
	svc := NewAnalyticsService(NewResultsService(store, testCatalog, nil))

	sum, err := svc.Summary(context.Background(), CategoryBankFees, Identity{})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Total != 5 || sum.Accounts != 4 || sum.Visitors != 1 {
		t.Fatalf("unexpected counts %+v", sum)
	}
	if sum.Stats.Min != 4 || sum.Stats.Max != 30 || sum.Stats.Median != 15 || sum.Stats.Mean != 14.4 {
		t.Fatalf("unexpected stats %+v", sum.Stats)
	}
	if len(sum.Timeseries) != 2 || sum.Timeseries[0].Date != "2025-01-10" || sum.Timeseries[0].Count != 4 {
		t.Fatalf("unexpected series %+v", sum.Timeseries)
	}
	if len(sum.Histograms) != 1 {
		t.Fatalf("want one numeric histogram, got %d", len(sum.Histograms))
	}
	counts := []int{}
	for _, b := range sum.Histograms[0].Buckets {
		counts = append(counts, b.Count)
	}
	if len(counts) != 4 || counts[0] != 1 || counts[1] != 1 || counts[2] != 2 || counts[3] != 1 {
		t.Fatalf("unexpected bucket counts %v", counts)
	}
	if _, err := svc.Summary(context.Background(), "nope", Identity{}); !IsCode(err, ErrorNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestMetricStatsEven(t *testing.T) {
	st := metricStats([]float64{4, 1, 3, 2})
	if st.Median != 2.5 || st.Mean != 2.5 || st.Min != 1 || st.Max != 4 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if (metricStats(nil) != MetricStats{}) {
		t.Fatalf("empty input should be zero stats")
	}
}
