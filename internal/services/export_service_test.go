package services

import (
	"context"
	"strings"
	"testing"
)

func TestExportServiceFormats(t *testing.T) {
	store := newStubStore()
	seedBankResults(store)
	store.admins["admin-1"] = true
	svc := NewExportService(NewResultsService(store, testCatalog, nil))
	admin := AccountIdentity("admin-1", "")
	ctx := context.Background()

	wide, err := svc.ExportCSV(ctx, admin, ExportParams{Category: CategoryBankFees})
	if err != nil {
		t.Fatalf("wide export: %v", err)
	}
	if wide.Filename != "bank-fees-wide.csv" || !strings.HasPrefix(wide.ContentType, "text/csv") {
		t.Fatalf("unexpected wide result %+v", wide)
	}
	recs, _ := readCSV(wide.Data)
	if len(recs) != 5 {
		t.Fatalf("want header + 4 rows, got %d", len(recs))
	}

	long, err := svc.ExportCSV(ctx, admin, ExportParams{Category: CategoryBankFees, Format: "long"})
	if err != nil {
		t.Fatalf("long export: %v", err)
	}
	recs, _ = readCSV(long.Data)
	if got := strings.Join(recs[0], ","); got != "submission_id,source,field,value,submitted_at" {
		t.Fatalf("bad long header %s", got)
	}
	// a1 has three answers, others two each; visitor_name is not a field.
	if len(recs) != 1+3+2+2+2 {
		t.Fatalf("unexpected long row count %d", len(recs))
	}
	if len(store.audit) != 2 || store.audit[1].Note != "long" {
		t.Fatalf("exports should be audited: %+v", store.audit)
	}
}

func TestExportServiceGuards(t *testing.T) {
	store := newStubStore()
	svc := NewExportService(NewResultsService(store, testCatalog, nil))
	ctx := context.Background()
	if _, err := svc.ExportCSV(ctx, AccountIdentity("u1", ""), ExportParams{Category: CategoryBankFees}); !IsCode(err, ErrorForbidden) {
		t.Fatalf("non-admin export should be forbidden, got %v", err)
	}
	if _, err := svc.ExportCSV(ctx, AccountIdentity("u1", ""), ExportParams{Category: CategoryBankFees, Format: "xlsx"}); !IsCode(err, ErrorInvalid) {
		t.Fatalf("unknown format should be invalid, got %v", err)
	}
	if _, err := svc.ExportCSV(ctx, AccountIdentity("u1", ""), ExportParams{Category: "nope"}); !IsCode(err, ErrorNotFound) {
		t.Fatalf("unknown category should be not_found, got %v", err)
	}
}
