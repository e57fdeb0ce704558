package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var t0 = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

func seedBankResults(store *stubStore) {
	store.addUser("acct-1", "ann@example.com", "Ann")
	store.putAccount(&Submission{ID: "a1", AccountID: "acct-1", Category: CategoryBankFees, Answers: FormState{"bank": "TD", "monthly_fee": "15", "free_transactions": "10"}, CreatedAt: t0})
	store.putAccount(&Submission{ID: "a2", AccountID: "acct-2", Category: CategoryBankFees, Answers: FormState{"bank": "RBC", "monthly_fee": "4", "visitor_name": "Bob"}, CreatedAt: t0.Add(time.Hour)})
	store.putAccount(&Submission{ID: "a3", AccountID: "acct-3", Category: CategoryBankFees, Answers: FormState{"bank": "BMO", "monthly_fee": "15"}, CreatedAt: t0.Add(2 * time.Hour)})
	store.putVisitor(&Submission{ID: "v1", VisitorID: "vis-1", Category: CategoryBankFees, Answers: FormState{"bank": "TD", "monthly_fee": "$8"}, CreatedAt: t0.Add(3 * time.Hour)})
	claimed := t0
	store.putVisitor(&Submission{ID: "v2", VisitorID: "vis-2", Category: CategoryBankFees, Answers: FormState{"bank": "CIBC", "monthly_fee": "1"}, CreatedAt: t0, ClaimedBy: "acct-2", ClaimedAt: &claimed})
}

func ids(records []ResultRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestListMergesAndNormalizes(t *testing.T) {
	store := newStubStore()
	seedBankResults(store)
	svc := NewResultsService(store, testCatalog, nil)

	list, err := svc.List(context.Background(), ListRequest{Category: CategoryBankFees, Viewer: VisitorIdentity("vis-1"), Locale: "en"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]string{"a2", "v1", "a3", "a1"}, ids(list.Records)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	byID := map[string]ResultRecord{}
	for _, r := range list.Records {
		byID[r.ID] = r
	}
	if byID["a1"].OwnerName != "Ann" || byID["a2"].OwnerName != "Bob" || byID["a3"].OwnerName != "Anonymous" || byID["v1"].OwnerName != "Visitor Submission" {
		t.Fatalf("unexpected owner names %+v", byID)
	}
	if !byID["v1"].IsOwn || byID["a1"].IsOwn {
		t.Fatalf("ownership flags wrong")
	}
	if byID["v1"].Primary != 8 || byID["a1"].Metrics["annual_cost"] != 180 {
		t.Fatalf("unexpected metrics %+v %+v", byID["v1"].Metrics, byID["a1"].Metrics)
	}
}

func TestListLocalizesFallbackNames(t *testing.T) {
	store := newStubStore()
	seedBankResults(store)
	svc := NewResultsService(store, testCatalog, nil)
	list, _ := svc.List(context.Background(), ListRequest{Category: CategoryBankFees, Locale: "fr"})
	for _, r := range list.Records {
		if r.ID == "v1" && r.OwnerName != "Soumission de visiteur" {
			t.Fatalf("expected french visitor label, got %s", r.OwnerName)
		}
	}
}

func TestListSurvivesProfileFailures(t *testing.T) {
	store := newStubStore()
	seedBankResults(store)
	store.failNames = true
	list, err := NewResultsService(store, testCatalog, nil).List(context.Background(), ListRequest{Category: CategoryBankFees})
	if err != nil || list.Total != 4 {
		t.Fatalf("profile lookup failure should degrade, got %v %v", list, err)
	}
}

func TestListBackendFailure(t *testing.T) {
	store := newStubStore()
	store.failVisitor = true
	_, err := NewResultsService(store, testCatalog, nil).List(context.Background(), ListRequest{Category: CategoryBankFees})
	if !IsCode(err, ErrorBadGateway) {
		t.Fatalf("expected bad_gateway, got %v", err)
	}
}

func TestSortIsStableBothWays(t *testing.T) {
	store := newStubStore()
	seedBankResults(store)
	svc := NewResultsService(store, testCatalog, nil)
	asc, _ := svc.List(context.Background(), ListRequest{Category: CategoryBankFees, Order: SortAsc})
	if diff := cmp.Diff([]string{"a2", "v1", "a3", "a1"}, ids(asc.Records)); diff != "" {
		t.Fatalf("asc mismatch:\n%s", diff)
	}
	desc, _ := svc.List(context.Background(), ListRequest{Category: CategoryBankFees, Order: SortDesc})
	if diff := cmp.Diff([]string{"a3", "a1", "v1", "a2"}, ids(desc.Records)); diff != "" {
		t.Fatalf("desc mismatch:\n%s", diff)
	}
	if _, err := ParseSortOrder("sideways"); !IsCode(err, ErrorInvalid) {
		t.Fatalf("expected invalid sort")
	}
}

func TestListDefaultsToAscendingPrimary(t *testing.T) {
	store := newStubStore()
	// Newest first puts the expensive row ahead of the cheap one.
	store.putVisitor(&Submission{ID: "cheap-old", VisitorID: "vis-1", Category: CategoryBankFees, Answers: FormState{"bank": "TD", "monthly_fee": "2"}, CreatedAt: t0})
	store.putVisitor(&Submission{ID: "pricey-new", VisitorID: "vis-2", Category: CategoryBankFees, Answers: FormState{"bank": "RBC", "monthly_fee": "30"}, CreatedAt: t0.Add(time.Hour)})
	svc := NewResultsService(store, testCatalog, nil)

	list, err := svc.List(context.Background(), ListRequest{Category: CategoryBankFees})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]string{"cheap-old", "pricey-new"}, ids(list.Records)); diff != "" {
		t.Fatalf("default order mismatch:\n%s", diff)
	}
	if list.Order != SortAsc {
		t.Fatalf("expected order asc, got %q", list.Order)
	}
	if order, err := ParseSortOrder(""); err != nil || order != SortAsc {
		t.Fatalf("empty sort should parse as asc, got %q %v", order, err)
	}
}

func TestFiltersAreConjunctive(t *testing.T) {
	store := newStubStore()
	seedBankResults(store)
	svc := NewResultsService(store, testCatalog, nil)
	list, err := svc.List(context.Background(), ListRequest{Category: CategoryBankFees, Filters: Filters{
		"bank":        {"TD", "BMO"},
		"monthly_fee": {"11-15"},
	}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]string{"a3", "a1"}, ids(list.Records)); diff != "" {
		t.Fatalf("filter mismatch:\n%s", diff)
	}
	fee, _ := svc.List(context.Background(), ListRequest{Category: CategoryBankFees, Filters: Filters{"monthly_fee": {"$0-$5", "6-10"}}})
	if diff := cmp.Diff([]string{"a2", "v1"}, ids(fee.Records)); diff != "" {
		t.Fatalf("bucket union mismatch:\n%s", diff)
	}
	empty, _ := svc.List(context.Background(), ListRequest{Category: CategoryBankFees, Filters: Filters{"bank": {}}})
	if empty.Total != 4 {
		t.Fatalf("empty selection should not filter, got %d", empty.Total)
	}
}

func TestFilterValidation(t *testing.T) {
	svc := NewResultsService(newStubStore(), testCatalog, nil)
	for _, f := range []Filters{{"colour": {"red"}}, {"monthly_fee": {"cheap"}}, {"monthly_fee": {"10-5"}}} {
		if _, err := svc.List(context.Background(), ListRequest{Category: CategoryBankFees, Filters: f}); !IsCode(err, ErrorInvalid) {
			t.Fatalf("filters %v should be invalid, got %v", f, err)
		}
	}
	if _, err := svc.List(context.Background(), ListRequest{Category: "nope"}); !IsCode(err, ErrorNotFound) {
		t.Fatalf("unknown category should be not_found, got %v", err)
	}
}

func TestFilterOptions(t *testing.T) {
	store := newStubStore()
	seedBankResults(store)
	list, _ := NewResultsService(store, testCatalog, nil).List(context.Background(), ListRequest{Category: CategoryBankFees})
	groups := map[string]FilterOptionGroup{}
	for _, g := range list.FilterGroups {
		groups[g.Name] = g
	}
	var banks []string
	for _, o := range groups["bank"].Options {
		banks = append(banks, o.Value)
	}
	if diff := cmp.Diff([]string{"BMO", "RBC", "TD"}, banks); diff != "" {
		t.Fatalf("bank options mismatch:\n%s", diff)
	}
	if len(groups["monthly_fee"].Options) != 4 {
		t.Fatalf("numeric group should expose static buckets")
	}
	var free []string
	for _, o := range groups["free_transactions"].Options {
		free = append(free, o.Value)
	}
	if diff := cmp.Diff([]string{"0", "10"}, free); diff != "" {
		t.Fatalf("defaulted categorical options mismatch:\n%s", diff)
	}
}

func TestDerivedMetrics(t *testing.T) {
	mortgage, _ := testCatalog.Category(CategoryMortgageRate)
	rec := normalize(mortgage, &Submission{Source: SourceVisitor, Answers: FormState{
		"mortgage_amount": "400000", "down_payment_percent": "25", "interest_rate": "5.00", "amortization_period": "25 years",
	}}, "x", Identity{})
	if rec.Primary != 5 || rec.Metrics["monthly_payment"] < 1753 || rec.Metrics["monthly_payment"] > 1755 {
		t.Fatalf("unexpected mortgage metrics %+v", rec.Metrics)
	}
	home, _ := testCatalog.Category(CategoryHomeInsurance)
	rec = normalize(home, &Submission{Answers: FormState{"annual_premium": "1200"}}, "x", Identity{})
	if rec.Primary != 100 {
		t.Fatalf("monthly premium want 100, got %v", rec.Primary)
	}
	if ParseAmount("$1,250.50") != 1250.5 || ParseAmount("36 months") != 36 || ParseAmount("18-24") != 18 || ParseAmount("") != 0 {
		t.Fatalf("ParseAmount mismatch")
	}
}

func TestAdminOperations(t *testing.T) {
	store := newStubStore()
	seedBankResults(store)
	store.admins["admin-1"] = true
	svc := NewResultsService(store, testCatalog, nil)
	svc.now = fixedClock(t0)
	ctx := context.Background()

	if err := svc.DeleteRecord(ctx, AccountIdentity("acct-1", ""), SourceVisitor, "v1"); !IsCode(err, ErrorForbidden) {
		t.Fatalf("non-admin delete should be forbidden, got %v", err)
	}
	if _, err := svc.ClearCategory(ctx, VisitorIdentity("vis-1"), CategoryBankFees); !IsCode(err, ErrorForbidden) {
		t.Fatalf("visitor clear should be forbidden, got %v", err)
	}
	admin := AccountIdentity("admin-1", "")
	if err := svc.DeleteRecord(ctx, admin, SourceVisitor, "v1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteRecord(ctx, admin, SourceVisitor, "v1"); !IsCode(err, ErrorNotFound) {
		t.Fatalf("second delete should be not_found, got %v", err)
	}
	n, err := svc.ClearCategory(ctx, admin, CategoryBankFees)
	if err != nil || n != 4 {
		t.Fatalf("clear: %d %v", n, err)
	}
	if len(store.audit) != 2 || store.audit[0].Action != "results.delete" || store.audit[1].Target != "bank-fees" {
		t.Fatalf("unexpected audit %+v", store.audit)
	}
}

func TestAuditLogNewestFirst(t *testing.T) {
	store := newStubStore()
	store.admins["admin-1"] = true
	store.audit = []AuditEntry{{Action: "results.delete"}, {Action: "results.clear"}}
	svc := NewResultsService(store, testCatalog, nil)

	if _, err := svc.AuditLog(context.Background(), VisitorIdentity("v"), 10); !IsCode(err, ErrorForbidden) {
		t.Fatalf("visitor should be forbidden, got %v", err)
	}
	entries, err := svc.AuditLog(context.Background(), AccountIdentity("admin-1", ""), 0)
	if err != nil {
		t.Fatalf("audit log: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != "results.clear" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}
