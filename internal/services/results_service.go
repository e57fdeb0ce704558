package services

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/soaringjerry/comparaholic/internal/utils"
)

type ResultsStore interface {
	ListAccountSubmissions(ctx context.Context, category CategoryKey) ([]*Submission, error)
	ListUnclaimedVisitorSubmissions(ctx context.Context, category CategoryKey) ([]*Submission, error)
	// ProfileNames maps account id to full name for the ids that have one.
	ProfileNames(ctx context.Context, accountIDs []string) (map[string]string, error)
	IsAdmin(ctx context.Context, accountID string) (bool, error)
	ClearCategory(ctx context.Context, category CategoryKey) (int, error)
	SoftDeleteSubmission(ctx context.Context, source SubmissionSource, id string) (bool, error)
	AddAudit(ctx context.Context, e AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]AuditEntry, error)
}

// ResultRecord is one normalized row of the results table.
type ResultRecord struct {
	ID        string             `json:"id"`
	Source    SubmissionSource   `json:"source"`
	OwnerName string             `json:"owner_name"`
	IsOwn     bool               `json:"is_own"`
	Answers   FormState          `json:"answers"`
	Metrics   map[string]float64 `json:"metrics"`
	Primary   float64            `json:"primary"`
	CreatedAt time.Time          `json:"created_at"`
}

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortOrder reads the sort parameter. An empty value means ascending.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortAsc:
		return SortAsc, nil
	case SortDesc:
		return SortDesc, nil
	}
	return "", NewInvalidError("sort must be asc or desc")
}

// Filters maps a filter group name to its selected values.
type Filters map[string][]string

type ListRequest struct {
	Category CategoryKey
	Viewer   Identity
	Order    SortOrder
	Filters  Filters
	Locale   string
}

type FilterOptionGroup struct {
	Name    string     `json:"name"`
	Kind    FilterKind `json:"kind"`
	Options []Bucket   `json:"options"`
}

type ResultList struct {
	Category     CategoryKey         `json:"category"`
	CategoryName string              `json:"category_name"`
	Primary      string              `json:"primary"`
	PrimaryLabel string              `json:"primary_label"`
	Order        SortOrder           `json:"order"`
	Total        int                 `json:"total"`
	Records      []ResultRecord      `json:"records"`
	FilterGroups []FilterOptionGroup `json:"filter_groups"`
}

type ResultsService struct {
	store   ResultsStore
	catalog *Catalog
	logger  *zap.Logger
	now     func() time.Time
}

func NewResultsService(store ResultsStore, catalog *Catalog, logger *zap.Logger) *ResultsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultsService{
		store:   store,
		catalog: catalog,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Records fetches and normalizes every visible submission of a category in
// base order (newest first).
func (s *ResultsService) Records(ctx context.Context, cat *Category, viewer Identity, locale string) ([]ResultRecord, error) {
	var accounts, visitors []*Submission
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		accounts, err = s.store.ListAccountSubmissions(gctx, cat.Key)
		return wrapBackend("list account submissions", err)
	})
	g.Go(func() error {
		var err error
		visitors, err = s.store.ListUnclaimedVisitorSubmissions(gctx, cat.Key)
		return wrapBackend("list visitor submissions", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(accounts))
	seen := map[string]struct{}{}
	for _, sub := range accounts {
		if _, ok := seen[sub.AccountID]; ok || sub.AccountID == "" {
			continue
		}
		seen[sub.AccountID] = struct{}{}
		ids = append(ids, sub.AccountID)
	}
	names := map[string]string{}
	if len(ids) > 0 {
		var err error
		names, err = s.store.ProfileNames(ctx, ids)
		if err != nil {
			// Owner names fall back to inline or placeholder names.
			s.logger.Warn("resolve profile names", zap.Error(err))
			names = map[string]string{}
		}
	}

	out := make([]ResultRecord, 0, len(accounts)+len(visitors))
	for _, sub := range accounts {
		out = append(out, normalize(cat, sub, ownerName(sub, names, locale), viewer))
	}
	for _, sub := range visitors {
		if sub.Claimed() {
			continue
		}
		out = append(out, normalize(cat, sub, ownerName(sub, names, locale), viewer))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// List returns the filtered and sorted result table plus its filter options.
func (s *ResultsService) List(ctx context.Context, req ListRequest) (*ResultList, error) {
	cat, ok := s.catalog.Category(req.Category)
	if !ok {
		return nil, NewNotFoundError("unknown category")
	}
	if err := ValidateFilters(cat, req.Filters); err != nil {
		return nil, err
	}
	records, err := s.Records(ctx, cat, req.Viewer, req.Locale)
	if err != nil {
		return nil, err
	}
	options := FilterOptions(cat, records)
	filtered, err := FilterRecords(cat, records, req.Filters)
	if err != nil {
		return nil, err
	}
	order := req.Order
	if order == "" {
		order = SortAsc
	}
	SortRecords(filtered, order)
	return &ResultList{
		Category:     cat.Key,
		CategoryName: cat.Name,
		Primary:      cat.Results.Primary,
		PrimaryLabel: cat.Results.PrimaryLabel,
		Order:        order,
		Total:        len(filtered),
		Records:      filtered,
		FilterGroups: options,
	}, nil
}

// ClearCategory removes every submission of category. Admin only.
func (s *ResultsService) ClearCategory(ctx context.Context, actor Identity, category CategoryKey) (int, error) {
	if _, ok := s.catalog.Category(category); !ok {
		return 0, NewNotFoundError("unknown category")
	}
	if err := s.requireAdmin(ctx, actor); err != nil {
		return 0, err
	}
	n, err := s.store.ClearCategory(ctx, category)
	if err != nil {
		return 0, wrapBackend("clear results", err)
	}
	s.audit(ctx, actor, "results.clear", string(category), strconv.Itoa(n)+" rows")
	return n, nil
}

// DeleteRecord soft-deletes a single row. Admin only.
func (s *ResultsService) DeleteRecord(ctx context.Context, actor Identity, source SubmissionSource, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return NewInvalidError("id required")
	}
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}
	ok, err := s.store.SoftDeleteSubmission(ctx, source, id)
	if err != nil {
		return wrapBackend("delete result", err)
	}
	if !ok {
		return NewNotFoundError("result not found")
	}
	s.audit(ctx, actor, "results.delete", string(source)+"/"+id, "")
	return nil
}

// AuditLog returns the newest admin actions first. Admin only.
func (s *ResultsService) AuditLog(ctx context.Context, actor Identity, limit int) ([]AuditEntry, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries, err := s.store.ListAudit(ctx, limit)
	if err != nil {
		return nil, wrapBackend("list audit", err)
	}
	return entries, nil
}

func (s *ResultsService) requireAdmin(ctx context.Context, actor Identity) error {
	if !actor.IsAccount() {
		return NewForbiddenError("admin only")
	}
	admin, err := s.store.IsAdmin(ctx, actor.ID)
	if err != nil {
		return wrapBackend("check admin role", err)
	}
	if !admin {
		return NewForbiddenError("admin only")
	}
	return nil
}

func (s *ResultsService) audit(ctx context.Context, actor Identity, action, target, note string) {
	entry := AuditEntry{Time: s.now(), Actor: actor.ID, Action: action, Target: target, Note: note}
	if err := s.store.AddAudit(ctx, entry); err != nil {
		s.logger.Warn("audit log", zap.String("action", action), zap.Error(err))
	}
}

func ownerName(sub *Submission, names map[string]string, locale string) string {
	if sub.Source == SourceAccount {
		if n := strings.TrimSpace(names[sub.AccountID]); n != "" {
			return n
		}
		if n := strings.TrimSpace(sub.Answers["visitor_name"]); n != "" {
			return n
		}
		return utils.T(locale, "results.anonymous")
	}
	if n := strings.TrimSpace(sub.Answers["visitor_name"]); n != "" {
		return n
	}
	return utils.T(locale, "results.visitor")
}

func normalize(cat *Category, sub *Submission, owner string, viewer Identity) ResultRecord {
	metrics := make(map[string]float64, len(cat.Results.Numeric)+1)
	for _, name := range cat.Results.Numeric {
		metrics[name] = ParseAmount(sub.Answers[name])
	}
	if cat.Results.Derive != nil {
		cat.Results.Derive(metrics, sub.Answers)
	}
	own := false
	switch sub.Source {
	case SourceAccount:
		own = viewer.IsAccount() && viewer.ID == sub.AccountID
	case SourceVisitor:
		own = viewer.IsVisitor() && viewer.ID == sub.VisitorID
	}
	return ResultRecord{
		ID:        sub.ID,
		Source:    sub.Source,
		OwnerName: owner,
		IsOwn:     own,
		Answers:   sub.Answers.Clone(),
		Metrics:   metrics,
		Primary:   metrics[cat.Results.Primary],
		CreatedAt: sub.CreatedAt,
	}
}

// ParseAmount reads the leading number of an answer such as "$1,200",
// "4.25" or "60 months". Unparsable input is 0.
func ParseAmount(s string) float64 {
	s = strings.NewReplacer("$", "", ",", "", "%", "").Replace(strings.TrimSpace(s))
	end := 0
	for end < len(s) && (s[end] == '.' || (s[end] == '-' && end == 0) || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return v
}

// SortRecords orders by the primary metric, ascending unless order is desc.
// The sort is stable so records with equal metrics keep their base order
// (newest first) in both directions.
func SortRecords(records []ResultRecord, order SortOrder) {
	if order == SortDesc {
		sort.SliceStable(records, func(i, j int) bool { return records[i].Primary > records[j].Primary })
		return
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Primary < records[j].Primary })
}

type numericRange struct{ min, max float64 }

// ParseBucket reads an inclusive "min-max" bucket; "$" signs are ignored.
func ParseBucket(value string) (float64, float64, error) {
	v := strings.ReplaceAll(strings.TrimSpace(value), "$", "")
	lo, hi, ok := strings.Cut(v, "-")
	if !ok {
		return 0, 0, NewInvalidError("malformed range " + value)
	}
	min, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return 0, 0, NewInvalidError("malformed range " + value)
	}
	max, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil || max < min {
		return 0, 0, NewInvalidError("malformed range " + value)
	}
	return min, max, nil
}

// ValidateFilters rejects unknown groups and malformed numeric buckets.
func ValidateFilters(cat *Category, filters Filters) error {
	for name, values := range filters {
		g, ok := cat.Filter(name)
		if !ok {
			return NewInvalidError("unknown filter " + name)
		}
		if g.Kind != FilterNumeric {
			continue
		}
		for _, v := range values {
			if _, _, err := ParseBucket(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// FilterRecords keeps the records matching every group that has a selection.
// Within a group any selected value matches.
func FilterRecords(cat *Category, records []ResultRecord, filters Filters) ([]ResultRecord, error) {
	if err := ValidateFilters(cat, filters); err != nil {
		return nil, err
	}
	type compiled struct {
		group  FilterGroup
		ranges []numericRange
		set    map[string]struct{}
	}
	var active []compiled
	for name, values := range filters {
		if len(values) == 0 {
			continue
		}
		g, _ := cat.Filter(name)
		c := compiled{group: g}
		if g.Kind == FilterNumeric {
			for _, v := range values {
				lo, hi, _ := ParseBucket(v)
				c.ranges = append(c.ranges, numericRange{lo, hi})
			}
		} else {
			c.set = make(map[string]struct{}, len(values))
			for _, v := range values {
				c.set[v] = struct{}{}
			}
		}
		active = append(active, c)
	}
	out := make([]ResultRecord, 0, len(records))
	for _, rec := range records {
		keep := true
		for _, c := range active {
			if c.group.Kind == FilterNumeric {
				if !inAnyRange(rec.Metrics[c.group.Field], c.ranges) {
					keep = false
				}
			} else if _, ok := c.set[categoricalValue(c.group, rec)]; !ok {
				keep = false
			}
			if !keep {
				break
			}
		}
		if keep {
			out = append(out, rec)
		}
	}
	return out, nil
}

func inAnyRange(v float64, ranges []numericRange) bool {
	for _, r := range ranges {
		if v >= r.min && v <= r.max {
			return true
		}
	}
	return false
}

func categoricalValue(g FilterGroup, rec ResultRecord) string {
	if v := strings.TrimSpace(rec.Answers[g.Field]); v != "" {
		return v
	}
	return g.Default
}

// FilterOptions lists each group's choices: static buckets for numeric
// groups, the distinct present values for categorical ones.
func FilterOptions(cat *Category, records []ResultRecord) []FilterOptionGroup {
	out := make([]FilterOptionGroup, 0, len(cat.Results.Filters))
	for _, g := range cat.Results.Filters {
		fog := FilterOptionGroup{Name: g.Name, Kind: g.Kind}
		if g.Kind == FilterNumeric {
			fog.Options = append([]Bucket(nil), g.Buckets...)
		} else {
			seen := map[string]struct{}{}
			var values []string
			for _, rec := range records {
				v := categoricalValue(g, rec)
				if v == "" {
					continue
				}
				if _, ok := seen[v]; ok {
					continue
				}
				seen[v] = struct{}{}
				values = append(values, v)
			}
			sort.Strings(values)
			fog.Options = make([]Bucket, 0, len(values))
			for _, v := range values {
				fog.Options = append(fog.Options, Bucket{Label: v, Value: v})
			}
		}
		out = append(out, fog)
	}
	return out
}
