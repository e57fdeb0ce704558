package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MigrationStore interface {
	ListUnclaimedVisitorSubmissionsByVisitor(ctx context.Context, visitorID string) ([]*Submission, error)
	// InsertAccountSubmissionIfAbsent reports false when the account already
	// has a submission for the category; the existing row is never touched.
	InsertAccountSubmissionIfAbsent(ctx context.Context, sub *Submission) (bool, error)
	ClaimVisitorSubmission(ctx context.Context, submissionID, accountID string, at time.Time) error
}

// MigrationReport lists the categories per outcome.
type MigrationReport struct {
	Migrated []CategoryKey `json:"migrated"`
	Skipped  []CategoryKey `json:"skipped"`
	Failed   []CategoryKey `json:"failed"`
}

func (r *MigrationReport) Empty() bool {
	return r == nil || len(r.Migrated)+len(r.Skipped)+len(r.Failed) == 0
}

// MigrationService moves a visitor's unclaimed submissions onto an account.
type MigrationService struct {
	store    MigrationStore
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
	idGen    func() string
}

func NewMigrationService(store MigrationStore, logger *zap.Logger) *MigrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MigrationService{
		store:    store,
		logger:   logger,
		observer: nopObserver{},
		now:      func() time.Time { return time.Now().UTC() },
		idGen:    uuid.NewString,
	}
}

func (s *MigrationService) WithObserver(o Observer) *MigrationService {
	if o == nil {
		o = nopObserver{}
	}
	s.observer = o
	return s
}

// Migrate copies every unclaimed visitor submission the account lacks and
// marks each visitor row claimed, including rows skipped because the account
// already had that category. Failures are per category and never abort the
// run; only a failed listing returns an error so the caller can retry later.
func (s *MigrationService) Migrate(ctx context.Context, accountID, visitorID string) (*MigrationReport, error) {
	report := &MigrationReport{}
	accountID = strings.TrimSpace(accountID)
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return report, nil
	}
	if accountID == "" {
		return nil, NewInvalidError("account id required")
	}
	subs, err := s.store.ListUnclaimedVisitorSubmissionsByVisitor(ctx, visitorID)
	if err != nil {
		s.logger.Error("list visitor submissions", zap.String("visitor_id", visitorID), zap.Error(err))
		return nil, wrapBackend("list visitor submissions", err)
	}
	for _, sub := range subs {
		if sub == nil || sub.Claimed() {
			continue
		}
		log := s.logger.With(zap.String("visitor_id", visitorID), zap.String("account_id", accountID), zap.String("category", string(sub.Category)))
		now := s.now()
		created := sub.CreatedAt
		if created.IsZero() {
			created = now
		}
		inserted, err := s.store.InsertAccountSubmissionIfAbsent(ctx, &Submission{
			ID:        s.idGen(),
			Source:    SourceAccount,
			AccountID: accountID,
			Category:  sub.Category,
			Answers:   sub.Answers.Clone(),
			CreatedAt: created,
			UpdatedAt: now,
		})
		if err != nil {
			log.Warn("migrate submission", zap.Error(err))
			report.Failed = append(report.Failed, sub.Category)
			continue
		}
		if err := s.store.ClaimVisitorSubmission(ctx, sub.ID, accountID, now); err != nil {
			log.Warn("claim visitor submission", zap.Error(err))
			report.Failed = append(report.Failed, sub.Category)
			continue
		}
		if inserted {
			report.Migrated = append(report.Migrated, sub.Category)
		} else {
			log.Info("account already has category; visitor row claimed without copy")
			report.Skipped = append(report.Skipped, sub.Category)
		}
	}
	s.observer.RecordMigration(len(report.Migrated), len(report.Skipped), len(report.Failed))
	if !report.Empty() {
		s.logger.Info("visitor migration finished",
			zap.String("visitor_id", visitorID),
			zap.String("account_id", accountID),
			zap.Int("migrated", len(report.Migrated)),
			zap.Int("skipped", len(report.Skipped)),
			zap.Int("failed", len(report.Failed)))
	}
	return report, nil
}
