package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	dbstore "github.com/soaringjerry/comparaholic/internal/db"
	"github.com/soaringjerry/comparaholic/internal/services"
)

// legacySnapshot is the JSON export of the hosted backend tables.
type legacySnapshot struct {
	Profiles           []legacyProfile  `json:"profiles"`
	UserFormResponses  []legacyResponse `json:"user_form_responses"`
	VisitorSubmissions []legacyVisitor  `json:"visitor_submissions"`
}

type legacyProfile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

type legacyResponse struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Category  string         `json:"category"`
	FormData  map[string]any `json:"form_data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type legacyVisitor struct {
	ID        string         `json:"id"`
	VisitorID string         `json:"visitor_id"`
	Category  string         `json:"category"`
	FormData  map[string]any `json:"form_data"`
	ClaimedBy *string        `json:"claimed_by"`
	ClaimedAt *time.Time     `json:"claimed_at"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// snapshotTarget is the subset of the store the import writes through.
type snapshotTarget interface {
	AddUser(ctx context.Context, u *services.User) error
	UpsertAccountSubmission(ctx context.Context, sub *services.Submission) error
	UpsertVisitorSubmission(ctx context.Context, sub *services.Submission) (bool, error)
	ClaimVisitorSubmission(ctx context.Context, submissionID, accountID string, at time.Time) error
}

type ImportReport struct {
	Users    int
	Accounts int
	Visitors int
	Claimed  int
	Skipped  int
}

// ImportIfNeeded imports snapshotPath into a new sqlite file. It does nothing
// when the sqlite file already exists or no snapshot is available.
func ImportIfNeeded(ctx context.Context, snapshotPath, sqlitePath, migrationsDir string, logger *zap.Logger) error {
	if sqlitePath == "" {
		return errors.New("sqlite path is required")
	}
	if _, err := os.Stat(sqlitePath); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("check sqlite file: %w", err)
	}
	if snapshotPath == "" {
		return nil
	}
	f, err := os.Open(snapshotPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open legacy snapshot: %w", err)
	}
	defer f.Close()

	logger.Info("first run detected, importing legacy snapshot", zap.String("snapshot", snapshotPath))
	conn, err := dbstore.Open(sqlitePath, migrationsDir)
	if err != nil {
		return err
	}
	dst, err := dbstore.NewSQLiteStore(conn, logger.Named("sqlite"))
	if err == nil {
		var rep *ImportReport
		rep, err = ImportSnapshot(ctx, f, dst, logger)
		if err == nil {
			logReport(logger, rep)
		}
	}
	if cerr := conn.Close(); cerr != nil {
		logger.Warn("close sqlite after import", zap.Error(cerr))
	}
	if err != nil {
		// Leave no half-imported file so the next start retries.
		_ = os.Remove(sqlitePath)
		return fmt.Errorf("import legacy snapshot: %w", err)
	}
	return nil
}

// ImportSnapshot copies profiles, account responses and visitor submissions.
// Answers are stringified; rows with an unknown category are skipped.
// Imported users carry no password hash and cannot sign in until it is set.
func ImportSnapshot(ctx context.Context, r io.Reader, dst snapshotTarget, logger *zap.Logger) (*ImportReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var snap legacySnapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	now := time.Now().UTC()
	rep := &ImportReport{}

	for _, p := range snap.Profiles {
		email := strings.ToLower(strings.TrimSpace(p.Email))
		if p.ID == "" || email == "" {
			rep.Skipped++
			logger.Warn("skip profile without id or email", zap.String("id", p.ID))
			continue
		}
		u := &services.User{ID: p.ID, Email: email, FullName: strings.TrimSpace(p.FullName), PassHash: []byte{}, CreatedAt: orNow(p.CreatedAt, now)}
		if err := dst.AddUser(ctx, u); err != nil {
			return rep, fmt.Errorf("import profile %s: %w", p.ID, err)
		}
		rep.Users++
	}

	for _, row := range snap.UserFormResponses {
		cat, err := services.ParseCategory(row.Category)
		if err != nil || row.UserID == "" {
			rep.Skipped++
			logger.Warn("skip account response", zap.String("id", row.ID), zap.String("category", row.Category))
			continue
		}
		sub := &services.Submission{
			ID:        row.ID,
			Source:    services.SourceAccount,
			AccountID: row.UserID,
			Category:  cat,
			Answers:   stringifyAnswers(row.FormData),
			CreatedAt: orNow(row.CreatedAt, now),
			UpdatedAt: orNow(row.UpdatedAt, now),
		}
		if err := dst.UpsertAccountSubmission(ctx, sub); err != nil {
			return rep, fmt.Errorf("import account response %s: %w", row.ID, err)
		}
		rep.Accounts++
	}

	for _, row := range snap.VisitorSubmissions {
		cat, err := services.ParseCategory(row.Category)
		if err != nil || row.VisitorID == "" {
			rep.Skipped++
			logger.Warn("skip visitor submission", zap.String("id", row.ID), zap.String("category", row.Category))
			continue
		}
		sub := &services.Submission{
			ID:        row.ID,
			Source:    services.SourceVisitor,
			VisitorID: row.VisitorID,
			Category:  cat,
			Answers:   stringifyAnswers(row.FormData),
			CreatedAt: orNow(row.CreatedAt, now),
			UpdatedAt: orNow(row.UpdatedAt, now),
		}
		if _, err := dst.UpsertVisitorSubmission(ctx, sub); err != nil {
			return rep, fmt.Errorf("import visitor submission %s: %w", row.ID, err)
		}
		rep.Visitors++
		if row.ClaimedBy != nil && *row.ClaimedBy != "" {
			at := now
			if row.ClaimedAt != nil {
				at = *row.ClaimedAt
			}
			if err := dst.ClaimVisitorSubmission(ctx, row.ID, *row.ClaimedBy, at); err != nil {
				return rep, fmt.Errorf("claim visitor submission %s: %w", row.ID, err)
			}
			rep.Claimed++
		}
	}
	return rep, nil
}

func stringifyAnswers(data map[string]any) services.FormState {
	out := services.FormState{}
	for k, v := range data {
		switch t := v.(type) {
		case nil:
		case string:
			out[k] = strings.TrimSpace(t)
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		default:
			if raw, err := json.Marshal(t); err == nil {
				out[k] = string(raw)
			}
		}
	}
	return out
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t.UTC()
}

func logReport(logger *zap.Logger, rep *ImportReport) {
	logger.Info("legacy snapshot imported",
		zap.Int("users", rep.Users),
		zap.Int("account_responses", rep.Accounts),
		zap.Int("visitor_submissions", rep.Visitors),
		zap.Int("claimed", rep.Claimed),
		zap.Int("skipped", rep.Skipped))
}
