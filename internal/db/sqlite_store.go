package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/soaringjerry/comparaholic/internal/api"
	"github.com/soaringjerry/comparaholic/internal/services"
)

type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStore(db *sql.DB, logger *zap.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func NewStore(db *sql.DB, logger *zap.Logger) (api.Store, error) {
	return NewSQLiteStore(db, logger)
}

var _ api.Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) logErr(prefix string, err error) {
	if err != nil {
		s.logger.Warn("sqlite store", zap.String("op", prefix), zap.Error(err))
	}
}

func toNullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func encodeAnswers(state services.FormState) (string, error) {
	if state == nil {
		state = services.FormState{}
	}
	b, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *SQLiteStore) decodeAnswers(raw string) services.FormState {
	out := services.FormState{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.logErr("decode answers", err)
		return services.FormState{}
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

const accountColumns = "id, user_id, category, answers, created_at, updated_at"

func (s *SQLiteStore) scanAccount(row rowScanner) (*services.Submission, error) {
	var (
		sub      services.Submission
		category string
		answers  string
	)
	if err := row.Scan(&sub.ID, &sub.AccountID, &category, &answers, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.Source = services.SourceAccount
	sub.Category = services.CategoryKey(category)
	sub.Answers = s.decodeAnswers(answers)
	return &sub, nil
}

const visitorColumns = "id, visitor_id, category, answers, created_at, updated_at, claimed_by, claimed_at"

func (s *SQLiteStore) scanVisitor(row rowScanner) (*services.Submission, error) {
	var (
		sub       services.Submission
		category  string
		answers   string
		claimedBy sql.NullString
		claimedAt sql.NullTime
	)
	if err := row.Scan(&sub.ID, &sub.VisitorID, &category, &answers, &sub.CreatedAt, &sub.UpdatedAt, &claimedBy, &claimedAt); err != nil {
		return nil, err
	}
	sub.Source = services.SourceVisitor
	sub.Category = services.CategoryKey(category)
	sub.Answers = s.decodeAnswers(answers)
	sub.ClaimedBy = claimedBy.String
	if claimedAt.Valid {
		t := claimedAt.Time
		sub.ClaimedAt = &t
	}
	return &sub, nil
}

func (s *SQLiteStore) queryList(ctx context.Context, scan func(rowScanner) (*services.Submission, error), query string, args ...any) ([]*services.Submission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*services.Submission{}
	for rows.Next() {
		sub, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetAccountSubmission(ctx context.Context, accountID string, category services.CategoryKey) (*services.Submission, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM user_form_responses WHERE user_id = ? AND category = ? AND deleted = 0", accountID, string(category))
	sub, err := s.scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

func (s *SQLiteStore) UpsertAccountSubmission(ctx context.Context, sub *services.Submission) error {
	if sub == nil || sub.AccountID == "" {
		return errors.New("account submission requires account id")
	}
	answers, err := encodeAnswers(sub.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO user_form_responses (id, user_id, category, answers, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id, category) DO UPDATE SET answers = excluded.answers, updated_at = excluded.updated_at, deleted = 0`,
		sub.ID, sub.AccountID, string(sub.Category), answers, sub.CreatedAt.UTC(), sub.UpdatedAt.UTC())
	return err
}

func (s *SQLiteStore) GetUnclaimedVisitorSubmission(ctx context.Context, visitorID string, category services.CategoryKey) (*services.Submission, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+visitorColumns+" FROM visitor_submissions WHERE visitor_id = ? AND category = ? AND claimed_by IS NULL AND deleted = 0", visitorID, string(category))
	sub, err := s.scanVisitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

// UpsertVisitorSubmission is a single statement: the conflict branch only
// fires for unclaimed rows, so a claimed row reports zero rows affected.
func (s *SQLiteStore) UpsertVisitorSubmission(ctx context.Context, sub *services.Submission) (bool, error) {
	if sub == nil || sub.VisitorID == "" {
		return false, errors.New("visitor submission requires visitor id")
	}
	answers, err := encodeAnswers(sub.Answers)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO visitor_submissions (id, visitor_id, category, answers, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(visitor_id, category) DO UPDATE SET answers = excluded.answers, updated_at = excluded.updated_at, deleted = 0
WHERE visitor_submissions.claimed_by IS NULL`,
		sub.ID, sub.VisitorID, string(sub.Category), answers, sub.CreatedAt.UTC(), sub.UpdatedAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListUnclaimedVisitorSubmissionsByVisitor(ctx context.Context, visitorID string) ([]*services.Submission, error) {
	return s.queryList(ctx, s.scanVisitor, "SELECT "+visitorColumns+" FROM visitor_submissions WHERE visitor_id = ? AND claimed_by IS NULL AND deleted = 0 ORDER BY category", visitorID)
}

// InsertAccountSubmissionIfAbsent treats a soft-deleted row as absent: the
// conflict branch only fires for deleted rows and revives them, so a live row
// reports zero rows affected.
func (s *SQLiteStore) InsertAccountSubmissionIfAbsent(ctx context.Context, sub *services.Submission) (bool, error) {
	answers, err := encodeAnswers(sub.Answers)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO user_form_responses (id, user_id, category, answers, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id, category) DO UPDATE SET answers = excluded.answers, created_at = excluded.created_at, updated_at = excluded.updated_at, deleted = 0
WHERE user_form_responses.deleted = 1`,
		sub.ID, sub.AccountID, string(sub.Category), answers, sub.CreatedAt.UTC(), sub.UpdatedAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) ClaimVisitorSubmission(ctx context.Context, submissionID, accountID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, "UPDATE visitor_submissions SET claimed_by = ?, claimed_at = ? WHERE id = ? AND claimed_by IS NULL", accountID, at.UTC(), submissionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM visitor_submissions WHERE id = ?", submissionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("visitor submission %s not found", submissionID)
	}
	return err
}

func (s *SQLiteStore) ListAccountSubmissions(ctx context.Context, category services.CategoryKey) ([]*services.Submission, error) {
	return s.queryList(ctx, s.scanAccount, "SELECT "+accountColumns+" FROM user_form_responses WHERE category = ? AND deleted = 0 ORDER BY created_at DESC", string(category))
}

func (s *SQLiteStore) ListUnclaimedVisitorSubmissions(ctx context.Context, category services.CategoryKey) ([]*services.Submission, error) {
	return s.queryList(ctx, s.scanVisitor, "SELECT "+visitorColumns+" FROM visitor_submissions WHERE category = ? AND claimed_by IS NULL AND deleted = 0 ORDER BY created_at DESC", string(category))
}

func (s *SQLiteStore) ListAllSubmissions(ctx context.Context, category services.CategoryKey) ([]*services.Submission, error) {
	accounts, err := s.ListAccountSubmissions(ctx, category)
	if err != nil {
		return nil, err
	}
	visitors, err := s.queryList(ctx, s.scanVisitor, "SELECT "+visitorColumns+" FROM visitor_submissions WHERE category = ? AND deleted = 0 ORDER BY created_at DESC", string(category))
	if err != nil {
		return nil, err
	}
	return append(accounts, visitors...), nil
}

func (s *SQLiteStore) ProfileNames(ctx context.Context, accountIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(accountIDs))
	if len(accountIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(accountIDs))
	for i, id := range accountIDs {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(accountIDs)), ",")
	rows, err := s.db.QueryContext(ctx, "SELECT id, full_name FROM users WHERE full_name IS NOT NULL AND id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		if strings.TrimSpace(name) != "" {
			out[id] = name
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) IsAdmin(ctx context.Context, accountID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM roles WHERE user_id = ? AND role = 'admin'", accountID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLiteStore) GrantAdmin(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO roles (user_id, role) VALUES (?, 'admin') ON CONFLICT(user_id, role) DO NOTHING", userID)
	return err
}

// ClearCategory hard-deletes every row of the category in both tables.
func (s *SQLiteStore) ClearCategory(ctx context.Context, category services.CategoryKey) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	total := 0
	for _, table := range []string{"user_form_responses", "visitor_submissions"} {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE category = ?", string(category))
		if err != nil {
			return 0, fmt.Errorf("clear %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *SQLiteStore) SoftDeleteSubmission(ctx context.Context, source services.SubmissionSource, id string) (bool, error) {
	table := "user_form_responses"
	if source == services.SourceVisitor {
		table = "visitor_submissions"
	}
	res, err := s.db.ExecContext(ctx, "UPDATE "+table+" SET deleted = 1 WHERE id = ? AND deleted = 0", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) AddAudit(ctx context.Context, e services.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO audit_log (time, actor, action, target, note) VALUES (?, ?, ?, ?, ?)",
		e.Time.UTC(), e.Actor, e.Action, toNullString(e.Target), toNullString(e.Note))
	return err
}

func (s *SQLiteStore) ListAudit(ctx context.Context, limit int) ([]services.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT time, actor, action, target, note FROM audit_log ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []services.AuditEntry{}
	for rows.Next() {
		var (
			e            services.AuditEntry
			target, note sql.NullString
		)
		if err := rows.Scan(&e.Time, &e.Actor, &e.Action, &target, &note); err != nil {
			return nil, err
		}
		e.Target = target.String
		e.Note = note.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddUser(ctx context.Context, u *services.User) error {
	if u == nil {
		return errors.New("nil user")
	}
	_, err := s.db.ExecContext(ctx, "INSERT INTO users (id, email, full_name, pass_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		u.ID, strings.ToLower(u.Email), toNullString(u.FullName), u.PassHash, u.CreatedAt.UTC())
	return err
}

func (s *SQLiteStore) FindUserByEmail(ctx context.Context, email string) (*services.User, error) {
	var (
		u    services.User
		name sql.NullString
	)
	err := s.db.QueryRowContext(ctx, "SELECT id, email, full_name, pass_hash, created_at FROM users WHERE email = ?", strings.ToLower(strings.TrimSpace(email))).
		Scan(&u.ID, &u.Email, &name, &u.PassHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.FullName = name.String
	return &u, nil
}

func (s *SQLiteStore) DisplayNameTaken(ctx context.Context, name, exceptUserID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM users WHERE TRIM(full_name) = ? COLLATE NOCASE AND id <> ? LIMIT 1", strings.TrimSpace(name), exceptUserID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*services.Profile, error) {
	var (
		p    services.Profile
		name sql.NullString
	)
	err := s.db.QueryRowContext(ctx, "SELECT id, email, full_name FROM users WHERE id = ?", userID).Scan(&p.ID, &p.Email, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.FullName = name.String
	admin, err := s.IsAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.IsAdmin = admin
	return &p, nil
}

func (s *SQLiteStore) UpdateProfile(ctx context.Context, p *services.Profile) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET email = ?, full_name = ? WHERE id = ?", strings.ToLower(p.Email), toNullString(p.FullName), p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s not found", p.ID)
	}
	return nil
}
