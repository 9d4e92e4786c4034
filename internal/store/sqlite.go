package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/servio-ai/prospector-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas below are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id            TEXT PRIMARY KEY,
	external_id   TEXT UNIQUE,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	company       TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT '',
	location      TEXT NOT NULL DEFAULT '',
	stage         TEXT NOT NULL DEFAULT 'new',
	source        TEXT NOT NULL DEFAULT 'other',
	last_activity DATETIME,
	notes         TEXT NOT NULL DEFAULT '',
	tags          TEXT NOT NULL DEFAULT '[]',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS activities (
	id      TEXT PRIMARY KEY,
	lead_id TEXT NOT NULL REFERENCES leads(id),
	kind    TEXT NOT NULL,
	note    TEXT NOT NULL DEFAULT '',
	at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS saved_filters (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	conditions TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_leads_stage ON leads(stage);
CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(source);
CREATE INDEX IF NOT EXISTS idx_activities_lead_id ON activities(lead_id, at);
`

const sqliteLeadColumns = `id, external_id, name, email, phone, company, category, location, stage, source, last_activity, notes, tags, created_at, updated_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateLead(ctx context.Context, l *model.Lead) error {
	if err := prepareNewLead(l, s.now()); err != nil {
		return err
	}
	return s.insertLead(ctx, s.db, l)
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) insertLead(ctx context.Context, ex sqlExecer, l *model.Lead) error {
	tags, err := encodeTags(l.Tags)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO leads (`+sqliteLeadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, nullString(l.ExternalID), l.Name, l.Email, l.Phone, l.Company, l.Category, l.Location,
		string(l.Stage), string(l.Source), nullTime(l.LastActivity), l.Notes, tags, l.CreatedAt, l.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert lead %s", l.ID)
}

func (s *SQLiteStore) UpdateLead(ctx context.Context, l *model.Lead) error {
	if strings.TrimSpace(l.Name) == "" {
		return eris.New("store: lead name is required")
	}
	tags, err := encodeTags(l.Tags)
	if err != nil {
		return err
	}
	l.UpdatedAt = s.now()

	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET external_id = ?, name = ?, email = ?, phone = ?, company = ?, category = ?, location = ?,
			stage = ?, source = ?, last_activity = ?, notes = ?, tags = ?, updated_at = ? WHERE id = ?`,
		nullString(l.ExternalID), l.Name, l.Email, l.Phone, l.Company, l.Category, l.Location,
		string(l.Stage), string(l.Source), nullTime(l.LastActivity), l.Notes, tags, l.UpdatedAt, l.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead %s", l.ID)
	}
	return checkRowsAffected(res, "lead", l.ID)
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteLeadColumns+` FROM leads WHERE id = ?`, id)
	l, err := scanSQLiteLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get lead %s", id)
	}
	if err != nil {
		return nil, err
	}

	acts, err := s.ListActivities(ctx, id)
	if err != nil {
		return nil, err
	}
	l.Activities = acts
	return l, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + sqliteLeadColumns + ` FROM leads WHERE 1=1`
	var args []any

	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, string(filter.Stage))
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, string(filter.Source))
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query += ` AND (LOWER(name) LIKE ? OR LOWER(company) LIKE ? OR LOWER(email) LIKE ?)`
		args = append(args, like, like, like)
	}

	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close() //nolint:errcheck

	var leads []model.Lead
	for rows.Next() {
		l, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate leads")
	}

	if err := s.loadActivities(ctx, leads); err != nil {
		return nil, err
	}
	return leads, nil
}

// sqliteInChunk stays well under SQLite's bound-parameter limit.
const sqliteInChunk = 500

func (s *SQLiteStore) loadActivities(ctx context.Context, leads []model.Lead) error {
	for start := 0; start < len(leads); start += sqliteInChunk {
		end := min(start+sqliteInChunk, len(leads))
		args := make([]any, 0, end-start)
		for _, l := range leads[start:end] {
			args = append(args, l.ID)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")

		rows, err := s.db.QueryContext(ctx,
			`SELECT id, lead_id, kind, note, at FROM activities WHERE lead_id IN (`+placeholders+`) ORDER BY at, id`,
			args...,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: load activities")
		}
		acts, err := scanSQLiteActivities(rows)
		if err != nil {
			return err
		}
		attachActivities(leads[start:end], acts)
	}
	return nil
}

func (s *SQLiteStore) DeleteLead(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE lead_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete activities of %s", id)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM leads WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete lead %s", id)
	}
	if err := checkRowsAffected(res, "lead", id); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit delete lead")
}

func (s *SQLiteStore) UpsertLeadByExternalID(ctx context.Context, l *model.Lead) (bool, error) {
	if l.ExternalID == "" {
		return false, eris.New("store: upsert requires external_id")
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var id string
	var last sql.NullTime
	err = tx.QueryRowContext(ctx, `SELECT id, last_activity FROM leads WHERE external_id = ?`, l.ExternalID).Scan(&id, &last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := prepareNewLead(l, now); err != nil {
			return false, err
		}
		if err := s.insertLead(ctx, tx, l); err != nil {
			return false, err
		}
		return true, eris.Wrap(tx.Commit(), "sqlite: commit upsert lead")
	case err != nil:
		return false, eris.Wrapf(err, "sqlite: find lead by external id %s", l.ExternalID)
	}

	if l.Source == "" {
		l.Source = model.SourceOther
	}
	tags, err := encodeTags(l.Tags)
	if err != nil {
		return false, err
	}
	lastActivity := timePtr(last)
	if l.LastActivity != nil {
		lastActivity = laterOf(lastActivity, *l.LastActivity)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE leads SET name = ?, email = ?, phone = ?, company = ?, category = ?, location = ?, source = ?,
			last_activity = ?, tags = ?, updated_at = ? WHERE id = ?`,
		l.Name, l.Email, l.Phone, l.Company, l.Category, l.Location, string(l.Source),
		nullTime(lastActivity), tags, now, id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: refresh lead %s", id)
	}
	l.ID = id
	l.LastActivity = lastActivity
	l.UpdatedAt = now
	return false, eris.Wrap(tx.Commit(), "sqlite: commit upsert lead")
}

func (s *SQLiteStore) MoveStage(ctx context.Context, id string, stage model.Stage, at time.Time) (*model.Lead, error) {
	stage, err := model.ParseStage(string(stage))
	if err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var from string
	var last sql.NullTime
	err = tx.QueryRowContext(ctx, `SELECT stage, last_activity FROM leads WHERE id = ?`, id).Scan(&from, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: move stage %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: read stage %s", id)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE leads SET stage = ?, last_activity = ?, updated_at = ? WHERE id = ?`,
		string(stage), nullTime(laterOf(timePtr(last), at)), s.now(), id,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: update stage %s", id)
	}

	act := model.Activity{LeadID: id, Kind: model.ActivityStageChange, Note: stageChangeNote(model.Stage(from), stage), At: at}
	if err := s.insertActivity(ctx, tx, &act); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit move stage")
	}
	return s.GetLead(ctx, id)
}

func (s *SQLiteStore) AddActivity(ctx context.Context, a *model.Activity) error {
	if err := prepareActivity(a, s.now()); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var last sql.NullTime
	err = tx.QueryRowContext(ctx, `SELECT last_activity FROM leads WHERE id = ?`, a.LeadID).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "sqlite: add activity to %s", a.LeadID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: read lead %s", a.LeadID)
	}

	if err := s.insertActivity(ctx, tx, a); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE leads SET last_activity = ?, updated_at = ? WHERE id = ?`,
		nullTime(laterOf(timePtr(last), a.At)), s.now(), a.LeadID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: bump last activity %s", a.LeadID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit activity")
}

func (s *SQLiteStore) insertActivity(ctx context.Context, ex sqlExecer, a *model.Activity) error {
	if err := prepareActivity(a, s.now()); err != nil {
		return err
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO activities (id, lead_id, kind, note, at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.LeadID, a.Kind, a.Note, a.At,
	)
	return eris.Wrapf(err, "sqlite: insert activity for %s", a.LeadID)
}

func (s *SQLiteStore) ListActivities(ctx context.Context, leadID string) ([]model.Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lead_id, kind, note, at FROM activities WHERE lead_id = ? ORDER BY at, id`, leadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list activities %s", leadID)
	}
	return scanSQLiteActivities(rows)
}

func (s *SQLiteStore) SaveFilter(ctx context.Context, f *model.SavedFilter) error {
	if err := prepareFilter(f, s.now()); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var id string
	var created time.Time
	err = tx.QueryRowContext(ctx, `SELECT id, created_at FROM saved_filters WHERE name = ?`, f.Name).Scan(&id, &created)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO saved_filters (id, name, conditions, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			f.ID, f.Name, string(f.Conditions), f.CreatedAt, f.UpdatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert filter %s", f.Name)
		}
	case err != nil:
		return eris.Wrapf(err, "sqlite: find filter %s", f.Name)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE saved_filters SET conditions = ?, updated_at = ? WHERE id = ?`,
			string(f.Conditions), f.UpdatedAt, id,
		); err != nil {
			return eris.Wrapf(err, "sqlite: update filter %s", f.Name)
		}
		f.ID = id
		f.CreatedAt = created
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit filter")
}

func (s *SQLiteStore) GetFilter(ctx context.Context, idOrName string) (*model.SavedFilter, error) {
	var f model.SavedFilter
	var conds string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, conditions, created_at, updated_at FROM saved_filters
			WHERE id = ? OR name = ? ORDER BY CASE WHEN id = ? THEN 0 ELSE 1 END LIMIT 1`,
		idOrName, idOrName, idOrName,
	).Scan(&f.ID, &f.Name, &conds, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get filter %s", idOrName)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get filter %s", idOrName)
	}
	f.Conditions = []byte(conds)
	return &f, nil
}

func (s *SQLiteStore) ListFilters(ctx context.Context) ([]model.SavedFilter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, conditions, created_at, updated_at FROM saved_filters ORDER BY name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list filters")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SavedFilter
	for rows.Next() {
		var f model.SavedFilter
		var conds string
		if err := rows.Scan(&f.ID, &f.Name, &conds, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan filter")
		}
		f.Conditions = []byte(conds)
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate filters")
}

func (s *SQLiteStore) DeleteFilter(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_filters WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete filter %s", id)
	}
	return checkRowsAffected(res, "filter", id)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var externalID sql.NullString
	var last sql.NullTime
	var stage, source, tags string

	err := row.Scan(&l.ID, &externalID, &l.Name, &l.Email, &l.Phone, &l.Company, &l.Category, &l.Location,
		&stage, &source, &last, &l.Notes, &tags, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan lead")
	}

	l.ExternalID = externalID.String
	l.Stage = model.Stage(stage)
	l.Source = model.Source(source)
	l.LastActivity = timePtr(last)
	if l.Tags, err = decodeTags([]byte(tags)); err != nil {
		return nil, err
	}
	return &l, nil
}

func scanSQLiteActivities(rows *sql.Rows) ([]model.Activity, error) {
	defer rows.Close() //nolint:errcheck

	var acts []model.Activity
	for rows.Next() {
		var a model.Activity
		if err := rows.Scan(&a.ID, &a.LeadID, &a.Kind, &a.Note, &a.At); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan activity")
		}
		acts = append(acts, a)
	}
	return acts, eris.Wrap(rows.Err(), "sqlite: iterate activities")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
