package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/servio-ai/prospector-cli/internal/db"
	"github.com/servio-ai/prospector-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool, pool.Close), nil
}

func newPostgresStore(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: closeFn, now: func() time.Time { return time.Now().UTC() }}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	external_id   TEXT UNIQUE,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	company       TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT '',
	location      TEXT NOT NULL DEFAULT '',
	stage         TEXT NOT NULL DEFAULT 'new',
	source        TEXT NOT NULL DEFAULT 'other',
	last_activity TIMESTAMPTZ,
	notes         TEXT NOT NULL DEFAULT '',
	tags          JSONB NOT NULL DEFAULT '[]',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS activities (
	id      TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lead_id TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	kind    TEXT NOT NULL,
	note    TEXT NOT NULL DEFAULT '',
	at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS saved_filters (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL UNIQUE,
	conditions JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_stage ON leads(stage);
CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(source);
CREATE INDEX IF NOT EXISTS idx_activities_lead_at ON activities(lead_id, at);
`

var pgLeadColumns = []string{
	"id", "external_id", "name", "email", "phone", "company", "category", "location",
	"stage", "source", "last_activity", "notes", "tags", "created_at", "updated_at",
}

var pgLeadSelect = `SELECT ` + strings.Join(pgLeadColumns, ", ") + ` FROM leads`

// pgLeadUpsert refreshes contact fields on re-import; stage and notes stay.
var pgLeadUpsert = db.UpsertConfig{
	Table:        "leads",
	Columns:      pgLeadColumns,
	ConflictKeys: []string{"external_id"},
	UpdateCols:   []string{"name", "email", "phone", "company", "category", "location", "source", "tags", "updated_at"},
	SetExprs:     []string{`"last_activity" = GREATEST(leads.last_activity, EXCLUDED.last_activity)`},
	Returning:    []string{"id", "last_activity", "(xmax = 0) AS inserted"},
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func leadArgs(l *model.Lead) []any {
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	return []any{
		l.ID, nullString(l.ExternalID), l.Name, l.Email, l.Phone, l.Company, l.Category, l.Location,
		string(l.Stage), string(l.Source), l.LastActivity, l.Notes, tags, l.CreatedAt, l.UpdatedAt,
	}
}

// updateArgs is leadArgs without created_at.
func updateArgs(l *model.Lead) []any {
	args := leadArgs(l)
	return append(args[:13:13], l.UpdatedAt)
}

func (s *PostgresStore) CreateLead(ctx context.Context, l *model.Lead) error {
	if err := prepareNewLead(l, s.now()); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO leads (`+strings.Join(pgLeadColumns, ", ")+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		leadArgs(l)...,
	)
	return eris.Wrapf(err, "postgres: insert lead %s", l.ID)
}

func (s *PostgresStore) UpdateLead(ctx context.Context, l *model.Lead) error {
	if strings.TrimSpace(l.Name) == "" {
		return eris.New("store: lead name is required")
	}
	l.UpdatedAt = s.now()

	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET external_id = $2, name = $3, email = $4, phone = $5, company = $6, category = $7,
			location = $8, stage = $9, source = $10, last_activity = $11, notes = $12, tags = $13, updated_at = $14
			WHERE id = $1`,
		updateArgs(l)...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead %s", l.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "lead %s", l.ID)
	}
	return nil
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	l, err := scanPgLead(s.pool.QueryRow(ctx, pgLeadSelect+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get lead %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s", id)
	}

	acts, err := s.ListActivities(ctx, id)
	if err != nil {
		return nil, err
	}
	l.Activities = acts
	return l, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := pgLeadSelect + ` WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Stage != "" {
		query += ` AND stage = ` + arg(string(filter.Stage))
	}
	if filter.Source != "" {
		query += ` AND source = ` + arg(string(filter.Source))
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		p := arg("%" + q + "%")
		query += ` AND (name ILIKE ` + p + ` OR company ILIKE ` + p + ` OR email ILIKE ` + p + `)`
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit) + ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanPgLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate leads")
	}
	rows.Close()

	if len(leads) == 0 {
		return leads, nil
	}
	ids := make([]string, len(leads))
	for i := range leads {
		ids[i] = leads[i].ID
	}
	actRows, err := s.pool.Query(ctx,
		`SELECT id, lead_id, kind, note, at FROM activities WHERE lead_id = ANY($1) ORDER BY at, id`, ids,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load activities")
	}
	acts, err := scanPgActivities(actRows)
	if err != nil {
		return nil, err
	}
	attachActivities(leads, acts)
	return leads, nil
}

func (s *PostgresStore) DeleteLead(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete lead %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "lead %s", id)
	}
	return nil
}

func (s *PostgresStore) UpsertLeadByExternalID(ctx context.Context, l *model.Lead) (bool, error) {
	if l.ExternalID == "" {
		return false, eris.New("store: upsert requires external_id")
	}
	if err := prepareNewLead(l, s.now()); err != nil {
		return false, err
	}
	query, err := db.UpsertSQL(pgLeadUpsert)
	if err != nil {
		return false, err
	}

	var id string
	var last *time.Time
	var inserted bool
	if err := s.pool.QueryRow(ctx, query, leadArgs(l)...).Scan(&id, &last, &inserted); err != nil {
		return false, eris.Wrapf(err, "postgres: upsert lead %s", l.ExternalID)
	}
	l.ID = id
	l.LastActivity = last
	return inserted, nil
}

func (s *PostgresStore) MoveStage(ctx context.Context, id string, stage model.Stage, at time.Time) (*model.Lead, error) {
	stage, err := model.ParseStage(string(stage))
	if err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = s.now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var from string
	var last *time.Time
	err = tx.QueryRow(ctx, `SELECT stage, last_activity FROM leads WHERE id = $1 FOR UPDATE`, id).Scan(&from, &last)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: move stage %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: read stage %s", id)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE leads SET stage = $1, last_activity = $2, updated_at = $3 WHERE id = $4`,
		string(stage), laterOf(last, at), s.now(), id,
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: update stage %s", id)
	}

	act := model.Activity{LeadID: id, Kind: model.ActivityStageChange, Note: stageChangeNote(model.Stage(from), stage), At: at}
	if err := prepareActivity(&act, s.now()); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO activities (id, lead_id, kind, note, at) VALUES ($1, $2, $3, $4, $5)`,
		act.ID, act.LeadID, act.Kind, act.Note, act.At,
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: insert stage change for %s", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit move stage")
	}
	return s.GetLead(ctx, id)
}

func (s *PostgresStore) AddActivity(ctx context.Context, a *model.Activity) error {
	if err := prepareActivity(a, s.now()); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE leads SET last_activity = GREATEST(last_activity, $1), updated_at = $2 WHERE id = $3`,
		a.At, s.now(), a.LeadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: bump last activity %s", a.LeadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: add activity to %s", a.LeadID)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO activities (id, lead_id, kind, note, at) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.LeadID, a.Kind, a.Note, a.At,
	); err != nil {
		return eris.Wrapf(err, "postgres: insert activity for %s", a.LeadID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit activity")
}

func (s *PostgresStore) ListActivities(ctx context.Context, leadID string) ([]model.Activity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, lead_id, kind, note, at FROM activities WHERE lead_id = $1 ORDER BY at, id`, leadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list activities %s", leadID)
	}
	return scanPgActivities(rows)
}

func (s *PostgresStore) SaveFilter(ctx context.Context, f *model.SavedFilter) error {
	if err := prepareFilter(f, s.now()); err != nil {
		return err
	}
	query, err := db.UpsertSQL(db.UpsertConfig{
		Table:        "saved_filters",
		Columns:      []string{"id", "name", "conditions", "created_at", "updated_at"},
		ConflictKeys: []string{"name"},
		UpdateCols:   []string{"conditions", "updated_at"},
		Returning:    []string{"id", "created_at"},
	})
	if err != nil {
		return err
	}

	err = s.pool.QueryRow(ctx, query, f.ID, f.Name, []byte(f.Conditions), f.CreatedAt, f.UpdatedAt).
		Scan(&f.ID, &f.CreatedAt)
	return eris.Wrapf(err, "postgres: save filter %s", f.Name)
}

func (s *PostgresStore) GetFilter(ctx context.Context, idOrName string) (*model.SavedFilter, error) {
	var f model.SavedFilter
	var conds []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, conditions, created_at, updated_at FROM saved_filters
			WHERE id = $1 OR name = $1 ORDER BY (id = $1) DESC LIMIT 1`,
		idOrName,
	).Scan(&f.ID, &f.Name, &conds, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get filter %s", idOrName)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get filter %s", idOrName)
	}
	f.Conditions = conds
	return &f, nil
}

func (s *PostgresStore) ListFilters(ctx context.Context) ([]model.SavedFilter, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, conditions, created_at, updated_at FROM saved_filters ORDER BY name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list filters")
	}
	defer rows.Close()

	var out []model.SavedFilter
	for rows.Next() {
		var f model.SavedFilter
		var conds []byte
		if err := rows.Scan(&f.ID, &f.Name, &conds, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan filter")
		}
		f.Conditions = conds
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate filters")
}

func (s *PostgresStore) DeleteFilter(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM saved_filters WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete filter %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "filter %s", id)
	}
	return nil
}

func scanPgLead(row pgx.Row) (*model.Lead, error) {
	var l model.Lead
	var externalID *string
	var stage, source string
	var tags []string

	if err := row.Scan(&l.ID, &externalID, &l.Name, &l.Email, &l.Phone, &l.Company, &l.Category, &l.Location,
		&stage, &source, &l.LastActivity, &l.Notes, &tags, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	if externalID != nil {
		l.ExternalID = *externalID
	}
	l.Stage = model.Stage(stage)
	l.Source = model.Source(source)
	if len(tags) > 0 {
		l.Tags = tags
	}
	return &l, nil
}

func scanPgActivities(rows pgx.Rows) ([]model.Activity, error) {
	defer rows.Close()

	var acts []model.Activity
	for rows.Next() {
		var a model.Activity
		if err := rows.Scan(&a.ID, &a.LeadID, &a.Kind, &a.Note, &a.At); err != nil {
			return nil, eris.Wrap(err, "postgres: scan activity")
		}
		acts = append(acts, a)
	}
	return acts, eris.Wrap(rows.Err(), "postgres: iterate activities")
}
