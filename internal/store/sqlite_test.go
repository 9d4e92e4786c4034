package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servio-ai/prospector-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedLead(t *testing.T, st Store, name string, mut ...func(*model.Lead)) *model.Lead {
	t.Helper()
	l := &model.Lead{Name: name}
	for _, m := range mut {
		m(l)
	}
	require.NoError(t, st.CreateLead(context.Background(), l))
	return l
}

var _ Store = (*SQLiteStore)(nil)

// --- Leads ---

func TestSQLite_CreateAndGetLead(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	last := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	l := &model.Lead{
		Name:         "Maria Souza",
		Email:        "maria@example.com",
		Phone:        "+55 81 99999-0000",
		Company:      "Souza Reformas",
		Category:     "reformas",
		Location:     "Recife",
		Source:       model.SourceReferral,
		LastActivity: &last,
		Tags:         []string{"vip", "recife"},
		Notes:        "prefers WhatsApp",
	}
	require.NoError(t, st.CreateLead(ctx, l))
	assert.NotEmpty(t, l.ID)
	assert.Equal(t, model.StageNew, l.Stage)
	assert.False(t, l.CreatedAt.IsZero())

	got, err := st.GetLead(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Maria Souza", got.Name)
	assert.Equal(t, "maria@example.com", got.Email)
	assert.Equal(t, model.StageNew, got.Stage)
	assert.Equal(t, model.SourceReferral, got.Source)
	assert.Equal(t, []string{"vip", "recife"}, got.Tags)
	assert.Equal(t, "prefers WhatsApp", got.Notes)
	require.NotNil(t, got.LastActivity)
	assert.True(t, last.Equal(*got.LastActivity))
	assert.Empty(t, got.ExternalID)
	assert.Empty(t, got.Activities)
}

func TestSQLite_CreateLead_RequiresName(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.CreateLead(context.Background(), &model.Lead{Name: "  "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestSQLite_GetLead_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetLead(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_UpdateLead(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	l := seedLead(t, st, "João")

	l.Company = "JP Elétrica"
	l.Tags = []string{"electric"}
	require.NoError(t, st.UpdateLead(ctx, l))

	got, err := st.GetLead(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "JP Elétrica", got.Company)
	assert.Equal(t, []string{"electric"}, got.Tags)

	err = st.UpdateLead(ctx, &model.Lead{ID: "missing", Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListLeads_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedLead(t, st, "Ana Lima", func(l *model.Lead) { l.Company = "Lima Pinturas"; l.Source = model.SourceEvent })
	seedLead(t, st, "Bruno Dias", func(l *model.Lead) { l.Stage = model.StageContacted })
	seedLead(t, st, "Carla Reis", func(l *model.Lead) { l.Email = "carla@LIMA.com"; l.Stage = model.StageContacted })

	all, err := st.ListLeads(ctx, LeadFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	contacted, err := st.ListLeads(ctx, LeadFilter{Stage: model.StageContacted})
	require.NoError(t, err)
	assert.Len(t, contacted, 2)

	events, err := st.ListLeads(ctx, LeadFilter{Source: model.SourceEvent})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Ana Lima", events[0].Name)

	search, err := st.ListLeads(ctx, LeadFilter{Search: "lima"})
	require.NoError(t, err)
	assert.Len(t, search, 2)

	page, err := st.ListLeads(ctx, LeadFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestSQLite_ListLeads_AttachesActivities(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	a := seedLead(t, st, "A")
	b := seedLead(t, st, "B")

	t0 := time.Date(2026, 10, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.AddActivity(ctx, &model.Activity{LeadID: a.ID, Kind: model.ActivityCall, At: t0}))
	require.NoError(t, st.AddActivity(ctx, &model.Activity{LeadID: a.ID, Kind: model.ActivityEmail, At: t0.Add(time.Hour)}))
	require.NoError(t, st.AddActivity(ctx, &model.Activity{LeadID: b.ID, Kind: model.ActivityNote, At: t0}))

	leads, err := st.ListLeads(ctx, LeadFilter{})
	require.NoError(t, err)
	require.Len(t, leads, 2)

	byID := map[string]model.Lead{}
	for _, l := range leads {
		byID[l.ID] = l
	}
	require.Len(t, byID[a.ID].Activities, 2)
	assert.Equal(t, model.ActivityCall, byID[a.ID].Activities[0].Kind)
	assert.Equal(t, model.ActivityEmail, byID[a.ID].Activities[1].Kind)
	assert.Len(t, byID[b.ID].Activities, 1)
}

func TestSQLite_DeleteLead(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	l := seedLead(t, st, "Temp")
	require.NoError(t, st.AddActivity(ctx, &model.Activity{LeadID: l.ID, Kind: model.ActivityNote}))

	require.NoError(t, st.DeleteLead(ctx, l.ID))
	_, err := st.GetLead(ctx, l.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	acts, err := st.ListActivities(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, acts)

	assert.ErrorIs(t, st.DeleteLead(ctx, l.ID), ErrNotFound)
}

func TestSQLite_UpsertLeadByExternalID(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	first := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	l := &model.Lead{ExternalID: "sf:00Q1", Name: "Paula", Email: "old@example.com", LastActivity: &first}
	created, err := st.UpsertLeadByExternalID(ctx, l)
	require.NoError(t, err)
	assert.True(t, created)
	id := l.ID

	// Work the lead in the CRM, then re-import with fresher contact data
	// but an older activity timestamp.
	_, err = st.MoveStage(ctx, id, model.StageNegotiating, first.Add(48*time.Hour))
	require.NoError(t, err)

	older := first.Add(-24 * time.Hour)
	again := &model.Lead{ExternalID: "sf:00Q1", Name: "Paula Mendes", Email: "new@example.com", Stage: model.StageNew, LastActivity: &older}
	created, err = st.UpsertLeadByExternalID(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again.ID)

	got, err := st.GetLead(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Paula Mendes", got.Name)
	assert.Equal(t, "new@example.com", got.Email)
	assert.Equal(t, model.StageNegotiating, got.Stage)
	require.NotNil(t, got.LastActivity)
	assert.True(t, first.Add(48*time.Hour).Equal(*got.LastActivity))

	_, err = st.UpsertLeadByExternalID(ctx, &model.Lead{Name: "no ext"})
	assert.Error(t, err)
}

func TestSQLite_MoveStage(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	l := seedLead(t, st, "Rafa")
	at := time.Date(2026, 10, 18, 14, 0, 0, 0, time.UTC)

	got, err := st.MoveStage(ctx, l.ID, model.StageContacted, at)
	require.NoError(t, err)
	assert.Equal(t, model.StageContacted, got.Stage)
	require.NotNil(t, got.LastActivity)
	assert.True(t, at.Equal(*got.LastActivity))
	require.Len(t, got.Activities, 1)
	assert.Equal(t, model.ActivityStageChange, got.Activities[0].Kind)
	assert.Equal(t, "new -> contacted", got.Activities[0].Note)

	_, err = st.MoveStage(ctx, l.ID, model.Stage("archived"), at)
	assert.Error(t, err)

	_, err = st.MoveStage(ctx, "missing", model.StageWon, at)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_AddActivity_BumpsLastActivity(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	l := seedLead(t, st, "Lia")
	t1 := time.Date(2026, 10, 10, 9, 0, 0, 0, time.UTC)
	t0 := t1.Add(-72 * time.Hour)

	require.NoError(t, st.AddActivity(ctx, &model.Activity{LeadID: l.ID, Kind: model.ActivityCall, At: t1}))
	// An older backfilled activity must not move last_activity backwards.
	require.NoError(t, st.AddActivity(ctx, &model.Activity{LeadID: l.ID, Kind: model.ActivityNote, At: t0}))

	got, err := st.GetLead(ctx, l.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastActivity)
	assert.True(t, t1.Equal(*got.LastActivity))
	require.Len(t, got.Activities, 2)
	assert.Equal(t, model.ActivityNote, got.Activities[0].Kind)

	err = st.AddActivity(ctx, &model.Activity{LeadID: "missing", Kind: model.ActivityCall})
	assert.ErrorIs(t, err, ErrNotFound)

	err = st.AddActivity(ctx, &model.Activity{LeadID: l.ID})
	assert.Error(t, err)
}

// --- Saved filters ---

func TestSQLite_SavedFilters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	conds := json.RawMessage(`[{"field":"stage","operator":"equals","value":"negotiating"}]`)
	f := &model.SavedFilter{Name: "hot deals", Conditions: conds}
	require.NoError(t, st.SaveFilter(ctx, f))
	require.NotEmpty(t, f.ID)
	id := f.ID

	byID, err := st.GetFilter(ctx, id)
	require.NoError(t, err)
	assert.JSONEq(t, string(conds), string(byID.Conditions))

	byName, err := st.GetFilter(ctx, "hot deals")
	require.NoError(t, err)
	assert.Equal(t, id, byName.ID)

	// Saving under the same name replaces the conditions and keeps the ID.
	replaced := &model.SavedFilter{Name: "hot deals", Conditions: json.RawMessage(`[]`)}
	require.NoError(t, st.SaveFilter(ctx, replaced))
	assert.Equal(t, id, replaced.ID)

	require.NoError(t, st.SaveFilter(ctx, &model.SavedFilter{Name: "all"}))
	list, err := st.ListFilters(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "all", list[0].Name)
	assert.JSONEq(t, `[]`, string(list[1].Conditions))

	require.NoError(t, st.DeleteFilter(ctx, id))
	_, err = st.GetFilter(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, st.DeleteFilter(ctx, id), ErrNotFound)
}

func TestSQLite_SaveFilter_Validation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	assert.Error(t, st.SaveFilter(ctx, &model.SavedFilter{Name: ""}))
	assert.Error(t, st.SaveFilter(ctx, &model.SavedFilter{Name: "bad", Conditions: json.RawMessage(`{nope`)}))
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}
