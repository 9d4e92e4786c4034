package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servio-ai/prospector-cli/internal/model"
	"github.com/servio-ai/prospector-cli/internal/resilience"
	"github.com/servio-ai/prospector-cli/pkg/salesforce"
)

type fakeSalesforce struct {
	calls   int
	results []error
	leads   []salesforce.Lead
}

func (f *fakeSalesforce) Query(_ context.Context, _ string, out any) error {
	f.calls++
	if len(f.results) > 0 {
		err := f.results[0]
		f.results = f.results[1:]
		if err != nil {
			return err
		}
	}
	*(out.(*[]salesforce.Lead)) = f.leads
	return nil
}

type fakeNotion struct {
	pages []notionapi.Page
	err   error
}

func (f *fakeNotion) QueryDatabase(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &notionapi.DatabaseQueryResponse{Results: f.pages}, nil
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestSalesforceSource_Fetch(t *testing.T) {
	sf := &fakeSalesforce{leads: []salesforce.Lead{
		{
			ID: "00Q1", Name: "Maria Silva", Email: "Maria@Bela.com.br", MobilePhone: "+55 11 99999-0000",
			Company: "Salão Bela", Industry: "Beauty", City: "São Paulo", State: "SP",
			Status: "Working - Contacted", LeadSource: "Partner Referral", LastActivityDate: "2026-10-15",
		},
		{ID: "00Q2", Name: "  "},
		{ID: "00Q3", Name: "Pedro", LastActivityDate: "15/10/2026"},
	}}

	src := &SalesforceSource{Client: sf, Retry: fastRetry()}
	assert.Equal(t, "salesforce", src.Name())

	b, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, b.Leads, 1)

	l := b.Leads[0]
	assert.Equal(t, "sf:00Q1", l.ExternalID)
	assert.Equal(t, "maria@bela.com.br", l.Email)
	assert.Equal(t, "+55 11 99999-0000", l.Phone)
	assert.Equal(t, "São Paulo, SP", l.Location)
	assert.Equal(t, "Beauty", l.Category)
	assert.Equal(t, model.StageContacted, l.Stage)
	assert.Equal(t, model.SourceReferral, l.Source)
	require.NotNil(t, l.LastActivity)
	assert.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), *l.LastActivity)

	require.Len(t, b.Rejected, 2)
	assert.Equal(t, 2, b.Rejected[0].Row)
	assert.Equal(t, 3, b.Rejected[1].Row)
}

func TestSalesforceSource_RetriesTransient(t *testing.T) {
	sf := &fakeSalesforce{
		results: []error{resilience.NewTransientError(errors.New("REQUEST_LIMIT_EXCEEDED"), 503), nil},
		leads:   []salesforce.Lead{{ID: "00Q1", Name: "Ana"}},
	}
	b, err := (&SalesforceSource{Client: sf, Retry: fastRetry()}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, b.Leads, 1)
	assert.Equal(t, 2, sf.calls)
}

func TestSalesforceSource_PermanentError(t *testing.T) {
	sf := &fakeSalesforce{results: []error{errors.New("INVALID_SESSION_ID")}}
	_, err := (&SalesforceSource{Client: sf, Retry: fastRetry()}).Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, sf.calls)
}

func TestStageFromSalesforceStatus(t *testing.T) {
	tests := map[string]model.Stage{
		"Open - Not Contacted":   model.StageNew,
		"Working - Contacted":    model.StageContacted,
		"Closed - Not Converted": model.StageLost,
		"Unqualified":            model.StageLost,
		"Qualified":              model.StageNegotiating,
		"":                       model.StageNew,
	}
	for in, want := range tests {
		assert.Equal(t, want, stageFromSalesforceStatus(in), in)
	}
}

func TestSourceFromSalesforce(t *testing.T) {
	tests := map[string]model.Source{
		"Employee Referral": model.SourceReferral,
		"Trade Show":        model.SourceEvent,
		"Web":               model.SourceDirect,
		"Phone Inquiry":     model.SourceDirect,
		"Social Media":      model.SourceSocial,
		"Purchased List":    model.SourceOther,
	}
	for in, want := range tests {
		assert.Equal(t, want, sourceFromSalesforce(in), in)
	}
}

func notionPage(id, name, stage string) notionapi.Page {
	props := notionapi.Properties{
		"Name": &notionapi.TitleProperty{Title: []notionapi.RichText{{PlainText: name}}},
	}
	if stage != "" {
		props["Stage"] = &notionapi.SelectProperty{Select: notionapi.Option{Name: stage}}
	}
	return notionapi.Page{ID: notionapi.ObjectID(id), Properties: props}
}

func TestNotionSource_Fetch(t *testing.T) {
	client := &fakeNotion{pages: []notionapi.Page{
		notionPage("p1", "Maria", "Negociação"),
		notionPage("p2", "", "new"),
		notionPage("p3", "Pedro", "Not started"),
	}}

	src := &NotionSource{Client: client, DatabaseID: "db-1"}
	assert.Equal(t, "notion", src.Name())

	b, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, b.Leads, 2)
	assert.Equal(t, "notion:p1", b.Leads[0].ExternalID)
	assert.Equal(t, model.StageNegotiating, b.Leads[0].Stage)
	assert.Equal(t, model.StageNew, b.Leads[1].Stage)
	require.Len(t, b.Rejected, 1)
	assert.Equal(t, 2, b.Rejected[0].Row)
}

func TestNotionSource_Errors(t *testing.T) {
	_, err := (&NotionSource{Client: &fakeNotion{}}).Fetch(context.Background())
	assert.ErrorContains(t, err, "database id is required")

	_, err = (&NotionSource{Client: &fakeNotion{err: errors.New("unauthorized")}, DatabaseID: "db"}).Fetch(context.Background())
	assert.Error(t, err)
}

func TestJoinNonEmpty(t *testing.T) {
	assert.Equal(t, "a, b", joinNonEmpty(", ", "a", " ", "b"))
	assert.Equal(t, "", joinNonEmpty(", "))
}
