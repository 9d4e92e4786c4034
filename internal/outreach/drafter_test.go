package outreach

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/servio-ai/prospector-cli/internal/model"
	"github.com/servio-ai/prospector-cli/internal/resilience"
	"github.com/servio-ai/prospector-cli/pkg/anthropic"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(s string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: s}}}
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func newTestDrafter(t *testing.T, client anthropic.Client, breaker *resilience.Breaker) *Drafter {
	t.Helper()
	return NewDrafter(testTemplates(t), client, DrafterConfig{
		Model:   "claude-haiku-4-5-20251001",
		Retry:   fastRetry(),
		Breaker: breaker,
	})
}

func TestDraft_TemplateOnly(t *testing.T) {
	client := new(mockClient)
	d := newTestDrafter(t, client, nil)

	draft, err := d.Draft(context.Background(), mariaLead(), ChannelEmail, false)
	require.NoError(t, err)
	assert.Equal(t, OriginTemplate, draft.Origin)
	client.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestDraft_NilClientUsesTemplate(t *testing.T) {
	d := newTestDrafter(t, nil, nil)
	draft, err := d.Draft(context.Background(), mariaLead(), ChannelWhatsApp, true)
	require.NoError(t, err)
	assert.Equal(t, OriginTemplate, draft.Origin)
}

func TestDraft_AI(t *testing.T) {
	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.MaxTokens == 512 &&
			len(req.Messages) == 1 &&
			req.Messages[0].Role == "user" &&
			len(req.System) == 1
	})).Return(textResponse("  Olá Maria, tudo bem?  "), nil).Once()

	d := newTestDrafter(t, client, nil)
	draft, err := d.Draft(context.Background(), mariaLead(), ChannelEmail, true)
	require.NoError(t, err)

	assert.Equal(t, OriginAI, draft.Origin)
	assert.Equal(t, "Olá Maria, tudo bem?", draft.Body)
	assert.Equal(t, "Servio.AI | Salão Bela", draft.Subject)
	client.AssertExpectations(t)
}

func TestDraft_RetriesTransientErrors(t *testing.T) {
	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("overloaded"), 529)).Twice()
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("third time"), nil).Once()

	d := newTestDrafter(t, client, nil)
	draft, err := d.Draft(context.Background(), mariaLead(), ChannelEmail, true)
	require.NoError(t, err)
	assert.Equal(t, "third time", draft.Body)
	client.AssertNumberOfCalls(t, "CreateMessage", 3)
}

func TestDraft_FallsBackOnPermanentError(t *testing.T) {
	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("invalid api key")).Once()

	d := newTestDrafter(t, client, nil)
	draft, err := d.Draft(context.Background(), mariaLead(), ChannelWhatsApp, true)
	require.NoError(t, err)
	assert.Equal(t, OriginTemplate, draft.Origin)
	assert.Contains(t, draft.Body, "Oi Maria!")
	client.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestDraft_FallsBackOnEmptyResponse(t *testing.T) {
	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("   "), nil).Once()

	d := newTestDrafter(t, client, nil)
	draft, err := d.Draft(context.Background(), mariaLead(), ChannelEmail, true)
	require.NoError(t, err)
	assert.Equal(t, OriginTemplate, draft.Origin)
}

func TestDraft_OpenBreakerSkipsClient(t *testing.T) {
	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("invalid request")).Once()

	breaker := resilience.NewBreaker(1, time.Hour)
	d := newTestDrafter(t, client, breaker)

	_, err := d.Draft(context.Background(), mariaLead(), ChannelEmail, true)
	require.NoError(t, err)
	assert.True(t, breaker.Open())

	draft, err := d.Draft(context.Background(), mariaLead(), ChannelEmail, true)
	require.NoError(t, err)
	assert.Equal(t, OriginTemplate, draft.Origin)
	client.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestDraft_CanceledContext(t *testing.T) {
	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, context.Canceled).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newTestDrafter(t, client, nil)
	_, err := d.Draft(ctx, mariaLead(), ChannelEmail, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUserPrompt(t *testing.T) {
	lead := mariaLead()
	lead.Notes = "prefere contato à tarde"
	lead.Activities = []model.Activity{
		{Kind: model.ActivityCall, At: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)},
		{Kind: model.ActivityEmail, At: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)},
	}

	p := userPrompt(lead, ChannelWhatsApp, Draft{Body: "rascunho"})
	assert.Contains(t, p, "Channel: whatsapp")
	assert.Contains(t, p, "Pipeline stage: new")
	assert.Contains(t, p, "Lead: Maria Silva (Salão Bela)")
	assert.Contains(t, p, "Notes: prefere contato à tarde")
	assert.Contains(t, p, "Last activity: email on 2026-10-15")
	assert.Contains(t, p, "under 300 characters")
	assert.Contains(t, p, "Draft to improve:\nrascunho")
}

func TestDraft_CanceledCallDoesNotTripBreaker(t *testing.T) {
	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, context.Canceled).Maybe()

	breaker := resilience.NewBreaker(1, time.Hour)
	d := newTestDrafter(t, client, breaker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Draft(ctx, mariaLead(), ChannelEmail, true)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, breaker.Open())

	draft, err := d.Draft(context.Background(), mariaLead(), ChannelEmail, true)
	require.NoError(t, err)
	assert.Equal(t, OriginTemplate, draft.Origin)
	assert.False(t, breaker.Open(), "a canceled call from the client is not a model failure")
}
