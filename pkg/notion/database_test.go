package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func TestNewClientReturnsClient(t *testing.T) {
	assert.NotNil(t, NewClient("test-token"))
	assert.NotNil(t, NewClient("test-token", WithRateLimit(0)))
}

func TestQueryAll_SinglePage(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{{ID: "p1"}, {ID: "p2"}},
		}, nil).Once()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	mc.AssertExpectations(t)
}

func TestQueryAll_FollowsCursor(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "p1"}},
		HasMore:    true,
		NextCursor: notionapi.Cursor("cursor-abc"),
	}, nil).Once()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == notionapi.Cursor("cursor-abc")
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "p2"}},
	}, nil).Once()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, notionapi.ObjectID("p1"), pages[0].ID)
	assert.Equal(t, notionapi.ObjectID("p2"), pages[1].ID)
	mc.AssertExpectations(t)
}

func TestQueryAll_PassesFilter(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		return ok && pf.Property == "Status" && pf.Status != nil && pf.Status.Equals == "Active"
	})).Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "p1"}}}, nil).Once()

	pages, err := QueryAll(ctx, mc, "db-1", &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Status:   &notionapi.StatusFilterCondition{Equals: "Active"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, pages, 1)
	mc.AssertExpectations(t)
}

func TestQueryAll_Error(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.Anything).Return(nil, assert.AnError).Once()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	assert.Error(t, err)
	assert.Nil(t, pages)
}

func TestQueryAll_ContextCancelled(t *testing.T) {
	mc := new(MockClient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, pages)
	mc.AssertNotCalled(t, "QueryDatabase", mock.Anything, mock.Anything, mock.Anything)
}

func TestQueryLeads(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-leads", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return len(req.Sorts) == 1 && req.Sorts[0].Timestamp == notionapi.TimestampLastEdited
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{
			leadPage("p1", "Maria Silva", "maria@bela.com.br"),
			leadPage("p2", "João Lima", ""),
		},
	}, nil).Once()

	leads, err := QueryLeads(ctx, mc, "db-leads")
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "p1", leads[0].PageID)
	assert.Equal(t, "maria@bela.com.br", leads[0].Email)
	assert.Equal(t, "João Lima", leads[1].Name)
	mc.AssertExpectations(t)
}

func TestQueryLeads_Error(t *testing.T) {
	mc := new(MockClient)
	mc.On("QueryDatabase", mock.Anything, "db-err", mock.Anything).Return(nil, assert.AnError).Once()

	leads, err := QueryLeads(context.Background(), mc, "db-err")
	require.Error(t, err)
	assert.Nil(t, leads)
	assert.Contains(t, err.Error(), "notion: query leads")
}
