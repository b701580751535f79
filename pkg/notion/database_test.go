package notion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestQueryAll_FollowsCursor(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "p1"}},
		HasMore:    true,
		NextCursor: "c2",
	}, nil).Once()
	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == "c2"
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "p2"}},
	}, nil).Once()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, notionapi.ObjectID("p2"), pages[1].ID)
	mc.AssertExpectations(t)
}

func TestQueryAll_Error(t *testing.T) {
	mc := new(MockClient)
	mc.On("QueryDatabase", mock.Anything, "db-1", mock.Anything).Return(nil, errors.New("boom"))

	_, err := QueryAll(context.Background(), mc, "db-1", nil)
	assert.ErrorContains(t, err, "boom")
}

func TestFindByText(t *testing.T) {
	mc := new(MockClient)
	mc.On("QueryDatabase", mock.Anything, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		f, ok := req.Filter.(notionapi.PropertyFilter)
		return ok && f.Property == "Lead Key" && f.RichText.Equals == "acme"
	})).Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "page-9"}}}, nil).Once()

	page, err := FindByText(context.Background(), mc, "db-1", "Lead Key", "acme")
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, notionapi.ObjectID("page-9"), page.ID)
}

func TestFindByText_NoMatch(t *testing.T) {
	mc := new(MockClient)
	mc.On("QueryDatabase", mock.Anything, "db-1", mock.Anything).Return(&notionapi.DatabaseQueryResponse{}, nil)

	page, err := FindByText(context.Background(), mc, "db-1", "Lead Key", "missing")
	require.NoError(t, err)
	assert.Nil(t, page)
}

func TestPropertyBuilders(t *testing.T) {
	assert.Equal(t, "Acme", Title("Acme").Title[0].Text.Content)
	assert.Equal(t, "ready", Select("ready").Select.Name)

	long := strings.Repeat("à", maxTextLen+10)
	got := Text(long).RichText[0].Text.Content
	assert.Len(t, []rune(got), maxTextLen)
}
