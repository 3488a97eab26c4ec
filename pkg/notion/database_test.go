package notion

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/research-dashboard/pkg/notion/mocks"
)

func sampleReport() Report {
	return Report{
		RunID:        "run-1",
		Company:      "Tesla",
		Status:       "done",
		ResearchedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Sections: []Section{
			{Name: "Overview", Text: "Tesla designs electric vehicles."},
			{Name: "Investment", Text: "Volatile."},
		},
	}
}

func matchRunFilter(runID string) any {
	return mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		return ok && pf.Property == PropRunID && pf.RichText != nil && pf.RichText.Equals == runID
	})
}

func TestPublishReport_CreatesPage(t *testing.T) {
	mc := new(mocks.MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", matchRunFilter("run-1")).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	mc.On("CreatePage", ctx, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		title, ok := req.Properties[PropCompany].(notionapi.TitleProperty)
		if !ok || title.Title[0].Text.Content != "Tesla" {
			return false
		}
		overview, ok := req.Properties["Overview"].(notionapi.RichTextProperty)
		return ok && req.Parent.DatabaseID == "db-1" &&
			overview.RichText[0].Text.Content == "Tesla designs electric vehicles."
	})).Return(&notionapi.Page{ID: "page-9", URL: "https://notion.so/page-9"}, nil).Once()

	res, err := PublishReport(ctx, mc, "db-1", sampleReport())
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "page-9", res.PageID)
	assert.Equal(t, "https://notion.so/page-9", res.URL)
	mc.AssertExpectations(t)
}

func TestPublishReport_UpdatesExistingPage(t *testing.T) {
	mc := new(mocks.MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", matchRunFilter("run-1")).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "page-3"}}}, nil).Once()
	mc.On("UpdatePage", ctx, "page-3", mock.AnythingOfType("*notionapi.PageUpdateRequest")).
		Return(&notionapi.Page{ID: "page-3"}, nil).Once()

	res, err := PublishReport(ctx, mc, "db-1", sampleReport())
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "page-3", res.PageID)
	mc.AssertNotCalled(t, "CreatePage", mock.Anything, mock.Anything)
	mc.AssertExpectations(t)
}

func TestPublishReport_MissingRunID(t *testing.T) {
	mc := new(mocks.MockClient)
	r := sampleReport()
	r.RunID = ""

	_, err := PublishReport(context.Background(), mc, "db-1", r)
	require.Error(t, err)
	mc.AssertNotCalled(t, "QueryDatabase", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishReport_QueryError(t *testing.T) {
	mc := new(mocks.MockClient)
	ctx := context.Background()
	mc.On("QueryDatabase", ctx, "db-1", mock.Anything).Return(nil, assert.AnError).Once()

	_, err := PublishReport(ctx, mc, "db-1", sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: find run page")
}

func TestPublishReport_CreateError(t *testing.T) {
	mc := new(mocks.MockClient)
	ctx := context.Background()
	mc.On("QueryDatabase", ctx, "db-1", mock.Anything).Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	mc.On("CreatePage", ctx, mock.Anything).Return(nil, assert.AnError).Once()

	_, err := PublishReport(ctx, mc, "db-1", sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: create report page")
}

func TestBuildReportProperties_ChunksLongText(t *testing.T) {
	r := sampleReport()
	r.Sections = []Section{{Name: "Market", Text: strings.Repeat("é", 4500)}}

	props := buildReportProperties(r)
	market := props["Market"].(notionapi.RichTextProperty)
	require.Len(t, market.RichText, 3)
	assert.Equal(t, maxRichTextLen, len([]rune(market.RichText[0].Text.Content)))
	assert.Equal(t, maxRichTextLen, len([]rune(market.RichText[1].Text.Content)))
	assert.Equal(t, 500, len([]rune(market.RichText[2].Text.Content)))

	date := props[PropResearched].(notionapi.DateProperty)
	assert.Equal(t, r.ResearchedAt, time.Time(*date.Date.Start))
}

func TestChunk(t *testing.T) {
	assert.Equal(t, []string{""}, chunk("", 3))
	assert.Equal(t, []string{"abc"}, chunk("abc", 3))
	assert.Equal(t, []string{"abc", "de"}, chunk("abcde", 3))
}
