package notion

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// maxRichTextLen is Notion's limit on a single rich text object.
const maxRichTextLen = 2000

// Property names of the report database.
const (
	PropCompany    = "Company"
	PropRunID      = "Run ID"
	PropStatus     = "Status"
	PropResearched = "Researched"
)

// Report is one research run rendered as database properties.
type Report struct {
	RunID        string
	Company      string
	Status       string
	ResearchedAt time.Time
	// Sections become rich text properties, in order.
	Sections []Section
}

// Section is one named block of report text.
type Section struct {
	Name string
	Text string
}

// PublishResult identifies the page a report was written to.
type PublishResult struct {
	PageID  string
	URL     string
	Created bool
}

// FindByRunID returns the page holding runID, or nil when none exists.
func FindByRunID(ctx context.Context, c Client, dbID, runID string) (*notionapi.Page, error) {
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropRunID,
			RichText: &notionapi.TextFilterCondition{Equals: runID},
		},
		PageSize: 1,
	})
	if err != nil {
		return nil, eris.Wrap(err, "notion: find run page")
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

// PublishReport writes r into the database. A run that was already published
// has its page updated in place instead of getting a second page.
func PublishReport(ctx context.Context, c Client, dbID string, r Report) (*PublishResult, error) {
	if r.RunID == "" {
		return nil, eris.New("notion: report has no run id")
	}

	existing, err := FindByRunID(ctx, c, dbID, r.RunID)
	if err != nil {
		return nil, err
	}

	props := buildReportProperties(r)
	if existing != nil {
		page, err := c.UpdatePage(ctx, string(existing.ID), &notionapi.PageUpdateRequest{Properties: props})
		if err != nil {
			return nil, eris.Wrap(err, "notion: update report page")
		}
		return &PublishResult{PageID: string(page.ID), URL: page.URL}, nil
	}

	page, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	})
	if err != nil {
		return nil, eris.Wrap(err, "notion: create report page")
	}
	return &PublishResult{PageID: string(page.ID), URL: page.URL, Created: true}, nil
}

func buildReportProperties(r Report) notionapi.Properties {
	researched := notionapi.Date(r.ResearchedAt)
	props := notionapi.Properties{
		PropCompany: notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(r.Company),
		},
		PropRunID: notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(r.RunID),
		},
		PropStatus: notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(r.Status),
		},
		PropResearched: notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &researched},
		},
	}
	for _, s := range r.Sections {
		props[s.Name] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(s.Text),
		}
	}
	return props
}

// richText splits s into rich text objects no longer than maxRichTextLen
// runes each.
func richText(s string) []notionapi.RichText {
	chunks := chunk(s, maxRichTextLen)
	out := make([]notionapi.RichText, len(chunks))
	for i, c := range chunks {
		out[i] = notionapi.RichText{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: c}}
	}
	return out
}

func chunk(s string, n int) []string {
	if s == "" {
		return []string{""}
	}
	var out []string
	for len(s) > 0 {
		if utf8.RuneCountInString(s) <= n {
			out = append(out, s)
			break
		}
		cut, count := 0, 0
		for i := range s {
			if count == n {
				cut = i
				break
			}
			count++
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	return out
}
