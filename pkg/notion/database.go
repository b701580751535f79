package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll follows cursors until the database query is drained.
func QueryAll(ctx context.Context, c Client, dbID string, query *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var pages []notionapi.Page
	var cursor notionapi.Cursor
	for {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if query != nil {
			req.Filter = query.Filter
			req.Sorts = query.Sorts
			req.PageSize = query.PageSize
		}
		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}
		pages = append(pages, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return pages, nil
		}
		cursor = resp.NextCursor
	}
}

// FindByText returns the first page whose rich text property equals value,
// or nil when no page matches.
func FindByText(ctx context.Context, c Client, dbID, property, value string) (*notionapi.Page, error) {
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: property,
			RichText: &notionapi.TextFilterCondition{Equals: value},
		},
		PageSize: 1,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion: find %s=%s", property, value)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

// Title builds a title property value.
func Title(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{
		Type:  notionapi.PropertyTypeTitle,
		Title: []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: truncate(s)}}},
	}
}

// Text builds a rich text property value.
func Text(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type:     notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: truncate(s)}}},
	}
}

// Select builds a select property value.
func Select(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{
		Type:   notionapi.PropertyTypeSelect,
		Select: notionapi.Option{Name: name},
	}
}

// maxTextLen is Notion's limit on a single rich text content block.
const maxTextLen = 2000

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxTextLen {
		return s
	}
	return string(r[:maxTextLen])
}
