package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches every page of a database query, following cursors.
// filter may be nil.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor

	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}

		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if filter != nil {
			req.Filter = filter.Filter
			req.Sorts = filter.Sorts
			req.PageSize = filter.PageSize
		}

		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}
		all = append(all, resp.Results...)

		if !resp.HasMore || resp.NextCursor == "" {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}

// QueryLeads reads every page of a lead database and maps it to Lead.
func QueryLeads(ctx context.Context, c Client, dbID string) ([]Lead, error) {
	pages, err := QueryAll(ctx, c, dbID, &notionapi.DatabaseQueryRequest{
		Sorts: []notionapi.SortObject{{
			Timestamp: notionapi.TimestampLastEdited,
			Direction: notionapi.SortOrderDESC,
		}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "notion: query leads")
	}

	leads := make([]Lead, 0, len(pages))
	for _, p := range pages {
		leads = append(leads, LeadFromPage(p))
	}
	return leads, nil
}
