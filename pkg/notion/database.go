package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches all pages matching the request, following pagination.
// Rate limiting is enforced by the Client (3 req/s by default).
func QueryAll(ctx context.Context, c Client, dbID string, req *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	if req == nil {
		req = &notionapi.DatabaseQueryRequest{}
	}

	var all []notionapi.Page
	for {
		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}
		all = append(all, resp.Results...)
		if !resp.HasMore {
			return all, nil
		}
		req.StartCursor = resp.NextCursor
	}
}

// QueryPagesByDate fetches all pages whose Date property equals the given day.
func QueryPagesByDate(ctx context.Context, c Client, dbID string, day notionapi.Date) ([]notionapi.Page, error) {
	req := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Date",
			Date: &notionapi.DateFilterCondition{
				Equals: &day,
			},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, req)
	if err != nil {
		return nil, eris.Wrap(err, "notion: query pages by date")
	}
	return pages, nil
}

// ArchivePage removes a page from its database view.
func ArchivePage(ctx context.Context, c Client, pageID string) error {
	_, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{},
		Archived:   true,
	})
	return eris.Wrapf(err, "notion: archive page %s", pageID)
}
