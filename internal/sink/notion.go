package sink

import (
	"context"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/electro-tech/pricewatch/internal/model"
	"github.com/electro-tech/pricewatch/pkg/notion"
)

// NotionSink publishes the day's quotes into a Notion database, one page
// per row. Existing rows for the date are archived first, so re-running
// the report replaces the board instead of duplicating it.
//
// The target database needs these properties: Model (title), Category
// (select), Company, Unit, Vendor, Vendor ID, Vendor Type (rich text),
// Price (number), Contact (phone), Date (date).
type NotionSink struct {
	client     notion.Client
	databaseID string
}

// NewNotionSink creates a NotionSink publishing into the given database.
func NewNotionSink(client notion.Client, databaseID string) *NotionSink {
	return &NotionSink{client: client, databaseID: databaseID}
}

func (s *NotionSink) Name() string { return "notion" }

func (s *NotionSink) Write(ctx context.Context, date time.Time, summary, detailed string, quotes []model.AggregatedQuote) error {
	log := zap.L().With(zap.String("component", "sink.notion"))
	day := notionapi.Date(date)

	stale, err := notion.QueryPagesByDate(ctx, s.client, s.databaseID, day)
	if err != nil {
		return eris.Wrap(err, "sink: query existing rows")
	}
	for _, page := range stale {
		if err := notion.ArchivePage(ctx, s.client, string(page.ID)); err != nil {
			return eris.Wrap(err, "sink: archive stale row")
		}
	}
	if len(stale) > 0 {
		log.Info("archived stale rows", zap.Int("count", len(stale)))
	}

	for _, q := range quotes {
		if _, err := s.client.CreatePage(ctx, s.pageFor(day, q)); err != nil {
			return eris.Wrapf(err, "sink: create row for %s %s", q.Category, q.Model)
		}
	}

	log.Info("quotes published", zap.Int("rows", len(quotes)), zap.String("database", s.databaseID))
	return nil
}

func (s *NotionSink) pageFor(day notionapi.Date, q model.AggregatedQuote) *notionapi.PageCreateRequest {
	return &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(s.databaseID),
		},
		Properties: notionapi.Properties{
			"Model":       notionapi.TitleProperty{Title: richText(q.Model)},
			"Category":    notionapi.SelectProperty{Select: notionapi.Option{Name: q.Category}},
			"Company":     notionapi.RichTextProperty{RichText: richText(q.Company)},
			"Price":       notionapi.NumberProperty{Number: q.MinPrice.InexactFloat64()},
			"Unit":        notionapi.RichTextProperty{RichText: richText(q.Unit)},
			"Vendor":      notionapi.RichTextProperty{RichText: richText(q.VendorName)},
			"Vendor ID":   notionapi.RichTextProperty{RichText: richText(q.VendorID)},
			"Vendor Type": notionapi.RichTextProperty{RichText: richText(q.VendorType)},
			"Contact":     notionapi.PhoneNumberProperty{PhoneNumber: q.ContactHandle},
			"Date":        notionapi.DateProperty{Date: &notionapi.DateObject{Start: &day}},
		},
	}
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{Text: &notionapi.Text{Content: s}}}
}
