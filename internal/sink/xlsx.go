package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/electro-tech/pricewatch/internal/model"
)

// xlsxHeader is the column layout of the daily quotes workbook.
var xlsxHeader = []string{
	"Date", "Category", "Model", "Company", "Price", "Unit",
	"Vendor ID", "Vendor Name", "Contact", "Vendor Type",
}

// XLSXSink writes the aggregated quotes as a one-sheet workbook, the
// shape procurement imports into their own spreadsheets.
type XLSXSink struct {
	outputDir string
}

// NewXLSXSink creates an XLSXSink writing into outputDir.
func NewXLSXSink(outputDir string) *XLSXSink {
	return &XLSXSink{outputDir: outputDir}
}

func (s *XLSXSink) Name() string { return "xlsx" }

// Path returns the workbook path for a date.
func (s *XLSXSink) Path(date time.Time) string {
	return filepath.Join(s.outputDir, fmt.Sprintf("daily_quotes_%s.xlsx", date.Format(fileStamp)))
}

func (s *XLSXSink) Write(ctx context.Context, date time.Time, summary, detailed string, quotes []model.AggregatedQuote) error {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return eris.Wrapf(err, "sink: create output dir %s", s.outputDir)
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Quotes")
	if err != nil {
		return eris.Wrap(err, "sink: add quotes sheet")
	}

	header := sheet.AddRow()
	for _, col := range xlsxHeader {
		header.AddCell().Value = col
	}

	day := date.Format(time.DateOnly)
	for _, q := range quotes {
		row := sheet.AddRow()
		row.AddCell().Value = day
		row.AddCell().Value = q.Category
		row.AddCell().Value = q.Model
		row.AddCell().Value = q.Company
		row.AddCell().SetFloat(q.MinPrice.InexactFloat64())
		row.AddCell().Value = q.Unit
		row.AddCell().Value = q.VendorID
		row.AddCell().Value = q.VendorName
		row.AddCell().Value = q.ContactHandle
		row.AddCell().Value = q.VendorType
	}

	path := s.Path(date)
	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "sink: save %s", path)
	}

	zap.L().Info("quotes workbook written", zap.String("path", path), zap.Int("rows", len(quotes)))
	return nil
}
