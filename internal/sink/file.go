package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/electro-tech/pricewatch/internal/model"
)

// FileSink writes the summary and detailed reports as UTF-8 text files.
type FileSink struct {
	outputDir string
}

// NewFileSink creates a FileSink writing into outputDir.
func NewFileSink(outputDir string) *FileSink {
	return &FileSink{outputDir: outputDir}
}

func (s *FileSink) Name() string { return "file" }

// SummaryPath returns the summary artifact path for a date.
func (s *FileSink) SummaryPath(date time.Time) string {
	return filepath.Join(s.outputDir, fmt.Sprintf("daily_summary_%s.txt", date.Format(fileStamp)))
}

// DetailedPath returns the detailed artifact path for a date.
func (s *FileSink) DetailedPath(date time.Time) string {
	return filepath.Join(s.outputDir, fmt.Sprintf("detailed_report_%s.txt", date.Format(fileStamp)))
}

func (s *FileSink) Write(ctx context.Context, date time.Time, summary, detailed string, quotes []model.AggregatedQuote) error {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return eris.Wrapf(err, "sink: create output dir %s", s.outputDir)
	}

	summaryPath := s.SummaryPath(date)
	if err := os.WriteFile(summaryPath, []byte(summary), 0o644); err != nil {
		return eris.Wrapf(err, "sink: write %s", summaryPath)
	}

	detailedPath := s.DetailedPath(date)
	if err := os.WriteFile(detailedPath, []byte(detailed), 0o644); err != nil {
		return eris.Wrapf(err, "sink: write %s", detailedPath)
	}

	zap.L().Info("report files written",
		zap.String("summary", summaryPath),
		zap.String("detailed", detailedPath),
		zap.Int("quotes", len(quotes)),
	)
	return nil
}
