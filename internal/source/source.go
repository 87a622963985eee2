// Package source collects raw vendor messages from drop locations. The
// exporter on the phone side writes one text file per message, named
// YYYYMMDD_HHMM_<handle>.txt; collectors pick those up, hand them to the
// pipeline, and rename them once the batch is ingested.
package source

import (
	"context"
	"strings"
	"time"

	"github.com/electro-tech/pricewatch/internal/model"
)

// Source yields one batch of raw messages per collection pass. Ack marks
// the batch consumed so the next pass does not see it again; it is called
// only after the pipeline has recorded the batch. Ping probes the drop
// location without collecting anything.
type Source interface {
	Name() string
	Collect(ctx context.Context) ([]model.RawMessage, error)
	Ack(ctx context.Context) error
	Ping(ctx context.Context) error
}

const processedPrefix = "processed_"

// eligibleName reports whether a drop file should be collected.
func eligibleName(name string) bool {
	return strings.HasSuffix(name, ".txt") && !strings.HasPrefix(name, processedPrefix)
}

// parseDropName extracts the sender handle and timestamp from a drop file
// name of the form YYYYMMDD_HHMM_<handle>.txt.
func parseDropName(name string) (handle string, receivedAt time.Time, ok bool) {
	stem := strings.TrimSuffix(name, ".txt")
	parts := strings.SplitN(stem, "_", 3)
	if len(parts) < 3 || parts[2] == "" {
		return "", time.Time{}, false
	}

	ts, err := time.ParseInLocation("20060102_1504", parts[0]+"_"+parts[1], time.Local)
	if err != nil {
		return "", time.Time{}, false
	}
	return parts[2], ts, true
}
