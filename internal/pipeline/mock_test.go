package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/electro-tech/pricewatch/internal/delivery"
	"github.com/electro-tech/pricewatch/internal/model"
	"github.com/electro-tech/pricewatch/internal/resilience"
	"github.com/electro-tech/pricewatch/internal/store"
)

// fakeStore is an in-memory stand-in for the price store.
type fakeStore struct {
	vendors map[string]model.Vendor // keyed by normalized handle
	records []model.PriceRecord
	quotes  []model.AggregatedQuote
	outbox  []resilience.OutboxEntry

	// recordFailures makes the next N RecordPrice calls fail with an
	// infrastructure error; quotesErr fails MinimumQuotes outright.
	recordFailures int
	quotesErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{vendors: make(map[string]model.Vendor)}
}

func (s *fakeStore) addVendor(v model.Vendor) {
	s.vendors[model.NormalizeHandle(v.ContactHandle)] = v
}

func (s *fakeStore) UpsertVendor(_ context.Context, v model.Vendor) error {
	s.addVendor(v)
	return nil
}

func (s *fakeStore) UpsertVendors(_ context.Context, vendors []model.Vendor) (int, error) {
	for _, v := range vendors {
		s.addVendor(v)
	}
	return len(vendors), nil
}

func (s *fakeStore) GetVendorByHandle(_ context.Context, handle string) (*model.Vendor, error) {
	v, ok := s.vendors[model.NormalizeHandle(handle)]
	if !ok {
		return nil, store.ErrVendorNotFound
	}
	return &v, nil
}

func (s *fakeStore) ListVendors(_ context.Context, _ store.VendorFilter) ([]model.Vendor, error) {
	out := make([]model.Vendor, 0, len(s.vendors))
	for _, v := range s.vendors {
		out = append(out, v)
	}
	return out, nil
}

func (s *fakeStore) RecordPrice(_ context.Context, rec model.PriceRecord) (int64, error) {
	if s.recordFailures > 0 {
		s.recordFailures--
		return 0, errors.New("database locked")
	}
	s.records = append(s.records, rec)
	return int64(len(s.records)), nil
}

func (s *fakeStore) CountPrices(_ context.Context, _ time.Time) (int, error) {
	return len(s.records), nil
}

func (s *fakeStore) DistinctVendors(_ context.Context, _ time.Time) (int, error) {
	seen := make(map[string]bool)
	for _, r := range s.records {
		seen[r.VendorID] = true
	}
	return len(seen), nil
}

func (s *fakeStore) MinimumQuotes(_ context.Context, _ time.Time) ([]model.AggregatedQuote, error) {
	if s.quotesErr != nil {
		return nil, s.quotesErr
	}
	return s.quotes, nil
}

func (s *fakeStore) EnqueueOutbox(_ context.Context, entry resilience.OutboxEntry) error {
	if entry.ID == "" {
		entry.ID = fmt.Sprintf("ob-%d", len(s.outbox)+1)
	}
	s.outbox = append(s.outbox, entry)
	return nil
}

func (s *fakeStore) DequeueOutbox(_ context.Context, filter resilience.OutboxFilter) ([]resilience.OutboxEntry, error) {
	var out []resilience.OutboxEntry
	for i := range s.outbox {
		e := s.outbox[i]
		if filter.Channel != "" && e.Channel != filter.Channel {
			continue
		}
		if e.NextRetryAt.After(time.Now()) || !e.CanRetry() {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) IncrementOutboxRetry(_ context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			s.outbox[i].RetryCount++
			s.outbox[i].NextRetryAt = nextRetryAt
			s.outbox[i].Error = lastErr
			return nil
		}
	}
	return errors.New("outbox entry not found")
}

func (s *fakeStore) RemoveOutbox(_ context.Context, id string) error {
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			s.outbox = append(s.outbox[:i], s.outbox[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *fakeStore) CountOutbox(_ context.Context) (int, error) { return len(s.outbox), nil }

func (s *fakeStore) Ping(_ context.Context) error    { return nil }
func (s *fakeStore) Migrate(_ context.Context) error { return nil }
func (s *fakeStore) Close() error                    { return nil }

// fakeSource returns canned messages and fails on demand.
type fakeSource struct {
	messages []model.RawMessage

	collectFailures int // fail this many Collects, then succeed
	collectErr      error
	ackErr          error

	collects int
	acks     int
}

func (s *fakeSource) Name() string { return "test_source" }

func (s *fakeSource) Collect(_ context.Context) ([]model.RawMessage, error) {
	s.collects++
	if s.collectErr != nil {
		return nil, s.collectErr
	}
	if s.collectFailures > 0 {
		s.collectFailures--
		return nil, errors.New("source unreachable")
	}
	return s.messages, nil
}

func (s *fakeSource) Ack(_ context.Context) error {
	s.acks++
	return s.ackErr
}

func (s *fakeSource) Ping(_ context.Context) error { return nil }

// fakeSink records what the report stage hands it.
type fakeSink struct {
	err error

	writes       int
	lastSummary  string
	lastDetailed string
	lastQuotes   []model.AggregatedQuote
}

func (s *fakeSink) Name() string { return "fake" }

func (s *fakeSink) Write(_ context.Context, _ time.Time, summary, detailed string, quotes []model.AggregatedQuote) error {
	if s.err != nil {
		return s.err
	}
	s.writes++
	s.lastSummary = summary
	s.lastDetailed = detailed
	s.lastQuotes = quotes
	return nil
}

// fakeChannel is the delivery endpoint.
type fakeChannel struct {
	failures int // fail this many sends, then succeed
	err      error

	sent []delivery.Message
}

func (c *fakeChannel) Name() string { return "fake_channel" }

func (c *fakeChannel) Send(_ context.Context, msg delivery.Message) error {
	if c.err != nil {
		return c.err
	}
	if c.failures > 0 {
		c.failures--
		return errors.New("gateway timeout")
	}
	c.sent = append(c.sent, msg)
	return nil
}
