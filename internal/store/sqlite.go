package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/electro-tech/pricewatch/internal/model"
	"github.com/electro-tech/pricewatch/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS vendors (
	vendor_id      TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	contact_handle TEXT NOT NULL UNIQUE,
	type           TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'active',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS daily_prices (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	date         TEXT NOT NULL,
	vendor_id    TEXT NOT NULL REFERENCES vendors(vendor_id),
	category     TEXT NOT NULL,
	model        TEXT NOT NULL,
	company      TEXT NOT NULL DEFAULT '',
	price        REAL NOT NULL CHECK (price > 0),
	unit         TEXT NOT NULL DEFAULT 'per piece',
	source       TEXT NOT NULL DEFAULT 'message',
	extracted_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS delivery_outbox (
	id             TEXT PRIMARY KEY,
	channel        TEXT NOT NULL,
	payload        TEXT NOT NULL,
	error          TEXT NOT NULL DEFAULT '',
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL,
	last_failed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON daily_prices(date);
CREATE INDEX IF NOT EXISTS idx_daily_prices_vendor ON daily_prices(vendor_id);
CREATE INDEX IF NOT EXISTS idx_daily_prices_group ON daily_prices(date, category, model, company);
CREATE INDEX IF NOT EXISTS idx_vendors_status ON vendors(status);
CREATE INDEX IF NOT EXISTS idx_outbox_next_retry ON delivery_outbox(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertVendor(ctx context.Context, v model.Vendor) error {
	if err := validateVendor(&v); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vendors (vendor_id, name, contact_handle, type, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(vendor_id) DO UPDATE SET
		   name = excluded.name, contact_handle = excluded.contact_handle,
		   type = excluded.type, status = excluded.status`,
		v.VendorID, v.Name, v.ContactHandle, v.Type, string(v.Status), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert vendor %s", v.VendorID)
}

func (s *SQLiteStore) UpsertVendors(ctx context.Context, vendors []model.Vendor) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin vendor upsert")
	}
	defer tx.Rollback()

	var n int
	for _, v := range vendors {
		if err := validateVendor(&v); err != nil {
			return n, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vendors (vendor_id, name, contact_handle, type, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(vendor_id) DO UPDATE SET
			   name = excluded.name, contact_handle = excluded.contact_handle,
			   type = excluded.type, status = excluded.status`,
			v.VendorID, v.Name, v.ContactHandle, v.Type, string(v.Status), time.Now().UTC(),
		); err != nil {
			return n, eris.Wrapf(err, "sqlite: upsert vendor %s", v.VendorID)
		}
		n++
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: commit vendor upsert")
}

func (s *SQLiteStore) GetVendorByHandle(ctx context.Context, handle string) (*model.Vendor, error) {
	normalized := model.NormalizeHandle(handle)
	row := s.db.QueryRowContext(ctx,
		`SELECT vendor_id, name, contact_handle, type, status, created_at
		 FROM vendors WHERE contact_handle = ?`,
		normalized,
	)

	var v model.Vendor
	var status string
	err := row.Scan(&v.VendorID, &v.Name, &v.ContactHandle, &v.Type, &status, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrVendorNotFound, "sqlite: handle %s", normalized)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get vendor by handle")
	}
	v.Status = model.VendorStatus(status)
	return &v, nil
}

func (s *SQLiteStore) ListVendors(ctx context.Context, filter VendorFilter) ([]model.Vendor, error) {
	query := `SELECT vendor_id, name, contact_handle, type, status, created_at FROM vendors WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY vendor_id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list vendors")
	}
	defer rows.Close()

	var vendors []model.Vendor
	for rows.Next() {
		var v model.Vendor
		var status string
		if err := rows.Scan(&v.VendorID, &v.Name, &v.ContactHandle, &v.Type, &status, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan vendor")
		}
		v.Status = model.VendorStatus(status)
		vendors = append(vendors, v)
	}
	return vendors, eris.Wrap(rows.Err(), "sqlite: list vendors iterate")
}

func (s *SQLiteStore) RecordPrice(ctx context.Context, rec model.PriceRecord) (int64, error) {
	if err := validateRecord(rec); err != nil {
		return 0, err
	}
	rec = normalizeRecord(rec)

	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM vendors WHERE vendor_id = ?`, rec.VendorID,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return 0, &ValidationError{Field: "vendor_id", Reason: fmt.Sprintf("unknown vendor %q", rec.VendorID)}
	}
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: check vendor")
	}
	if model.VendorStatus(status) != model.VendorActive {
		return 0, &ValidationError{Field: "vendor_id", Reason: fmt.Sprintf("vendor %q is %s", rec.VendorID, status)}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_prices (date, vendor_id, category, model, company, price, unit, source, extracted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Date.Format(time.DateOnly), rec.VendorID, rec.Category, rec.Model, rec.Company,
		rec.Price.InexactFloat64(), rec.Unit, rec.Source, rec.ExtractedAt.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert price")
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "sqlite: price insert id")
}

func (s *SQLiteStore) CountPrices(ctx context.Context, date time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM daily_prices WHERE date = ?`, date.Format(time.DateOnly),
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count prices")
}

func (s *SQLiteStore) DistinctVendors(ctx context.Context, date time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT vendor_id) FROM daily_prices WHERE date = ?`, date.Format(time.DateOnly),
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: distinct vendors")
}

// minimumQuotesSQLite ranks each (category, model, company) group by
// price with vendor id and insertion order as tie breaks, so the
// winning vendor is stable across runs and drivers.
const minimumQuotesSQLite = `
SELECT category, model, company, price, unit, vendor_id, vendor_name, contact_handle, vendor_type
FROM (
	SELECT p.category, p.model, p.company, p.price, p.unit,
	       v.vendor_id, v.name AS vendor_name, v.contact_handle, v.type AS vendor_type,
	       ROW_NUMBER() OVER (
	           PARTITION BY p.category, p.model, p.company
	           ORDER BY p.price ASC, p.vendor_id ASC, p.id ASC
	       ) AS rn
	FROM daily_prices p
	JOIN vendors v ON v.vendor_id = p.vendor_id
	WHERE p.date = ?
) ranked
WHERE rn = 1
ORDER BY category, price, model`

func (s *SQLiteStore) MinimumQuotes(ctx context.Context, date time.Time) ([]model.AggregatedQuote, error) {
	rows, err := s.db.QueryContext(ctx, minimumQuotesSQLite, date.Format(time.DateOnly))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: minimum quotes")
	}
	defer rows.Close()

	var quotes []model.AggregatedQuote
	for rows.Next() {
		var q model.AggregatedQuote
		var price float64
		if err := rows.Scan(&q.Category, &q.Model, &q.Company, &price, &q.Unit,
			&q.VendorID, &q.VendorName, &q.ContactHandle, &q.VendorType); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan quote")
		}
		q.MinPrice = decimal.NewFromFloat(price)
		quotes = append(quotes, q)
	}
	return quotes, eris.Wrap(rows.Err(), "sqlite: minimum quotes iterate")
}

// Delivery outbox methods

func (s *SQLiteStore) EnqueueOutbox(ctx context.Context, entry resilience.OutboxEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_outbox
		 (id, channel, payload, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type,
		   retry_count = excluded.retry_count, next_retry_at = excluded.next_retry_at,
		   last_failed_at = excluded.last_failed_at`,
		entry.ID, entry.Channel, string(entry.Payload), entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt.UTC(), entry.CreatedAt.UTC(), entry.LastFailedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: enqueue outbox")
}

func (s *SQLiteStore) DequeueOutbox(ctx context.Context, filter resilience.OutboxFilter) ([]resilience.OutboxEntry, error) {
	query := `SELECT id, channel, payload, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM delivery_outbox
	          WHERE next_retry_at <= ? AND retry_count < max_retries`
	args := []any{time.Now().UTC()}

	if filter.Channel != "" {
		query += ` AND channel = ?`
		args = append(args, filter.Channel)
	}
	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dequeue outbox")
	}
	defer rows.Close()

	var entries []resilience.OutboxEntry
	for rows.Next() {
		var e resilience.OutboxEntry
		var payload string
		if err := rows.Scan(&e.ID, &e.Channel, &payload, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outbox entry")
		}
		e.Payload = []byte(payload)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: dequeue outbox iterate")
}

func (s *SQLiteStore) IncrementOutboxRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE delivery_outbox
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE id = ?`,
		nextRetryAt.UTC(), lastErr, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment outbox retry %s", id)
	}
	return checkRowsAffected(res, "outbox entry", id)
}

func (s *SQLiteStore) RemoveOutbox(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM delivery_outbox WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove outbox")
}

func (s *SQLiteStore) CountOutbox(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_outbox`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count outbox")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func validateVendor(v *model.Vendor) error {
	if v.VendorID == "" {
		return &ValidationError{Field: "vendor_id", Reason: "empty"}
	}
	if v.Name == "" {
		return &ValidationError{Field: "name", Reason: "empty"}
	}
	if v.ContactHandle == "" {
		return &ValidationError{Field: "contact_handle", Reason: "empty"}
	}
	v.ContactHandle = model.NormalizeHandle(v.ContactHandle)
	if v.Status == "" {
		v.Status = model.VendorActive
	}
	return nil
}
