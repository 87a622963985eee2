package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/electro-tech/pricewatch/internal/db"
	"github.com/electro-tech/pricewatch/internal/model"
	"github.com/electro-tech/pricewatch/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot path (one lookup plus one insert per
// extracted price).
var preparedStatements = map[string]string{
	"check_vendor": `SELECT status FROM vendors WHERE vendor_id = $1`,
	"insert_price": `INSERT INTO daily_prices (date, vendor_id, category, model, company, price, unit, source, extracted_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
	"count_prices": `SELECT COUNT(*) FROM daily_prices WHERE date = $1`,
	"get_vendor":   `SELECT vendor_id, name, contact_handle, type, status, created_at FROM vendors WHERE contact_handle = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults. The
	// pipeline itself is sequential; headroom is for the ops server.
	maxConns := int32(5)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for bulk-load helpers.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS vendors (
	vendor_id      TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	contact_handle TEXT NOT NULL UNIQUE,
	type           TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'active',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS daily_prices (
	id           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	date         DATE NOT NULL,
	vendor_id    TEXT NOT NULL REFERENCES vendors(vendor_id),
	category     TEXT NOT NULL,
	model        TEXT NOT NULL,
	company      TEXT NOT NULL DEFAULT '',
	price        NUMERIC(12,2) NOT NULL CHECK (price > 0),
	unit         TEXT NOT NULL DEFAULT 'per piece',
	source       TEXT NOT NULL DEFAULT 'message',
	extracted_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS delivery_outbox (
	id             TEXT PRIMARY KEY,
	channel        TEXT NOT NULL,
	payload        JSONB NOT NULL,
	error          TEXT NOT NULL DEFAULT '',
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	last_failed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON daily_prices(date);
CREATE INDEX IF NOT EXISTS idx_daily_prices_vendor ON daily_prices(vendor_id);
CREATE INDEX IF NOT EXISTS idx_daily_prices_group ON daily_prices(date, category, model, company);
CREATE INDEX IF NOT EXISTS idx_vendors_status ON vendors(status);
CREATE INDEX IF NOT EXISTS idx_outbox_next_retry ON delivery_outbox(next_retry_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertVendor(ctx context.Context, v model.Vendor) error {
	if err := validateVendor(&v); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO vendors (vendor_id, name, contact_handle, type, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (vendor_id) DO UPDATE SET
		   name = EXCLUDED.name, contact_handle = EXCLUDED.contact_handle,
		   type = EXCLUDED.type, status = EXCLUDED.status`,
		v.VendorID, v.Name, v.ContactHandle, v.Type, string(v.Status), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert vendor %s", v.VendorID)
}

func (s *PostgresStore) UpsertVendors(ctx context.Context, vendors []model.Vendor) (int, error) {
	rows := make([][]any, 0, len(vendors))
	for i := range vendors {
		if err := validateVendor(&vendors[i]); err != nil {
			return 0, err
		}
		v := vendors[i]
		rows = append(rows, []any{v.VendorID, v.Name, v.ContactHandle, v.Type, string(v.Status)})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "vendors",
		Columns:      []string{"vendor_id", "name", "contact_handle", "type", "status"},
		ConflictKeys: []string{"vendor_id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: bulk upsert vendors")
	}
	return int(n), nil
}

func (s *PostgresStore) GetVendorByHandle(ctx context.Context, handle string) (*model.Vendor, error) {
	normalized := model.NormalizeHandle(handle)

	var v model.Vendor
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT vendor_id, name, contact_handle, type, status, created_at FROM vendors WHERE contact_handle = $1`,
		normalized,
	).Scan(&v.VendorID, &v.Name, &v.ContactHandle, &v.Type, &status, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrVendorNotFound, "postgres: handle %s", normalized)
		}
		return nil, eris.Wrap(err, "postgres: get vendor by handle")
	}
	v.Status = model.VendorStatus(status)
	return &v, nil
}

func (s *PostgresStore) ListVendors(ctx context.Context, filter VendorFilter) ([]model.Vendor, error) {
	query := `SELECT vendor_id, name, contact_handle, type, status, created_at FROM vendors WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY vendor_id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list vendors")
	}
	defer rows.Close()

	var vendors []model.Vendor
	for rows.Next() {
		var v model.Vendor
		var status string
		if err := rows.Scan(&v.VendorID, &v.Name, &v.ContactHandle, &v.Type, &status, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan vendor")
		}
		v.Status = model.VendorStatus(status)
		vendors = append(vendors, v)
	}
	return vendors, eris.Wrap(rows.Err(), "postgres: list vendors iterate")
}

func (s *PostgresStore) RecordPrice(ctx context.Context, rec model.PriceRecord) (int64, error) {
	if err := validateRecord(rec); err != nil {
		return 0, err
	}
	rec = normalizeRecord(rec)

	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM vendors WHERE vendor_id = $1`, rec.VendorID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &ValidationError{Field: "vendor_id", Reason: fmt.Sprintf("unknown vendor %q", rec.VendorID)}
	}
	if err != nil {
		return 0, eris.Wrap(err, "postgres: check vendor")
	}
	if model.VendorStatus(status) != model.VendorActive {
		return 0, &ValidationError{Field: "vendor_id", Reason: fmt.Sprintf("vendor %q is %s", rec.VendorID, status)}
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO daily_prices (date, vendor_id, category, model, company, price, unit, source, extracted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		rec.Date.Format(time.DateOnly), rec.VendorID, rec.Category, rec.Model, rec.Company,
		rec.Price.String(), rec.Unit, rec.Source, rec.ExtractedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert price")
	}
	return id, nil
}

func (s *PostgresStore) CountPrices(ctx context.Context, date time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM daily_prices WHERE date = $1`, date.Format(time.DateOnly),
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count prices")
}

func (s *PostgresStore) DistinctVendors(ctx context.Context, date time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT vendor_id) FROM daily_prices WHERE date = $1`, date.Format(time.DateOnly),
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: distinct vendors")
}

// minimumQuotesPostgres mirrors the SQLite ranking query; prices come
// back as text to keep their exact decimal representation.
const minimumQuotesPostgres = `
SELECT category, model, company, price::text, unit, vendor_id, vendor_name, contact_handle, vendor_type
FROM (
	SELECT p.category, p.model, p.company, p.price, p.unit,
	       v.vendor_id, v.name AS vendor_name, v.contact_handle, v.type AS vendor_type,
	       ROW_NUMBER() OVER (
	           PARTITION BY p.category, p.model, p.company
	           ORDER BY p.price ASC, p.vendor_id ASC, p.id ASC
	       ) AS rn
	FROM daily_prices p
	JOIN vendors v ON v.vendor_id = p.vendor_id
	WHERE p.date = $1
) ranked
WHERE rn = 1
ORDER BY ranked.category, ranked.price, ranked.model`

// Delivery outbox methods

func (s *PostgresStore) EnqueueOutbox(ctx context.Context, entry resilience.OutboxEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO delivery_outbox
		 (id, channel, payload, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $4, error_type = $5, retry_count = $6,
		   next_retry_at = $8, last_failed_at = $10`,
		entry.ID, entry.Channel, string(entry.Payload), entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue outbox")
}

func (s *PostgresStore) DequeueOutbox(ctx context.Context, filter resilience.OutboxFilter) ([]resilience.OutboxEntry, error) {
	query := `SELECT id, channel, payload, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM delivery_outbox
	          WHERE next_retry_at <= now() AND retry_count < max_retries`
	args := []any{}
	argIdx := 1

	if filter.Channel != "" {
		query += fmt.Sprintf(` AND channel = $%d`, argIdx)
		args = append(args, filter.Channel)
		argIdx++
	}

	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dequeue outbox")
	}
	defer rows.Close()

	var entries []resilience.OutboxEntry
	for rows.Next() {
		var e resilience.OutboxEntry
		if err := rows.Scan(&e.ID, &e.Channel, &e.Payload, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outbox entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: dequeue outbox iterate")
}

func (s *PostgresStore) IncrementOutboxRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE delivery_outbox
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment outbox retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("outbox entry not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) RemoveOutbox(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM delivery_outbox WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove outbox")
}

func (s *PostgresStore) CountOutbox(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM delivery_outbox`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count outbox")
}

func (s *PostgresStore) MinimumQuotes(ctx context.Context, date time.Time) ([]model.AggregatedQuote, error) {
	rows, err := s.pool.Query(ctx, minimumQuotesPostgres, date.Format(time.DateOnly))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: minimum quotes")
	}
	defer rows.Close()

	var quotes []model.AggregatedQuote
	for rows.Next() {
		var q model.AggregatedQuote
		var price string
		if err := rows.Scan(&q.Category, &q.Model, &q.Company, &price, &q.Unit,
			&q.VendorID, &q.VendorName, &q.ContactHandle, &q.VendorType); err != nil {
			return nil, eris.Wrap(err, "postgres: scan quote")
		}
		q.MinPrice, err = decimal.NewFromString(price)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: parse price %q", price)
		}
		quotes = append(quotes, q)
	}
	return quotes, eris.Wrap(rows.Err(), "postgres: minimum quotes iterate")
}
