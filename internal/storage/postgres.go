package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pauljones0/deal-radar/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// txInsertRetries bounds how often UpdateDealTx retries after losing an insert race.
const txInsertRetries = 3

// dealColumns is the column order shared by every SELECT and INSERT below.
// seen_count may be NULL in legacy rows; deals read it as 0 so the next merge yields 1.
const dealColumns = `dedupe_key, title, canonical_name, one_liner, url, description, evidence_urls,
	hostname, topic, status, COALESCE(seen_count, 0), first_seen_at, last_seen_at,
	dismissed_reason, dismissed_at, score, created_at, updated_at`

const insertColumns = `dedupe_key, title, canonical_name, one_liner, url, description, evidence_urls,
	hostname, topic, status, seen_count, first_seen_at, last_seen_at,
	dismissed_reason, dismissed_at, score, created_at, updated_at`

const insertValues = `$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18`

// first_seen_at and created_at are never overwritten once the row exists.
const upsertSQL = `INSERT INTO deals (` + insertColumns + `) VALUES (` + insertValues + `)
ON CONFLICT (dedupe_key) DO UPDATE SET
	title = EXCLUDED.title,
	canonical_name = EXCLUDED.canonical_name,
	one_liner = EXCLUDED.one_liner,
	url = EXCLUDED.url,
	description = EXCLUDED.description,
	evidence_urls = EXCLUDED.evidence_urls,
	hostname = EXCLUDED.hostname,
	topic = EXCLUDED.topic,
	status = EXCLUDED.status,
	seen_count = EXCLUDED.seen_count,
	last_seen_at = EXCLUDED.last_seen_at,
	dismissed_reason = EXCLUDED.dismissed_reason,
	dismissed_at = EXCLUDED.dismissed_at,
	score = EXCLUDED.score,
	updated_at = EXCLUDED.updated_at`

const createSQL = `INSERT INTO deals (` + insertColumns + `) VALUES (` + insertValues + `)
ON CONFLICT (dedupe_key) DO NOTHING`

// PostgresStore keeps deals in a Postgres table with a unique dedupe_key.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a pgx pool for dsn and pings it.
func NewPostgres(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

// Migrate creates the deals table and its indexes if missing.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetDeal(ctx context.Context, key string) (*models.Deal, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE dedupe_key = $1`, key)
	deal, err := scanDeal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(models.ErrLookup, key, err)
	}
	return deal, nil
}

func (p *PostgresStore) CreateDeal(ctx context.Context, deal models.Deal) error {
	tag, err := p.pool.Exec(ctx, createSQL, dealArgs(deal)...)
	if err != nil {
		return classify(models.ErrWrite, deal.DedupeKey, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrDealExists
	}
	return nil
}

func (p *PostgresStore) PutDeal(ctx context.Context, deal models.Deal) error {
	if _, err := p.pool.Exec(ctx, upsertSQL, dealArgs(deal)...); err != nil {
		return classify(models.ErrWrite, deal.DedupeKey, err)
	}
	return nil
}

// UpdateDealTx locks the row with SELECT ... FOR UPDATE for the duration of fn. When the row is
// absent and a concurrent transaction inserts it first, the attempt is retried and fn sees that row.
func (p *PostgresStore) UpdateDealTx(ctx context.Context, key string, fn UpdateFunc) error {
	var err error
	for attempt := 0; attempt < txInsertRetries; attempt++ {
		err = p.updateOnce(ctx, key, fn)
		if !errors.Is(err, models.ErrDealExists) {
			return err
		}
	}
	return classify(models.ErrWrite, key, err)
}

func (p *PostgresStore) updateOnce(ctx context.Context, key string, fn UpdateFunc) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return classify(models.ErrLookup, key, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := scanDeal(tx.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE dedupe_key = $1 FOR UPDATE`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err = nil, nil
	}
	if err != nil {
		return classify(models.ErrLookup, key, err)
	}

	next, err := fn(existing)
	if err != nil || next == nil {
		return err
	}

	if existing == nil {
		tag, err := tx.Exec(ctx, createSQL, dealArgs(*next)...)
		if err != nil {
			return classify(models.ErrWrite, key, err)
		}
		if tag.RowsAffected() == 0 {
			return models.ErrDealExists
		}
	} else if _, err := tx.Exec(ctx, upsertSQL, dealArgs(*next)...); err != nil {
		return classify(models.ErrWrite, key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(models.ErrWrite, key, err)
	}
	return nil
}

func (p *PostgresStore) ScanDeals(ctx context.Context, fn func(models.Deal) error) error {
	rows, err := p.pool.Query(ctx, `SELECT `+dealColumns+` FROM deals ORDER BY dedupe_key`)
	if err != nil {
		return fmt.Errorf("query deals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return fmt.Errorf("scan deal: %w", err)
		}
		if err := fn(*deal); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (p *PostgresStore) ScanSnapshots(ctx context.Context, fn func(models.DealSnapshot) error) error {
	rows, err := p.pool.Query(ctx, `SELECT dedupe_key, status, cardinality(evidence_urls), seen_count, last_seen_at FROM deals`)
	if err != nil {
		return fmt.Errorf("query deal snapshots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			s      models.DealSnapshot
			status string
			seen   *int32
		)
		if err := rows.Scan(&s.DedupeKey, &status, &s.EvidenceURLs, &seen, &s.LastSeenAt); err != nil {
			return fmt.Errorf("scan deal snapshot: %w", err)
		}
		s.Status = models.Status(status)
		if seen != nil {
			n := int(*seen)
			s.SeenCount = &n
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (p *PostgresStore) DealsByStatus(ctx context.Context, st models.Status) ([]models.Deal, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+dealColumns+` FROM deals WHERE status = $1 ORDER BY dedupe_key`, string(st))
	if err != nil {
		return nil, fmt.Errorf("query %s deals: %w", st, err)
	}
	defer rows.Close()
	var out []models.Deal
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		out = append(out, *deal)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CountDeals(ctx context.Context) (int, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM deals`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count deals: %w", err)
	}
	return int(n), nil
}

func scanDeal(row pgx.Row) (*models.Deal, error) {
	var (
		d      models.Deal
		status string
		seen   int32
	)
	err := row.Scan(
		&d.DedupeKey, &d.Title, &d.CanonicalName, &d.OneLiner, &d.URL, &d.Description, &d.EvidenceURLs,
		&d.Hostname, &d.Topic, &status, &seen, &d.FirstSeenAt, &d.LastSeenAt,
		&d.DismissedReason, &d.DismissedAt, &d.Score, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Status = models.Status(status)
	d.SeenCount = int(seen)
	return &d, nil
}

func dealArgs(d models.Deal) []any {
	evidence := d.EvidenceURLs
	if evidence == nil {
		evidence = []string{}
	}
	return []any{
		d.DedupeKey, d.Title, d.CanonicalName, d.OneLiner, d.URL, d.Description, evidence,
		d.Hostname, d.Topic, string(d.Status), int32(d.SeenCount), d.FirstSeenAt, d.LastSeenAt,
		d.DismissedReason, d.DismissedAt, d.Score, d.CreatedAt, d.UpdatedAt,
	}
}
