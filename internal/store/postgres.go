package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voyagen/channelnav/internal/models"
)

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping checks the connection to PostgreSQL.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// ListChannels returns the whole catalog ordered by number.
func (p *Postgres) ListChannels(ctx context.Context) ([]models.Channel, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT number, name, logo, url, group_title FROM channels ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("ListChannels: %w", err)
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(&ch.Number, &ch.Name, &ch.Logo, &ch.URL, &ch.Group); err != nil {
			return nil, fmt.Errorf("ListChannels scan: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListChannels: %w", err)
	}
	return channels, nil
}

// GetChannelByNumber returns the catalog record with the given number.
func (p *Postgres) GetChannelByNumber(ctx context.Context, number int64) (*models.Channel, error) {
	var ch models.Channel
	err := p.pool.QueryRow(ctx,
		`SELECT number, name, logo, url, group_title FROM channels WHERE number = $1`,
		number,
	).Scan(&ch.Number, &ch.Name, &ch.Logo, &ch.URL, &ch.Group)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetChannelByNumber: %w", err)
	}
	return &ch, nil
}

// GetCurrentChannel returns the pointer row.
func (p *Postgres) GetCurrentChannel(ctx context.Context) (*models.Channel, error) {
	var ch models.Channel
	err := p.pool.QueryRow(ctx,
		`SELECT number, name, logo, url, group_title FROM current_channel WHERE id = 1`,
	).Scan(&ch.Number, &ch.Name, &ch.Logo, &ch.URL, &ch.Group)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetCurrentChannel: %w", err)
	}
	return &ch, nil
}

// SwapCurrentChannel overwrites the pointer with ch if it still holds number from.
func (p *Postgres) SwapCurrentChannel(ctx context.Context, from int64, ch *models.Channel) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE current_channel
		 SET number = $2, name = $3, logo = $4, url = $5, group_title = $6, updated_at = NOW()
		 WHERE id = 1 AND number = $1`,
		from, ch.Number, ch.Name, ch.Logo, ch.URL, ch.Group,
	)
	if err != nil {
		return fmt.Errorf("SwapCurrentChannel: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := p.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM current_channel WHERE id = 1)`,
	).Scan(&exists); err != nil {
		return fmt.Errorf("SwapCurrentChannel: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// UpsertChannel inserts or updates the catalog record keyed by number.
func (p *Postgres) UpsertChannel(ctx context.Context, ch *models.Channel) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO channels (number, name, logo, url, group_title)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (number) DO UPDATE SET
		   name = EXCLUDED.name, logo = EXCLUDED.logo, url = EXCLUDED.url,
		   group_title = EXCLUDED.group_title, updated_at = NOW()`,
		ch.Number, ch.Name, ch.Logo, ch.URL, ch.Group,
	)
	if err != nil {
		return fmt.Errorf("UpsertChannel: %w", err)
	}
	return nil
}

// RemoveStaleChannels deletes catalog records whose number is not in keep.
func (p *Postgres) RemoveStaleChannels(ctx context.Context, keep []int64) (int64, error) {
	if keep == nil {
		keep = []int64{}
	}
	tag, err := p.pool.Exec(ctx, `DELETE FROM channels WHERE NOT (number = ANY($1))`, keep)
	if err != nil {
		return 0, fmt.Errorf("RemoveStaleChannels: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InitCurrentChannel creates the pointer row if it does not exist.
func (p *Postgres) InitCurrentChannel(ctx context.Context, ch *models.Channel) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO current_channel (id, number, name, logo, url, group_title)
		 VALUES (1, $1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		ch.Number, ch.Name, ch.Logo, ch.URL, ch.Group,
	)
	if err != nil {
		return false, fmt.Errorf("InitCurrentChannel: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
