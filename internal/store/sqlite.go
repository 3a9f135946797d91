package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/voyagen/channelnav/internal/models"
)

// SQLite implements Store on a local SQLite file. It suits single-box
// deployments where the display client and API share one host.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the database file at path. Run migrations before use.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &SQLite{db: db}, nil
}

// sqliteDSN adds a busy timeout so concurrent swaps wait for the write lock
// instead of failing with SQLITE_BUSY.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000"
}

// Close closes the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) ListChannels(ctx context.Context) ([]models.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT number, name, logo, url, group_title FROM channels ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("ListChannels: %w", err)
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("ListChannels scan: %w", err)
		}
		channels = append(channels, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListChannels: %w", err)
	}
	return channels, nil
}

func (s *SQLite) GetChannelByNumber(ctx context.Context, number int64) (*models.Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT number, name, logo, url, group_title FROM channels WHERE number = ?`, number)
	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetChannelByNumber: %w", err)
	}
	return ch, nil
}

func (s *SQLite) GetCurrentChannel(ctx context.Context) (*models.Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT number, name, logo, url, group_title FROM current_channel WHERE id = 1`)
	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetCurrentChannel: %w", err)
	}
	return ch, nil
}

func (s *SQLite) SwapCurrentChannel(ctx context.Context, from int64, ch *models.Channel) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE current_channel
		 SET number = ?, name = ?, logo = ?, url = ?, group_title = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = 1 AND number = ?`,
		ch.Number, ch.Name, ch.Logo, ch.URL, ch.Group, from,
	)
	if err != nil {
		return fmt.Errorf("SwapCurrentChannel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SwapCurrentChannel: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM current_channel WHERE id = 1)`,
	).Scan(&exists); err != nil {
		return fmt.Errorf("SwapCurrentChannel: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (s *SQLite) UpsertChannel(ctx context.Context, ch *models.Channel) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (number, name, logo, url, group_title)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (number) DO UPDATE SET
		   name = excluded.name, logo = excluded.logo, url = excluded.url,
		   group_title = excluded.group_title, updated_at = CURRENT_TIMESTAMP`,
		ch.Number, ch.Name, ch.Logo, ch.URL, ch.Group,
	)
	if err != nil {
		return fmt.Errorf("UpsertChannel: %w", err)
	}
	return nil
}

func (s *SQLite) RemoveStaleChannels(ctx context.Context, keep []int64) (int64, error) {
	query := `DELETE FROM channels`
	args := make([]any, 0, len(keep))
	if len(keep) > 0 {
		query += ` WHERE number NOT IN (?` + strings.Repeat(", ?", len(keep)-1) + `)`
		for _, n := range keep {
			args = append(args, n)
		}
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("RemoveStaleChannels: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("RemoveStaleChannels: %w", err)
	}
	return n, nil
}

func (s *SQLite) InitCurrentChannel(ctx context.Context, ch *models.Channel) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO current_channel (id, number, name, logo, url, group_title)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		ch.Number, ch.Name, ch.Logo, ch.URL, ch.Group,
	)
	if err != nil {
		return false, fmt.Errorf("InitCurrentChannel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("InitCurrentChannel: %w", err)
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(r rowScanner) (*models.Channel, error) {
	var (
		ch          models.Channel
		logo, group sql.NullString
	)
	if err := r.Scan(&ch.Number, &ch.Name, &logo, &ch.URL, &group); err != nil {
		return nil, err
	}
	if logo.Valid {
		ch.Logo = &logo.String
	}
	if group.Valid {
		ch.Group = &group.String
	}
	return &ch, nil
}
