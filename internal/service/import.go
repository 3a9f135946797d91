package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/voyagen/channelnav/internal/cache"
	"github.com/voyagen/channelnav/internal/fetcher"
	"github.com/voyagen/channelnav/internal/models"
	"github.com/voyagen/channelnav/internal/store"
)

// importLockTTL bounds how long a crashed import can block the next one.
const importLockTTL = 10 * time.Minute

// ErrImportRunning is returned when another import holds the lock.
var ErrImportRunning = errors.New("another import is already running")

// ErrEmptyPlaylist is returned when pruning would empty the catalog.
var ErrEmptyPlaylist = errors.New("playlist has no channels; refusing to prune the catalog")

// ImportOptions controls a catalog import.
type ImportOptions struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	// Prune removes catalog numbers that are absent from the playlist.
	// It is refused when the playlist yields no channels.
	Prune bool
	// Current initializes the pointer to this channel number when no pointer
	// exists yet. Zero leaves the pointer alone.
	Current int64
}

// ImportResult summarizes what an import changed.
type ImportResult struct {
	Channels   int   `json:"channels"`
	Duplicates int   `json:"duplicates"`
	Removed    int64 `json:"removed"`
	CurrentSet bool  `json:"current_set"`
}

// Import fetches the playlist at opts.URL and loads it into the catalog.
// When rds is non-nil the import runs under a Redis lock so concurrent
// imports from several hosts cannot interleave.
func Import(ctx context.Context, s store.Store, rds *cache.Redis, opts ImportOptions) (ImportResult, error) {
	if opts.URL == "" {
		return ImportResult{}, fmt.Errorf("playlist URL is required")
	}
	if rds != nil {
		unlock, err := cache.TryLock(ctx, rds, cache.ImportLockKey, importLockTTL)
		if errors.Is(err, cache.ErrLocked) {
			return ImportResult{}, ErrImportRunning
		}
		if err != nil {
			return ImportResult{}, err
		}
		defer unlock()
	}

	channels, err := fetcher.FetchM3U(ctx, opts.URL, opts.UserAgent, opts.Timeout)
	if err != nil {
		return ImportResult{}, fmt.Errorf("fetch: %w", err)
	}
	return Apply(ctx, s, channels, opts)
}

// Apply upserts channels into the catalog. Only the first entry for a given
// number is kept. URL, UserAgent and Timeout in opts are ignored.
func Apply(ctx context.Context, s store.Store, channels []models.Channel, opts ImportOptions) (ImportResult, error) {
	var res ImportResult
	seen := make(map[int64]int, len(channels))
	keep := make([]int64, 0, len(channels))

	for i := range channels {
		// Allow graceful shutdown during long imports.
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("import cancelled: %w", err)
		}
		ch := &channels[i]
		if _, dup := seen[ch.Number]; dup {
			log.Printf("import: duplicate channel number %d (%q), keeping first", ch.Number, ch.Name)
			res.Duplicates++
			continue
		}
		seen[ch.Number] = i

		if err := s.UpsertChannel(ctx, ch); err != nil {
			return res, fmt.Errorf("UpsertChannel: %w", err)
		}
		keep = append(keep, ch.Number)
		res.Channels++
	}

	if opts.Prune {
		if len(keep) == 0 {
			return res, ErrEmptyPlaylist
		}
		n, err := s.RemoveStaleChannels(ctx, keep)
		if err != nil {
			return res, fmt.Errorf("RemoveStaleChannels: %w", err)
		}
		res.Removed = n
	}

	if opts.Current != 0 {
		i, ok := seen[opts.Current]
		if !ok {
			return res, fmt.Errorf("channel %d is not in the playlist", opts.Current)
		}
		created, err := s.InitCurrentChannel(ctx, &channels[i])
		if err != nil {
			return res, fmt.Errorf("InitCurrentChannel: %w", err)
		}
		res.CurrentSet = created
	}
	return res, nil
}
