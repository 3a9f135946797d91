package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/voyagen/channelnav/internal/cache"
	"github.com/voyagen/channelnav/internal/models"
)

func strPtr(s string) *string { return &s }

func channel(n int64, name string) *models.Channel {
	return &models.Channel{
		Number: n,
		Name:   name,
		Logo:   strPtr("https://img.example/" + name + ".png"),
		URL:    "https://stream.example/" + name + ".m3u8",
	}
}

// newTestSQLite creates a migrated SQLite database in a temp directory.
func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	url := "sqlite3://" + filepath.Join(t.TempDir(), "channels.db")
	if err := RunMigrations(url); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	s, err := NewSQLite(context.Background(), SQLitePath(url))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newTestPostgres connects to TEST_DATABASE_URL and empties both tables.
func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	if err := RunMigrations(dsn); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	ctx := context.Background()
	p, err := NewPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgres() error = %v", err)
	}
	if _, err := p.pool.Exec(ctx, `TRUNCATE channels, current_channel`); err != nil {
		p.Close()
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func TestSQLite(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store { return newTestSQLite(t) })
}

func TestPostgres(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store { return newTestPostgres(t) })
}

// newTestRedis connects to TEST_REDIS_URL when set, otherwise to an in-process miniredis.
func newTestRedis(t *testing.T) *cache.Redis {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		url = "redis://" + miniredis.RunT(t).Addr()
	}
	r, err := cache.New(url)
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	if err := cache.DelPattern(context.Background(), r, "*"); err != nil {
		t.Fatalf("flush: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestCachedStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return NewCachedStore(newTestSQLite(t), newTestRedis(t), time.Minute)
	})
}

// pausingStore blocks GetCurrentChannel after the backend read until release is closed.
type pausingStore struct {
	Store
	read    chan struct{}
	release chan struct{}
}

func (p *pausingStore) GetCurrentChannel(ctx context.Context) (*models.Channel, error) {
	ch, err := p.Store.GetCurrentChannel(ctx)
	close(p.read)
	<-p.release
	return ch, err
}

func TestCachedStore_PointerReadRacingSwap(t *testing.T) {
	ctx := context.Background()
	db := newTestSQLite(t)
	one, two := channel(1, "one"), channel(2, "two")
	for _, ch := range []*models.Channel{one, two} {
		if err := db.UpsertChannel(ctx, ch); err != nil {
			t.Fatalf("UpsertChannel() error = %v", err)
		}
	}
	if _, err := db.InitCurrentChannel(ctx, one); err != nil {
		t.Fatalf("InitCurrentChannel() error = %v", err)
	}

	r := newTestRedis(t)
	paused := &pausingStore{Store: db, read: make(chan struct{}), release: make(chan struct{})}
	slow := NewCachedStore(paused, r, time.Minute)

	done := make(chan *models.Channel, 1)
	go func() {
		ch, err := slow.GetCurrentChannel(ctx)
		if err != nil {
			t.Errorf("GetCurrentChannel() error = %v", err)
		}
		done <- ch
	}()

	<-paused.read
	cs := NewCachedStore(db, r, time.Minute)
	if err := cs.SwapCurrentChannel(ctx, 1, two); err != nil {
		t.Fatalf("SwapCurrentChannel() error = %v", err)
	}
	close(paused.release)
	if ch := <-done; ch != nil && ch.Number != 1 {
		t.Errorf("in-flight read = %d, want 1", ch.Number)
	}

	cur, err := cs.GetCurrentChannel(ctx)
	if err != nil {
		t.Fatalf("GetCurrentChannel() error = %v", err)
	}
	if cur.Number != 2 {
		t.Errorf("current after swap = %d, want 2", cur.Number)
	}
}

func TestCachedStore_ListInvalidatedOnUpsert(t *testing.T) {
	ctx := context.Background()
	cs := NewCachedStore(newTestSQLite(t), newTestRedis(t), time.Minute)

	if err := cs.UpsertChannel(ctx, channel(1, "one")); err != nil {
		t.Fatalf("UpsertChannel() error = %v", err)
	}
	if chs, err := cs.ListChannels(ctx); err != nil || len(chs) != 1 {
		t.Fatalf("ListChannels() = %d, %v; want 1 channel", len(chs), err)
	}
	if err := cs.UpsertChannel(ctx, channel(2, "two")); err != nil {
		t.Fatalf("UpsertChannel() error = %v", err)
	}
	if chs, err := cs.ListChannels(ctx); err != nil || len(chs) != 2 {
		t.Errorf("ListChannels() after upsert = %d, %v; want 2 channels", len(chs), err)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	url := "sqlite3://" + filepath.Join(t.TempDir(), "twice.db")
	for i := 0; i < 2; i++ {
		if err := RunMigrations(url); err != nil {
			t.Fatalf("RunMigrations() pass %d error = %v", i+1, err)
		}
	}
}

func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	seed := func(t *testing.T, s Store, chs ...*models.Channel) {
		t.Helper()
		for _, ch := range chs {
			if err := s.UpsertChannel(ctx, ch); err != nil {
				t.Fatalf("UpsertChannel(%d) error = %v", ch.Number, err)
			}
		}
	}

	t.Run("empty catalog", func(t *testing.T) {
		s := newStore(t)
		channels, err := s.ListChannels(ctx)
		if err != nil {
			t.Fatalf("ListChannels() error = %v", err)
		}
		if len(channels) != 0 {
			t.Errorf("ListChannels() = %d channels, want 0", len(channels))
		}
		if _, err := s.GetCurrentChannel(ctx); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetCurrentChannel() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list ordered by number", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, channel(3, "three"), channel(1, "one"), channel(2, "two"))

		channels, err := s.ListChannels(ctx)
		if err != nil {
			t.Fatalf("ListChannels() error = %v", err)
		}
		if len(channels) != 3 {
			t.Fatalf("ListChannels() = %d channels, want 3", len(channels))
		}
		for i, ch := range channels {
			if ch.Number != int64(i+1) {
				t.Errorf("channels[%d].Number = %d, want %d", i, ch.Number, i+1)
			}
		}
		if channels[0].Logo == nil || *channels[0].Logo != "https://img.example/one.png" {
			t.Errorf("channels[0].Logo = %v", channels[0].Logo)
		}
		if channels[0].Group != nil {
			t.Errorf("channels[0].Group = %v, want nil", *channels[0].Group)
		}
	})

	t.Run("get by number", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, channel(5, "five"))

		ch, err := s.GetChannelByNumber(ctx, 5)
		if err != nil {
			t.Fatalf("GetChannelByNumber() error = %v", err)
		}
		if ch.Name != "five" {
			t.Errorf("Name = %q, want five", ch.Name)
		}
		if _, err := s.GetChannelByNumber(ctx, 6); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetChannelByNumber(6) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("upsert replaces payload", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, channel(1, "old"))
		updated := &models.Channel{Number: 1, Name: "new", URL: "https://stream.example/new", Group: strPtr("News")}
		seed(t, s, updated)

		ch, err := s.GetChannelByNumber(ctx, 1)
		if err != nil {
			t.Fatalf("GetChannelByNumber() error = %v", err)
		}
		if ch.Name != "new" || ch.Logo != nil || ch.Group == nil || *ch.Group != "News" {
			t.Errorf("GetChannelByNumber() = %+v", ch)
		}
	})

	t.Run("swap requires pointer", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, channel(1, "one"))
		if err := s.SwapCurrentChannel(ctx, 1, channel(2, "two")); !errors.Is(err, ErrNotFound) {
			t.Errorf("SwapCurrentChannel() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("init then swap", func(t *testing.T) {
		s := newStore(t)
		one, two := channel(1, "one"), channel(2, "two")
		seed(t, s, one, two)

		created, err := s.InitCurrentChannel(ctx, one)
		if err != nil || !created {
			t.Fatalf("InitCurrentChannel() = %v, %v; want true", created, err)
		}
		created, err = s.InitCurrentChannel(ctx, two)
		if err != nil || created {
			t.Fatalf("second InitCurrentChannel() = %v, %v; want false", created, err)
		}

		cur, err := s.GetCurrentChannel(ctx)
		if err != nil {
			t.Fatalf("GetCurrentChannel() error = %v", err)
		}
		if cur.Number != 1 {
			t.Fatalf("current = %d, want 1", cur.Number)
		}

		if err := s.SwapCurrentChannel(ctx, 1, two); err != nil {
			t.Fatalf("SwapCurrentChannel() error = %v", err)
		}
		cur, err = s.GetCurrentChannel(ctx)
		if err != nil {
			t.Fatalf("GetCurrentChannel() error = %v", err)
		}
		if cur.Number != 2 || cur.Name != "two" || cur.URL != two.URL {
			t.Errorf("current = %+v, want channel two", cur)
		}
	})

	t.Run("swap conflict leaves pointer", func(t *testing.T) {
		s := newStore(t)
		one, two, three := channel(1, "one"), channel(2, "two"), channel(3, "three")
		seed(t, s, one, two, three)
		if _, err := s.InitCurrentChannel(ctx, two); err != nil {
			t.Fatalf("InitCurrentChannel() error = %v", err)
		}

		if err := s.SwapCurrentChannel(ctx, 1, three); !errors.Is(err, ErrConflict) {
			t.Fatalf("SwapCurrentChannel() error = %v, want ErrConflict", err)
		}
		cur, err := s.GetCurrentChannel(ctx)
		if err != nil {
			t.Fatalf("GetCurrentChannel() error = %v", err)
		}
		if cur.Number != 2 {
			t.Errorf("current = %d, want 2", cur.Number)
		}
	})

	t.Run("remove stale channels", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, channel(1, "one"), channel(2, "two"), channel(3, "three"))

		n, err := s.RemoveStaleChannels(ctx, []int64{1, 3})
		if err != nil {
			t.Fatalf("RemoveStaleChannels() error = %v", err)
		}
		if n != 1 {
			t.Errorf("RemoveStaleChannels() = %d, want 1", n)
		}
		if _, err := s.GetChannelByNumber(ctx, 2); !errors.Is(err, ErrNotFound) {
			t.Errorf("channel 2 still present: %v", err)
		}

		n, err = s.RemoveStaleChannels(ctx, nil)
		if err != nil {
			t.Fatalf("RemoveStaleChannels(nil) error = %v", err)
		}
		if n != 2 {
			t.Errorf("RemoveStaleChannels(nil) = %d, want 2", n)
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := newStore(t).Ping(ctx); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})
}

func TestOpen_SQLite(t *testing.T) {
	url := "sqlite3://" + filepath.Join(t.TempDir(), "open.db")
	if err := RunMigrations(url); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	b, err := Open(context.Background(), url)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer b.Close()
	if err := b.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestIsSQLite(t *testing.T) {
	tests := map[string]bool{
		"sqlite3:///data/channels.db":          true,
		"postgres://user@localhost/channels":   false,
		"postgresql://user@localhost/channels": false,
	}
	for url, want := range tests {
		if got := IsSQLite(url); got != want {
			t.Errorf("IsSQLite(%q) = %v, want %v", url, got, want)
		}
	}
	if got := SQLitePath("sqlite3:///data/channels.db"); got != "/data/channels.db" {
		t.Errorf("SQLitePath() = %q", got)
	}
}
