package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/voyagen/channelnav/internal/models"
	"github.com/voyagen/channelnav/internal/store"
)

func newTestStore(t *testing.T) *store.SQLite {
	t.Helper()
	url := "sqlite3://" + filepath.Join(t.TempDir(), "import.db")
	if err := store.RunMigrations(url); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	s, err := store.NewSQLite(context.Background(), store.SQLitePath(url))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func numbers(t *testing.T, s store.Store) []int64 {
	t.Helper()
	chs, err := s.ListChannels(context.Background())
	if err != nil {
		t.Fatalf("ListChannels() error = %v", err)
	}
	out := make([]int64, len(chs))
	for i, ch := range chs {
		out[i] = ch.Number
	}
	return out
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := []models.Channel{
		{Number: 1, Name: "one", URL: "u1"},
		{Number: 2, Name: "two", URL: "u2"},
		{Number: 2, Name: "two-dup", URL: "u2b"},
		{Number: 3, Name: "three", URL: "u3"},
	}
	res, err := Apply(ctx, s, first, ImportOptions{Current: 2})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Channels != 3 || res.Duplicates != 1 || !res.CurrentSet {
		t.Errorf("Apply() = %+v", res)
	}
	cur, err := s.GetCurrentChannel(ctx)
	if err != nil {
		t.Fatalf("GetCurrentChannel() error = %v", err)
	}
	if cur.Number != 2 || cur.Name != "two" {
		t.Errorf("current = %+v, want first channel 2", cur)
	}

	second := []models.Channel{
		{Number: 1, Name: "one", URL: "u1"},
		{Number: 3, Name: "three", URL: "u3"},
	}
	res, err = Apply(ctx, s, second, ImportOptions{Prune: true, Current: 1})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Removed != 1 || res.CurrentSet {
		t.Errorf("Apply() = %+v, want 1 removed and pointer untouched", res)
	}
	if got := numbers(t, s); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("catalog = %v, want [1 3]", got)
	}
}

func TestApply_PruneRefusesEmptyPlaylist(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := Apply(ctx, s, []models.Channel{{Number: 1, Name: "one"}, {Number: 2, Name: "two"}}, ImportOptions{}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if _, err := Apply(ctx, s, nil, ImportOptions{Prune: true}); !errors.Is(err, ErrEmptyPlaylist) {
		t.Fatalf("Apply() error = %v, want ErrEmptyPlaylist", err)
	}
	if got := numbers(t, s); len(got) != 2 {
		t.Errorf("catalog = %v, want both channels kept", got)
	}
}

func TestApply_UnknownCurrent(t *testing.T) {
	s := newTestStore(t)
	chs := []models.Channel{{Number: 1, Name: "one"}}
	if _, err := Apply(context.Background(), s, chs, ImportOptions{Current: 9}); err == nil {
		t.Fatal("Apply() expected error for channel missing from playlist")
	}
}

func TestImport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Join([]string{
			"#EXTM3U",
			`#EXTINF:-1 tvg-logo="a.png",Alpha`,
			"https://stream.example/a",
			`#EXTINF:-1 tvg-logo="b.png",Beta`,
			"https://stream.example/b",
		}, "\n")))
	}))
	defer srv.Close()

	s := newTestStore(t)
	res, err := Import(context.Background(), s, nil, ImportOptions{URL: srv.URL, Timeout: 5 * time.Second, Current: 1})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Channels != 2 || !res.CurrentSet {
		t.Errorf("Import() = %+v", res)
	}
	if got := numbers(t, s); len(got) != 2 {
		t.Errorf("catalog = %v, want 2 channels", got)
	}
}

func TestImport_RequiresURL(t *testing.T) {
	if _, err := Import(context.Background(), newTestStore(t), nil, ImportOptions{}); err == nil {
		t.Fatal("Import() expected error without URL")
	}
}
