package navigator

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/voyagen/channelnav/internal/models"
	"github.com/voyagen/channelnav/internal/store"
)

// memStore is an in-memory store.Store for navigator tests.
type memStore struct {
	mu       sync.Mutex
	channels map[int64]models.Channel
	current  *models.Channel

	// beforeSwap runs inside SwapCurrentChannel before the compare, letting
	// tests move the pointer underneath a navigation.
	beforeSwap func(m *memStore)
	swaps      int
	err        error
}

func newMemStore(chs ...models.Channel) *memStore {
	m := &memStore{channels: make(map[int64]models.Channel)}
	for _, ch := range chs {
		m.channels[ch.Number] = ch
	}
	return m
}

func (m *memStore) setCurrent(ch models.Channel) {
	m.current = &ch
}

func (m *memStore) ListChannels(context.Context) ([]models.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Channel
	for _, ch := range m.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memStore) GetChannelByNumber(_ context.Context, number int64) (*models.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	ch, ok := m.channels[number]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &ch, nil
}

func (m *memStore) GetCurrentChannel(context.Context) (*models.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.current == nil {
		return nil, store.ErrNotFound
	}
	ch := *m.current
	return &ch, nil
}

func (m *memStore) SwapCurrentChannel(_ context.Context, from int64, ch *models.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beforeSwap != nil {
		m.beforeSwap(m)
	}
	if m.current == nil {
		return store.ErrNotFound
	}
	if m.current.Number != from {
		return store.ErrConflict
	}
	c := *ch
	m.current = &c
	m.swaps++
	return nil
}

func (m *memStore) UpsertChannel(_ context.Context, ch *models.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Number] = *ch
	return nil
}

func (m *memStore) RemoveStaleChannels(_ context.Context, keep []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[int64]bool, len(keep))
	for _, n := range keep {
		want[n] = true
	}
	var removed int64
	for n := range m.channels {
		if !want[n] {
			delete(m.channels, n)
			removed++
		}
	}
	return removed, nil
}

func (m *memStore) InitCurrentChannel(_ context.Context, ch *models.Channel) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return false, nil
	}
	c := *ch
	m.current = &c
	return true, nil
}

func (m *memStore) Ping(context.Context) error {
	return m.err
}

var errBackend = errors.New("backend unavailable")
