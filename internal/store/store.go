package store

import (
	"context"
	"errors"

	"github.com/voyagen/channelnav/internal/models"
)

var (
	// ErrNotFound is returned when a channel or the current-channel pointer does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by SwapCurrentChannel when the pointer no longer
	// holds the expected channel number.
	ErrConflict = errors.New("current channel changed concurrently")
)

// Store defines persistence for the channel catalog and the current-channel pointer.
type Store interface {
	// ListChannels returns every catalog record ordered by number.
	ListChannels(ctx context.Context) ([]models.Channel, error)
	// GetChannelByNumber returns the catalog record with the given number.
	GetChannelByNumber(ctx context.Context, number int64) (*models.Channel, error)

	// GetCurrentChannel returns the pointer payload, or ErrNotFound when unset.
	GetCurrentChannel(ctx context.Context) (*models.Channel, error)
	// SwapCurrentChannel overwrites the pointer with ch only if it still holds
	// number from. Returns ErrNotFound when the pointer is unset and ErrConflict
	// when it holds a different number.
	SwapCurrentChannel(ctx context.Context, from int64, ch *models.Channel) error

	// UpsertChannel inserts or updates the catalog record keyed by ch.Number.
	UpsertChannel(ctx context.Context, ch *models.Channel) error
	// RemoveStaleChannels deletes catalog records whose number is not in keep.
	RemoveStaleChannels(ctx context.Context, keep []int64) (int64, error)
	// InitCurrentChannel creates the pointer from ch if no pointer exists yet.
	// It reports whether a pointer was created.
	InitCurrentChannel(ctx context.Context, ch *models.Channel) (bool, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}
