// Package navigator implements current-channel navigation over a channel
// catalog: listing, reading the pointer, and stepping it to the adjacent
// channel number.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/voyagen/channelnav/internal/models"
	"github.com/voyagen/channelnav/internal/store"
)

// Direction is the step applied to the pointer's channel number.
type Direction int64

const (
	Previous Direction = -1
	Next     Direction = 1
)

func (d Direction) String() string {
	if d == Previous {
		return "previous"
	}
	return "next"
}

var (
	// ErrCurrentChannelNotSet is returned when no pointer record exists.
	ErrCurrentChannelNotSet = errors.New("current channel doesn't exist")
	// ErrAdjacentChannelNotFound matches any AdjacentChannelNotFoundError.
	ErrAdjacentChannelNotFound = errors.New("adjacent channel doesn't exist")
	// ErrConflict is returned when the pointer kept moving under every attempt.
	ErrConflict = errors.New("current channel is being changed concurrently")
)

// AdjacentChannelNotFoundError reports that no catalog record sits at the
// pointer's number plus Direction. Gaps and list ends look the same.
type AdjacentChannelNotFoundError struct {
	Direction Direction
	From      int64
}

func (e *AdjacentChannelNotFoundError) Error() string {
	return fmt.Sprintf("%s channel doesn't exist (from %d)", e.Direction, e.From)
}

func (e *AdjacentChannelNotFoundError) Is(target error) bool {
	return target == ErrAdjacentChannelNotFound
}

// maxSwapAttempts bounds the read-compute-swap loop when the pointer moves concurrently.
const maxSwapAttempts = 3

// Navigator serves the catalog and moves the current-channel pointer.
// It holds no state of its own; every call reads the store.
type Navigator struct {
	store store.Store
}

// New returns a Navigator backed by s.
func New(s store.Store) *Navigator {
	return &Navigator{store: s}
}

// ListChannels returns every catalog record. An empty catalog yields an empty, non-nil slice.
func (n *Navigator) ListChannels(ctx context.Context) ([]models.Channel, error) {
	channels, err := n.store.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	if channels == nil {
		channels = []models.Channel{}
	}
	return channels, nil
}

// CurrentChannel returns the pointer payload or ErrCurrentChannelNotSet.
func (n *Navigator) CurrentChannel(ctx context.Context) (*models.Channel, error) {
	ch, err := n.store.GetCurrentChannel(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCurrentChannelNotSet
	}
	if err != nil {
		return nil, fmt.Errorf("current channel: %w", err)
	}
	return ch, nil
}

// PreviousChannel moves the pointer to number-1.
func (n *Navigator) PreviousChannel(ctx context.Context) (*models.Channel, error) {
	return n.Step(ctx, Previous)
}

// NextChannel moves the pointer to number+1.
func (n *Navigator) NextChannel(ctx context.Context) (*models.Channel, error) {
	return n.Step(ctx, Next)
}

// Step moves the pointer one channel in direction d and returns the new payload.
// The pointer is only written through a compare-and-set on its current number,
// so a failed step never leaves a partial update.
func (n *Navigator) Step(ctx context.Context, d Direction) (*models.Channel, error) {
	for attempt := 1; attempt <= maxSwapAttempts; attempt++ {
		cur, err := n.CurrentChannel(ctx)
		if err != nil {
			return nil, err
		}

		target, err := n.store.GetChannelByNumber(ctx, cur.Number+int64(d))
		if errors.Is(err, store.ErrNotFound) {
			return nil, &AdjacentChannelNotFoundError{Direction: d, From: cur.Number}
		}
		if err != nil {
			return nil, fmt.Errorf("%s channel: %w", d, err)
		}

		err = n.store.SwapCurrentChannel(ctx, cur.Number, target)
		switch {
		case err == nil:
			return target, nil
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrCurrentChannelNotSet
		case errors.Is(err, store.ErrConflict):
			log.Printf("navigator: %s from %d lost race (attempt %d/%d)", d, cur.Number, attempt, maxSwapAttempts)
			continue
		default:
			return nil, fmt.Errorf("%s channel: %w", d, err)
		}
	}
	return nil, ErrConflict
}
