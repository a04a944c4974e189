// Package channel keeps the chat networks the booking assistant listens on.
package channel

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/soyeahso/clinicbot/internal/domain"
	"github.com/soyeahso/clinicbot/internal/logging"
)

// Registry holds channels by ID and runs their connections.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]domain.Channel
	running  sync.WaitGroup
	log      *logging.Logger
}

func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		channels: make(map[string]domain.Channel),
		log:      log.Sub("channels"),
	}
}

// Register adds ch. A channel with the same ID is replaced.
func (r *Registry) Register(ch domain.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.channels[ch.ID()]; dup {
		r.log.Warn().Str("channel", ch.ID()).Msg("replacing registered channel")
	}
	r.channels[ch.ID()] = ch
	r.log.Info().Str("channel", ch.ID()).Msg("channel registered")
}

func (r *Registry) Get(id string) (domain.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// List returns the registered IDs in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.channels))
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Status reports every channel, ordered by ID.
func (r *Registry) Status() []domain.ChannelStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ChannelStatus, 0, len(r.channels))
	for _, id := range slices.Sorted(maps.Keys(r.channels)) {
		out = append(out, r.channels[id].Status())
	}
	return out
}

// StartAll runs each channel's Start on its own goroutine. Start blocks for
// the life of a connection, so failures are logged rather than returned.
func (r *Registry) StartAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, ch := range r.channels {
		r.running.Go(func() {
			r.log.Info().Str("channel", id).Msg("starting channel")
			if err := ch.Start(ctx); err != nil {
				r.log.Error().Err(err).Str("channel", id).Msg("channel stopped with error")
			}
		})
	}
}

// StopAll disconnects every channel and waits for the goroutines started
// by StartAll to return, or for ctx to end.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.RLock()
	var errs []error
	for _, id := range slices.Sorted(maps.Keys(r.channels)) {
		if err := r.channels[id].Stop(ctx); err != nil {
			r.log.Error().Err(err).Str("channel", id).Msg("failed to stop channel")
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	r.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		r.running.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}
