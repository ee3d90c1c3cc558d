package coordinator

import (
	"context"
	"fmt"

	"github.com/bnema/mxload/internal/domain"
	"github.com/bnema/mxload/internal/metrics"
	"github.com/bnema/mxload/internal/ports"
	"go.uber.org/zap"
)

// Registry is the process-wide credential table. All mutation goes through
// one owning goroutine draining the updates channel; everything else only
// submits. Last write per username wins.
type Registry struct {
	log     *zap.Logger
	store   ports.TokenStore
	updates chan domain.TokenUpdate

	tokens map[string]domain.TokenUpdate
	done   chan struct{}
}

func NewRegistry(log *zap.Logger, store ports.TokenStore) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		log:     log,
		store:   store,
		updates: make(chan domain.TokenUpdate, 256),
		done:    make(chan struct{}),
	}
}

// Load seeds the table from the persisted store. Call once before Run.
func (r *Registry) Load(ctx context.Context) error {
	tokens, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load token registry: %w", err)
	}
	r.tokens = tokens
	r.log.Info("token registry loaded", zap.Int("entries", len(tokens)))
	return nil
}

// Submit queues one update for the owning goroutine. Never blocks the
// caller past the channel buffer; callers are websocket read loops that
// must keep draining their connection.
func (r *Registry) Submit(ctx context.Context, update domain.TokenUpdate) error {
	select {
	case r.updates <- update:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains updates until ctx is canceled, then closes down. The channel
// stays open so late Submit calls park on ctx instead of panicking.
func (r *Registry) Run(ctx context.Context) {
	defer close(r.done)
	if r.tokens == nil {
		r.tokens = map[string]domain.TokenUpdate{}
	}
	for {
		select {
		case update := <-r.updates:
			r.apply(update)
		case <-ctx.Done():
			// Drain whatever was already queued before stopping.
			for {
				select {
				case update := <-r.updates:
					r.apply(update)
				default:
					return
				}
			}
		}
	}
}

func (r *Registry) apply(update domain.TokenUpdate) {
	if update.Username == "" {
		return
	}
	r.tokens[update.Username] = update
	metrics.TokenUpdates.Inc()
}

// Flush rewrites the persisted registry in full. Call only after Run has
// returned; until then the owning goroutine may still be mutating the map.
func (r *Registry) Flush(ctx context.Context) error {
	select {
	case <-r.done:
	default:
		return fmt.Errorf("flush before registry shut down")
	}
	if err := r.store.Write(ctx, r.tokens); err != nil {
		return fmt.Errorf("flush token registry: %w", err)
	}
	r.log.Info("token registry flushed", zap.Int("entries", len(r.tokens)))
	return nil
}

// Snapshot returns a copy of the current table. Test and report helper;
// callers must not race it against Run.
func (r *Registry) Snapshot() map[string]domain.TokenUpdate {
	out := make(map[string]domain.TokenUpdate, len(r.tokens))
	for username, update := range r.tokens {
		out[username] = update
	}
	return out
}

// Roster merges persisted tokens into roster credentials, so a second run
// reuses accounts registered by the first.
func (r *Registry) Roster(roster []domain.Credential) []domain.Credential {
	out := make([]domain.Credential, len(roster))
	for i, cred := range roster {
		if update, ok := r.tokens[cred.Username]; ok {
			cred.Apply(update)
		}
		cred.Normalize()
		out[i] = cred
	}
	return out
}
