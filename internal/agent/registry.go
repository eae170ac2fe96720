package agent

import (
	"context"
	"sync"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/internal/infra"
)

// Registry maps chat ids to live actors with single-owner semantics:
// at most one actor runs per chat, spawns for the same chat are
// serialized, and sends race safely against actor exit.
type Registry struct {
	deps Deps
	bus  *Bus

	base       context.Context
	cancelBase context.CancelFunc

	// spawns serializes GetOrSpawn per chat id so a spawn storm on one
	// chat produces exactly one actor.
	spawns infra.Group[string, *Actor]

	// mu guards actors and closed. Actor deregistration takes it too,
	// so a Send that found an entry always lands in a mailbox the actor
	// will still drain.
	mu     sync.Mutex
	actors map[string]*Actor
	closed bool
}

// NewRegistry returns an empty registry. The configuration's zero
// values are replaced with working defaults so a partially filled
// config cannot produce an unbuffered mailbox or a zero ticker.
func NewRegistry(deps Deps) *Registry {
	if deps.Config.MailboxSize <= 0 {
		deps.Config.MailboxSize = 16
	}
	if deps.Config.EventBufferSize <= 0 {
		deps.Config.EventBufferSize = 64
	}
	if deps.Config.HeartbeatInterval <= 0 {
		deps.Config.HeartbeatInterval = 30 * time.Second
	}
	if deps.Config.InactivityTimeout <= 0 {
		deps.Config.InactivityTimeout = 5 * time.Minute
	}

	base, cancel := context.WithCancel(context.Background())
	return &Registry{
		deps:       deps,
		bus:        NewBus(deps.Config.EventBufferSize),
		base:       base,
		cancelBase: cancel,
		actors:     make(map[string]*Actor),
	}
}

// GetOrSpawn returns the live actor for a chat, starting one when none
// exists. Concurrent calls for the same chat share a single spawn.
func (r *Registry) GetOrSpawn(chatFileID string, args SpawnArgs) (*Actor, error) {
	actor, err, _ := r.spawns.Do(chatFileID, func() (*Actor, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return nil, ErrClosed
		}
		if a, ok := r.actors[chatFileID]; ok {
			return a, nil
		}
		a := newActor(r.base, chatFileID, args, r.deps, r.bus, r.remove, r.tryRemove)
		r.actors[chatFileID] = a
		go a.run()
		return a, nil
	})
	return actor, err
}

// Send routes a command to the chat's actor. It fails with ErrNoActor
// when no actor is live and ErrBusy when the mailbox is full.
func (r *Registry) Send(chatFileID string, cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	a, ok := r.actors[chatFileID]
	if !ok {
		return ErrNoActor
	}
	select {
	case a.mailbox <- cmd:
		return nil
	default:
		return ErrBusy
	}
}

// Subscribe attaches an ordered, lag-tolerant event receiver to a
// chat. It works with or without a live actor.
func (r *Registry) Subscribe(chatFileID string) *Subscription {
	return r.bus.Subscribe(chatFileID)
}

// Stop asks the chat's actor to exit: immediately when idle, after the
// current turn otherwise. Stopping a chat without an actor is a no-op.
func (r *Registry) Stop(chatFileID string) {
	r.mu.Lock()
	a, ok := r.actors[chatFileID]
	r.mu.Unlock()
	if ok {
		a.stop()
	}
}

// Live reports the number of running actors.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

// Close shuts the registry down: no new spawns or sends, every actor
// asked to stop, then waited for until ctx expires. On expiry the base
// context is cancelled, which tears down in-flight turns.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	live := make([]*Actor, 0, len(r.actors))
	for _, a := range r.actors {
		live = append(live, a)
	}
	r.mu.Unlock()

	for _, a := range live {
		a.stop()
	}
	for _, a := range live {
		select {
		case <-a.Done():
		case <-ctx.Done():
			r.cancelBase()
			return ctx.Err()
		}
	}
	r.cancelBase()
	return nil
}

// remove deregisters an exiting actor. Holding mu here closes the race
// with Send: after remove returns, no new command can reach the
// mailbox, so the actor's final drain settles everything.
func (r *Registry) remove(a *Actor) {
	r.mu.Lock()
	if current, ok := r.actors[a.chatFileID]; ok && current == a {
		delete(r.actors, a.chatFileID)
	}
	r.mu.Unlock()
}

// tryRemove deregisters an idle actor only if its mailbox is still
// empty under the lock, so an inactivity exit can never swallow a
// command that was just accepted.
func (r *Registry) tryRemove(a *Actor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(a.mailbox) > 0 {
		return false
	}
	if current, ok := r.actors[a.chatFileID]; ok && current == a {
		delete(r.actors, a.chatFileID)
	}
	return true
}
