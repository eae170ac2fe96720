package agent

import (
	"context"
	"sync"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/internal/chat"
	"github.com/quanhua92/buildscale-ai-sub000/internal/config"
	"github.com/quanhua92/buildscale-ai-sub000/internal/llm"
	"github.com/quanhua92/buildscale-ai-sub000/internal/observability"
	"github.com/quanhua92/buildscale-ai-sub000/internal/prompt"
	"github.com/quanhua92/buildscale-ai-sub000/internal/sessions"
	"github.com/quanhua92/buildscale-ai-sub000/internal/tools"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// Deps is the shared service surface every actor runs against.
type Deps struct {
	Sessions  sessions.Store
	Messages  chat.Store
	Assembler *prompt.Assembler
	Gateway   *llm.Gateway
	Catalog   *tools.Registry
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Config    config.AgentConfig
}

// Actor owns one live conversation. Its goroutine is the only place
// the partial response buffer, the event sequence, and the turn
// context are touched; everything else communicates through the
// mailbox or the bus.
type Actor struct {
	chatFileID  string
	workspaceID string
	agentType   models.AgentType

	deps Deps
	bus  *Bus

	// base outlives individual turns; the registry cancels it on hard
	// shutdown.
	base context.Context

	mailbox chan Command

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	// remove unconditionally deregisters the actor; tryRemove does so
	// only when the mailbox is empty, failing when a command raced in.
	remove    func(*Actor)
	tryRemove func(*Actor) bool

	// seq numbers published events; only the actor goroutine touches it.
	seq uint64
}

func newActor(base context.Context, chatFileID string, args SpawnArgs, deps Deps, bus *Bus, remove func(*Actor), tryRemove func(*Actor) bool) *Actor {
	return &Actor{
		chatFileID:  chatFileID,
		workspaceID: args.WorkspaceID,
		agentType:   args.AgentType,
		deps:        deps,
		bus:         bus,
		base:        base,
		mailbox:     make(chan Command, deps.Config.MailboxSize),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		remove:      remove,
		tryRemove:   tryRemove,
	}
}

// ChatFileID names the chat this actor owns.
func (a *Actor) ChatFileID() string { return a.chatFileID }

// Done closes when the actor has exited.
func (a *Actor) Done() <-chan struct{} { return a.done }

// stop requests a graceful exit: immediately when idle, after the
// current turn otherwise.
func (a *Actor) stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

// run is the actor loop. Commands are handled in arrival order; turns
// run inline so at most one is in flight. The loop exits on stop or
// after the inactivity timeout, processing whatever the mailbox still
// holds first.
func (a *Actor) run() {
	defer close(a.done)

	if a.deps.Metrics != nil {
		a.deps.Metrics.ActorSpawned(string(a.agentType))
		defer a.deps.Metrics.ActorStopped(string(a.agentType))
	}
	a.deps.Logger.Debug(a.base, "actor started",
		"chat_file_id", a.chatFileID, "workspace_id", a.workspaceID)
	defer a.deps.Logger.Debug(a.base, "actor stopped", "chat_file_id", a.chatFileID)

	idle := time.NewTimer(a.deps.Config.InactivityTimeout)
	defer idle.Stop()

	// Interactions that arrived while a turn was running; they keep
	// their mailbox order.
	var queue []ProcessInteraction

	for {
		for len(queue) > 0 {
			select {
			case <-a.stopCh:
				a.exit(queue)
				return
			default:
			}
			var next ProcessInteraction
			next, queue = queue[0], queue[1:]
			queue = append(queue, a.runTurn(next)...)
		}

		select {
		case <-a.stopCh:
			a.exit(nil)
			return
		case <-idle.C:
			// Deregistration only succeeds with an empty mailbox, and
			// sends hold the same lock, so a command that raced the
			// timeout keeps the actor alive instead of vanishing.
			if a.tryRemove(a) {
				return
			}
			idle.Reset(a.deps.Config.InactivityTimeout)
		case cmd := <-a.mailbox:
			resetTimer(idle, a.deps.Config.InactivityTimeout)
			switch c := cmd.(type) {
			case ProcessInteraction:
				queue = append(queue, a.runTurn(c)...)
			case Cancel:
				// Nothing is running; accepting is the whole job.
				respond(c.Responder, nil)
			case Ping:
			}
		}
	}
}

// exit deregisters a stopped actor and settles whatever made it into
// the mailbox first: cancels are acknowledged, interactions are logged
// as dropped. After remove returns no new command can land.
func (a *Actor) exit(queue []ProcessInteraction) {
	a.remove(a)
	for {
		select {
		case cmd := <-a.mailbox:
			switch c := cmd.(type) {
			case ProcessInteraction:
				queue = append(queue, c)
			case Cancel:
				respond(c.Responder, nil)
			case Ping:
			}
		default:
			for _, c := range queue {
				a.deps.Logger.Warn(a.base, "interaction dropped at actor stop",
					"chat_file_id", a.chatFileID, "user_id", c.UserID)
			}
			return
		}
	}
}

// resetTimer rearms a timer that may have fired, draining the stale
// tick first.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// publish stamps the event with the actor's next sequence number and
// hands it to the bus.
func (a *Actor) publish(ev models.Event) {
	a.seq++
	ev.Seq = a.seq
	a.bus.Publish(ev)
	if a.deps.Metrics != nil {
		a.deps.Metrics.RecordEvent(string(ev.Type))
	}
}
