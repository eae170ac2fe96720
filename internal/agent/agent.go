// Package agent runs one live actor per chat. An actor owns its
// conversation: it receives commands over a bounded mailbox, drives
// model turns through the gateway, executes tool calls through the
// catalog, and publishes ordered events on the chat's broadcast
// channel. Nothing outside the actor touches its state; callers go
// through the Registry.
package agent

import (
	"errors"

	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

var (
	// ErrBusy is returned by Send when the actor's mailbox is full.
	// Senders should back off rather than block.
	ErrBusy = errors.New("agent: command mailbox is full")

	// ErrNoActor is returned by Send and Stop when no live actor owns
	// the chat. Callers spawn one with GetOrSpawn first.
	ErrNoActor = errors.New("agent: no live actor for chat")

	// ErrClosed is returned once the registry has shut down.
	ErrClosed = errors.New("agent: registry is closed")
)

// Command is a message addressed to one actor's mailbox. Commands are
// processed in FIFO order relative to each other.
type Command interface {
	isCommand()
}

// ProcessInteraction begins a turn using the most recent user message
// in the chat. UserID is the interacting user; tool invocations run on
// their behalf.
type ProcessInteraction struct {
	UserID string
}

// Cancel requests cancellation of the current turn. The responder, when
// non-nil, receives nil as soon as the cancellation is accepted, not
// when it completes. Cancelling an idle actor is a no-op success.
type Cancel struct {
	Reason    string
	Responder chan<- error
}

// Ping is a liveness probe. It resets the actor's inactivity timer and
// has no other effect.
type Ping struct{}

func (ProcessInteraction) isCommand() {}
func (Cancel) isCommand()             {}
func (Ping) isCommand()               {}

// SpawnArgs carries what the registry needs to start an actor beyond
// the chat id itself.
type SpawnArgs struct {
	WorkspaceID string
	AgentType   models.AgentType
}

// respond delivers a cancellation acknowledgement without blocking the
// actor on an absent or abandoned receiver.
func respond(responder chan<- error, err error) {
	if responder == nil {
		return
	}
	select {
	case responder <- err:
	default:
	}
}
