package interaction

import (
	"context"
	"fmt"
)

// Request carries the normalized fields of an inbound slash command or
// interactive payload.
type Request struct {
	OrgSlug    string
	ExternalID string // platform user id of the invoker
	UserName   string
	Text       string // command text or action value
}

// Reply is the acknowledgement returned to the platform. Ephemeral is a
// property of the reply, not of any side effect the handler triggered:
// a handler may broadcast publicly and still acknowledge ephemerally.
type Reply struct {
	Text      string
	Ephemeral bool
}

// Handler processes one command or action. Handlers may read and write
// directory records but must not trigger a full reconciliation.
type Handler func(ctx context.Context, req Request) (Reply, error)

// Router maps command names and action identifiers to handlers. New
// commands register here without touching dispatch.
type Router struct {
	commands map[string]Handler
	actions  map[string]Handler
}

func NewRouter() *Router {
	return &Router{
		commands: make(map[string]Handler),
		actions:  make(map[string]Handler),
	}
}

// Command registers a slash-command handler by name (e.g. "/whoami").
func (r *Router) Command(name string, h Handler) {
	r.commands[name] = h
}

// Action registers an interactive-payload handler by action id.
func (r *Router) Action(id string, h Handler) {
	r.actions[id] = h
}

func (r *Router) DispatchCommand(ctx context.Context, name string, req Request) (Reply, error) {
	h, ok := r.commands[name]
	if !ok {
		return Reply{}, fmt.Errorf("interaction: unknown command %q", name)
	}
	return h(ctx, req)
}

func (r *Router) DispatchAction(ctx context.Context, id string, req Request) (Reply, error) {
	h, ok := r.actions[id]
	if !ok {
		return Reply{}, fmt.Errorf("interaction: unknown action %q", id)
	}
	return h(ctx, req)
}
