package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nao1215/protectmyart/internal/model"
)

// DefaultMailboxBuffer is the inbox capacity of mailboxes created by Register.
const DefaultMailboxBuffer = 8

// Router maps context ids to live mailboxes.
type Router struct {
	mu     sync.RWMutex
	boxes  map[model.ContextID]*Mailbox
	logger *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets a custom logger for the router.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter creates an empty Router.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{boxes: make(map[model.ContextID]*Mailbox)}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Register creates and registers a mailbox for id. A mailbox previously
// registered for the same id is closed first, so at most one observer per
// context is reachable.
func (r *Router) Register(id model.ContextID) *Mailbox {
	box := NewMailbox(id, DefaultMailboxBuffer)

	r.mu.Lock()
	old := r.boxes[id]
	r.boxes[id] = box
	r.mu.Unlock()

	if old != nil {
		old.Close()
	}
	r.logger.Debug("mailbox registered", "context", id)
	return box
}

// Unregister removes box if it is still the registered mailbox of its
// context, then closes it.
func (r *Router) Unregister(box *Mailbox) {
	if box == nil {
		return
	}
	r.mu.Lock()
	if r.boxes[box.id] == box {
		delete(r.boxes, box.id)
	}
	r.mu.Unlock()

	box.Close()
	r.logger.Debug("mailbox unregistered", "context", box.id)
}

// Lookup returns the live mailbox for id.
func (r *Router) Lookup(id model.ContextID) (*Mailbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	box, ok := r.boxes[id]
	if !ok || box.Closed() {
		return nil, false
	}
	return box, true
}

// Len returns the number of registered mailboxes.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.boxes)
}

// Ask delivers a request of the given kind to the mailbox of id and waits
// for the reply. It returns ErrUnreachable when there is no live mailbox or
// the mailbox closes before replying, and ctx.Err() when ctx ends first.
func (r *Router) Ask(ctx context.Context, id model.ContextID, kind Kind) (Reply, error) {
	box, ok := r.Lookup(id)
	if !ok {
		return Reply{}, ErrUnreachable
	}

	req := Request{Kind: kind, reply: make(chan Reply, 1)}

	select {
	case box.inbox <- req:
	case <-box.done:
		return Reply{}, ErrUnreachable
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}

	select {
	case rep := <-req.reply:
		return rep, nil
	case <-box.done:
		// The reply may have been sent just before teardown.
		select {
		case rep := <-req.reply:
			return rep, nil
		default:
			return Reply{}, ErrUnreachable
		}
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// RequestScan asks the observer of id for a fresh scan.
func (r *Router) RequestScan(ctx context.Context, id model.ContextID) (model.ScanResult, error) {
	rep, err := r.Ask(ctx, id, KindScanRequest)
	if err != nil {
		return model.ScanResult{}, err
	}
	return rep.Scan, nil
}

// ProbeLiveness asks the observer of id whether its initial scan completed.
func (r *Router) ProbeLiveness(ctx context.Context, id model.ContextID) (bool, error) {
	rep, err := r.Ask(ctx, id, KindLivenessProbe)
	if err != nil {
		return false, err
	}
	return rep.Active, nil
}

// CloseAll closes and removes every mailbox.
func (r *Router) CloseAll() {
	r.mu.Lock()
	boxes := r.boxes
	r.boxes = make(map[model.ContextID]*Mailbox)
	r.mu.Unlock()

	for _, box := range boxes {
		box.Close()
	}
}
