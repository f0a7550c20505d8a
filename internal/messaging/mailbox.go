package messaging

import (
	"sync"

	"github.com/nao1215/protectmyart/internal/model"
)

// Kind identifies the request type carried by a Request.
type Kind int

const (
	// KindScanRequest asks the observer to scan now and reply with the result.
	KindScanRequest Kind = iota

	// KindLivenessProbe asks whether the observer finished its initial scan.
	KindLivenessProbe
)

// String returns the channel name of the request kind.
func (k Kind) String() string {
	switch k {
	case KindScanRequest:
		return "scan-request"
	case KindLivenessProbe:
		return "liveness-probe"
	default:
		return "unknown"
	}
}

// Reply is the answer to a Request.
type Reply struct {
	// Scan is set for scan requests.
	Scan model.ScanResult

	// Active is set for liveness probes.
	Active bool
}

// Request is one message delivered to a mailbox.
type Request struct {
	// Kind is what the sender asks for.
	Kind Kind

	reply chan Reply
}

// Respond sends the reply back to the waiting sender. It never blocks and
// reports false when a reply was already sent.
func (r Request) Respond(reply Reply) bool {
	select {
	case r.reply <- reply:
		return true
	default:
		return false
	}
}

// Mailbox is the receiving end of one observer's channel.
type Mailbox struct {
	id    model.ContextID
	inbox chan Request
	done  chan struct{}
	once  sync.Once
}

// NewMailbox creates an open mailbox for id.
func NewMailbox(id model.ContextID, buffer int) *Mailbox {
	if buffer < 0 {
		buffer = 0
	}
	return &Mailbox{
		id:    id,
		inbox: make(chan Request, buffer),
		done:  make(chan struct{}),
	}
}

// ContextID returns the context the mailbox belongs to.
func (m *Mailbox) ContextID() model.ContextID {
	return m.id
}

// Inbox returns the channel requests arrive on.
func (m *Mailbox) Inbox() <-chan Request {
	return m.inbox
}

// Done is closed when the mailbox is torn down.
func (m *Mailbox) Done() <-chan struct{} {
	return m.done
}

// Close tears the mailbox down. Pending and future requests fail with
// ErrUnreachable. Close is idempotent.
func (m *Mailbox) Close() {
	m.once.Do(func() {
		close(m.done)
	})
}

// Closed reports whether Close was called.
func (m *Mailbox) Closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}
