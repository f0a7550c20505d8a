// Package messaging carries requests between components that never share
// memory.
//
// Every observer owns a Mailbox registered in the Router under its context
// id. Other components reach it only through Router.Ask, which delivers a
// Request and waits for the Reply. There is no delivery guarantee: a context
// without a live mailbox is ErrUnreachable, a mailbox that is torn down while
// a request is in flight is ErrUnreachable too, and a reply that does not
// arrive in time is ErrTimeout. Callers treat all three as the expected
// signal that the target is not available, never as a fatal condition.
//
// Timeouts are applied with the Within and Await combinators instead of ad
// hoc timer races at every call site.
package messaging
