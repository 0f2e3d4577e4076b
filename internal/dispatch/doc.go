// Package dispatch delivers a session's inbound messages to its consumers.
//
// An Executor is created once per session. For every message handed to
// Execute it decides between two paths:
//
//   - Inline: the session is not configured for asynchronous dispatch and no
//     external session pool owns the executor. The message is delivered on
//     the calling goroutine before Execute returns.
//   - Queued: the message is appended to the executor's queue and a wakeup is
//     requested. A task runner from the connection's shared worker pool then
//     calls Iterate until the queue is drained.
//
// Iterate is the unit of cooperative work: it pops at most one message,
// hands it to the consumer whose ID matches, and reports whether more
// messages are waiting. Keeping each step to one message bounds latency and
// lets one pool interleave many sessions fairly.
//
// Ordering:
//   - Messages from one producer goroutine are delivered in submission order.
//   - ExecuteFirst inserts at the head of the queue. It is the only
//     reordering primitive and is meant for redelivery paths.
//
// Lifecycle:
//   - Start acquires a task runner when queued delivery is in effect, then
//     marks the queue running and flushes any backlog buffered while
//     stopped. A runner whose shutdown timed out is waited out first.
//   - Stop marks the queue stopped and waits for an in-flight Iterate to
//     return. No message is delivered after Stop returns; buffered messages
//     stay queued for a later Start or GetUnconsumedMessages.
//   - Close is terminal. Later Execute calls fail with queue.ErrClosed.
//
// Without a runner factory wakeups drain the queue inline. Concurrent and re-entrant wakeups fold into the
// goroutine already draining, so Iterate never runs twice at once.
//
// Error handling:
//   - Message for an unknown consumer → dropped silently (debug log + OnDrop)
//   - Consumer returns an error → propagated from Execute (inline) or
//     Iterate; the worker pool logs and isolates it
//   - Context cancelled before enqueue → ErrInterrupted
//   - Wakeup interrupted → logged, abandoned, never returned
//   - Runner shutdown interrupted → ErrShutdown from Stop, and from Start
//     while that runner is still delivering
package dispatch
