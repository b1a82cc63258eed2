// Package projections routes journaled events to read-model handlers.
//
// A Registry maps each event type to exactly one Handler. A Dispatcher runs
// a batch through the registry, giving every event its own unit of work so a
// failing event never rolls back its siblings. Projection names a dispatcher
// as a Subscriber; Workers feed subscribers from the journal with
// checkpoints, retries and a dead-letter sink, and the Daemon runs one worker
// per subscriber under a PostgreSQL advisory lock.
package projections
