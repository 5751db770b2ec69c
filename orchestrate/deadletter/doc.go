// Package deadletter records failures that survived every retry.
//
// A Processor runs its handlers in parallel through a retry manager. Handlers get a
// chance to recover the failure, for example by redelivering the original envelope.
// Only when the manager gives up does the processor append a Record to its Queue.
// Callers on a request path use Record instead, which appends at once and defers
// handling to the next replay.
//
// Queues are append-only with an explicit Clear. Memory, SQLite, Postgres, and Redis
// sinks share the same contract. Drain atomically takes every record, which the
// Replayer uses to re-process the queue on a cron schedule.
package deadletter
