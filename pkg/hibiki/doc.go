// Package hibiki provides an in-process publish/subscribe primitive family
// built around generic emitters: a minimal fan-out list, a build-then-seal
// broadcaster, managed emitters that issue revocable subscription handles
// backed by tombstone entries and deferred compaction, a goroutine-safe
// variant that dispatches against a snapshot taken outside the lock, and a
// delayed dispatch emitter with an optional bounded task runner.
package hibiki
