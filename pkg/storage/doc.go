/*
Package storage provides the bbolt-backed lifecycle journal.

When a data directory is configured, the supervisor subscribes a journal
writer to its event broker. Every event is appended under a monotonically
increasing sequence key in the "events" bucket, and events that concern a
single child also overwrite that child's entry in the "processes" bucket,
keyed "role/name". The journal outlives the supervisor, so

	burrow history --data-dir /var/lib/burrow

shows how the previous run started and stopped, including children that
never reported dead.

The database is a single file, burrow.db, opened with an exclusive lock. Opening
it while a supervisor using the same directory is running fails after one
second.
*/
package storage
