/*
Package storage provides BoltDB-backed persistence for the ignite client's
on-device state: the flat key-value document (login, VIN,
odometer/location snapshots, ignition count, activation/running status,
last successful upload, the disassociation flag) and the bounded
InvalidTimestampEvent overflow table the timestamp validator writes to
when it cannot yet fix a pre-cutoff event.

BoltStore uses a bucket-per-concern layout with short-lived
db.View/db.Update transactions: one state bucket (flat string-keyed,
generic Get/Set accessors since the persisted keys have no relational
structure to normalize) and one append-only, oldest-first-purged bucket
for overflowed events.
*/
package storage
