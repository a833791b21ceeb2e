// Package activitylog implements the durable append-only log backing the
// activity feed.
//
// # Overview
//
// Each account owns one log persisted in Pebble. Keys are lexicographically
// ordered for efficient range scans:
//   - acct/{account}/activity/m           (log metadata: lastSeq)
//   - acct/{account}/activity/e/{seq_be8} (entries)
//
// Records are stored as: varint headerLen | header | payload | crc32c.
// Sequence numbers are the sole ordering authority for the feed; they are
// assigned at append time and never reused. Entries are immutable; this
// package offers no update or delete path, and retention is an external
// concern.
//
// API surface (internal)
//
//	l, _ := OpenLog(db, "acct-1")
//	seqs, _ := l.Append(ctx, []AppendRecord{{Header: h, Payload: p}})
//
//	// Forward from a position, or reverse (exclusive) for pagination
//	items, _ := l.Read(ReadOptions{Start: TokenFromSeq(seqs[0]), Limit: 100})
//	page, _ := l.Read(ReadOptions{Start: TokenFromSeq(before), Limit: 100, Reverse: true})
//
//	// Blocking wait/notify for tailing readers
//	woke := l.WaitForAppend(200 * time.Millisecond)
//	_ = woke
package activitylog
