package activitylog

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - acct/{account}/activity/m           (log metadata: lastSeq)
// - acct/{account}/activity/e/{seq_be8} (entries)
//
// The big-endian sequence suffix keeps range scans in id order.

var (
	acctPrefix  = []byte("acct/")
	activitySeg = []byte("/activity")
	metaSuffix  = []byte("/m")
	entrySeg    = []byte("/e/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeyLogMeta builds the per-account log metadata key.
func KeyLogMeta(account string) []byte {
	k := make([]byte, 0, len(acctPrefix)+len(account)+len(activitySeg)+len(metaSuffix))
	k = append(k, acctPrefix...)
	k = append(k, account...)
	k = append(k, activitySeg...)
	k = append(k, metaSuffix...)
	return k
}

// KeyLogEntry builds the entry key with a big-endian sequence for ordering.
func KeyLogEntry(account string, seq uint64) []byte {
	k := make([]byte, 0, len(acctPrefix)+len(account)+len(activitySeg)+len(entrySeg)+8)
	k = append(k, acctPrefix...)
	k = append(k, account...)
	k = append(k, activitySeg...)
	k = append(k, entrySeg...)
	k = appendBE8(k, seq)
	return k
}
