package activitylog

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"
)

// Token encodes a log position as an 8-byte big-endian sequence.
type Token [8]byte

// TokenFromSeq builds a Token pointing at the given sequence.
func TokenFromSeq(seq uint64) Token {
	var t Token
	binary.BigEndian.PutUint64(t[:], seq)
	return t
}

// Seq returns the sequence the token points at.
func (t Token) Seq() uint64 { return binary.BigEndian.Uint64(t[:]) }

// ReadOptions controls a bounded scan.
//
// Forward scans start at Start (inclusive); a zero Start begins at the first
// entry. Reverse scans start strictly below Start (exclusive), which gives
// before-id pagination directly; a zero Start begins at the last entry.
type ReadOptions struct {
	Start   Token
	Limit   int
	Reverse bool
}

// Item is one decoded log entry.
type Item struct {
	Seq     uint64
	Header  []byte
	Payload []byte
}

// Read returns up to Limit decoded items. Entries failing checksum
// verification are skipped.
func (l *Log) Read(opts ReadOptions) ([]Item, error) {
	low := KeyLogEntry(l.account, 0)
	hi := KeyLogEntry(l.account, ^uint64(0))

	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: append(hi, 0x00)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	items := make([]Item, 0, opts.Limit)
	startSeq := opts.Start.Seq()
	startKey := KeyLogEntry(l.account, startSeq)
	seqAt := func(key []byte) uint64 {
		return binary.BigEndian.Uint64(key[len(key)-8:])
	}

	if opts.Reverse {
		if startSeq == 0 {
			if !iter.Last() {
				return items, iter.Error()
			}
		} else if !iter.SeekLT(startKey) {
			return items, iter.Error()
		}
		for iter.Valid() && (opts.Limit == 0 || len(items) < opts.Limit) {
			if dec, ok := DecodeRecord(iter.Value()); ok {
				items = append(items, Item{Seq: seqAt(iter.Key()), Header: dec.Header, Payload: dec.Payload})
			}
			if !iter.Prev() {
				break
			}
		}
		return items, iter.Error()
	}

	if startSeq == 0 {
		if !iter.First() {
			return items, iter.Error()
		}
	} else if !iter.SeekGE(startKey) {
		return items, iter.Error()
	}
	for iter.Valid() && (opts.Limit == 0 || len(items) < opts.Limit) {
		if dec, ok := DecodeRecord(iter.Value()); ok {
			items = append(items, Item{Seq: seqAt(iter.Key()), Header: dec.Header, Payload: dec.Payload})
		}
		if !iter.Next() {
			break
		}
	}
	return items, iter.Error()
}

// FirstSeq returns the lowest sequence still present, zero when empty.
func (l *Log) FirstSeq() uint64 {
	items, err := l.Read(ReadOptions{Limit: 1})
	if err != nil || len(items) == 0 {
		return 0
	}
	return items[0].Seq
}

// Stats summarizes the log: first/last sequence, entry count, total bytes.
type Stats struct {
	FirstSeq uint64
	LastSeq  uint64
	Count    uint64
	Bytes    uint64
}

// CollectStats scans the log and returns aggregate statistics.
func (l *Log) CollectStats() Stats {
	low := KeyLogEntry(l.account, 0)
	hi := KeyLogEntry(l.account, ^uint64(0))
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: append(hi, 0x00)})
	if err != nil {
		return Stats{}
	}
	defer iter.Close()

	var st Stats
	for ok := iter.First(); ok; ok = iter.Next() {
		seq := binary.BigEndian.Uint64(iter.Key()[len(iter.Key())-8:])
		if st.Count == 0 {
			st.FirstSeq = seq
		}
		st.LastSeq = seq
		st.Count++
		st.Bytes += uint64(len(iter.Value()))
	}
	return st
}
