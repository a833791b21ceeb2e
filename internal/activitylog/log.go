package activitylog

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	pebblestore "github.com/tdaniel1925/easemail-redux-sub002/internal/storage/pebble"
)

// ErrNotFound indicates a missing event.
var ErrNotFound = errors.New("activity event not found")

// AppendRecord represents a single appendable event.
type AppendRecord struct {
	Header  []byte
	Payload []byte
}

// Log provides append-only operations over one account's activity history.
// Sequence numbers are assigned at append time, strictly increasing per
// account; entries are never rewritten.
type Log struct {
	db      *pebblestore.DB
	account string

	mu       sync.Mutex
	lastSeq  uint64
	notifyCh chan struct{}
}

// OpenLog initializes a Log and loads the last sequence from metadata.
func OpenLog(db *pebblestore.DB, account string) (*Log, error) {
	l := &Log{db: db, account: account, notifyCh: make(chan struct{})}
	meta, err := db.Get(KeyLogMeta(account))
	if err == nil && len(meta) >= 8 {
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
	}
	return l, nil
}

// Account returns the owning account id.
func (l *Log) Account() string { return l.account }

// LastSeq returns the highest assigned sequence number, zero when empty.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// Append appends the provided records as a single atomic batch and returns
// the assigned sequence numbers. Records become readable only after the
// batch commits.
func (l *Log) Append(ctx context.Context, recs []AppendRecord) ([]uint64, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.db.NewBatch()
	defer b.Close()

	seqs := make([]uint64, len(recs))
	for i, r := range recs {
		l.lastSeq++
		if err := b.Set(KeyLogEntry(l.account, l.lastSeq), EncodeRecord(r.Header, r.Payload), nil); err != nil {
			l.lastSeq -= uint64(len(recs[:i+1]))
			return nil, err
		}
		seqs[i] = l.lastSeq
	}

	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], l.lastSeq)
	if err := b.Set(KeyLogMeta(l.account), meta[:], nil); err != nil {
		l.lastSeq = seqs[0] - 1
		return nil, err
	}

	if err := l.db.CommitBatch(ctx, b); err != nil {
		l.lastSeq = seqs[0] - 1
		return nil, err
	}

	// wake blocked readers
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
	return seqs, nil
}
