package activitylog

import (
	"context"
	"time"
)

// WaitForAppend blocks until a new append occurs or timeout elapses.
// It returns true if woken by an append, false on timeout.
func (l *Log) WaitForAppend(timeout time.Duration) bool {
	l.mu.Lock()
	ch := l.notifyCh
	l.mu.Unlock()
	if timeout <= 0 {
		<-ch
		return true
	}
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

// AppendWaiter returns a channel closed by the next append. Grab it before
// reading so an append landing between read and wait is not missed.
func (l *Log) AppendWaiter() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.notifyCh
}

// WaitForAppendCtx blocks until a new append occurs or ctx is done.
// It returns true if woken by an append.
func (l *Log) WaitForAppendCtx(ctx context.Context) bool {
	l.mu.Lock()
	ch := l.notifyCh
	l.mu.Unlock()
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}
