package activity

import (
	"context"
	"sync"

	"github.com/tdaniel1925/easemail-redux-sub002/internal/activitylog"
	"github.com/tdaniel1925/easemail-redux-sub002/pkg/id"
	"github.com/tdaniel1925/easemail-redux-sub002/pkg/log"
)

// LogOpener resolves the activity log for an account.
type LogOpener interface {
	OpenLog(account string) (*activitylog.Log, error)
}

// Metrics is the observability hook for the fan-out path. Implementations
// must be safe for concurrent use.
type Metrics interface {
	ObserveEmit(eventType string)
	ObserveDelivery()
	ObserveClose(reason CloseReason)
	ObserveSubscribers(delta int)
}

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (NoopMetrics) ObserveEmit(string)       {}
func (NoopMetrics) ObserveDelivery()         {}
func (NoopMetrics) ObserveClose(CloseReason) {}
func (NoopMetrics) ObserveSubscribers(int)   {}

// Subscription is one consumer's handle onto the live event flow.
//
// Events arrive on Events() in strictly ascending id order with no
// duplicates. When the subscription terminates, Done() is closed and
// Err()/Reason() explain why; buffered events not yet read are discarded,
// so consumers resume from their last seen id after a close.
type Subscription struct {
	id    string
	scope Scope
	fil   *Filter

	ch   chan EventRecord
	done chan struct{}

	mu     sync.Mutex
	live   bool
	nextID uint64
	closed bool
	reason CloseReason
	err    error

	reg *Registry
}

// ID returns the registry-assigned subscription identifier.
func (s *Subscription) ID() string { return s.id }

// Scope returns the account/user boundary the subscription was created in.
func (s *Subscription) Scope() Scope { return s.scope }

// Events is the ordered outbound event channel. It is never closed; watch
// Done to detect termination.
func (s *Subscription) Events() <-chan EventRecord { return s.ch }

// Done is closed when the subscription terminates for any reason.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Reason reports why the subscription closed. Valid once Done is closed.
func (s *Subscription) Reason() CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Err returns the terminal error, if the close was error-caused.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// deliver hands one just-persisted event to the subscription. Non-blocking:
// a full buffer closes the subscription with CloseReasonOverflow instead of
// stalling the publisher or other subscribers.
func (s *Subscription) deliver(rec EventRecord) bool {
	s.mu.Lock()
	if s.closed || !s.live {
		s.mu.Unlock()
		return false
	}
	// Replay handoff can leave a small window where an event arrives both
	// from the log page and from a live publish; the watermark drops the
	// second copy.
	if rec.ID < s.nextID {
		s.mu.Unlock()
		return false
	}
	if !s.fil.Match(rec) {
		s.nextID = rec.ID + 1
		s.mu.Unlock()
		return false
	}
	select {
	case s.ch <- rec:
		s.nextID = rec.ID + 1
		s.mu.Unlock()
		return true
	default:
		s.mu.Unlock()
		s.reg.closeSub(s, CloseReasonOverflow, nil)
		return false
	}
}

// Registry tracks live subscriptions per account and fans persisted events
// out to them. Publish never blocks on a slow consumer and never fails the
// caller.
type Registry struct {
	opener  LogOpener
	logger  log.Logger
	metrics Metrics
	gen     *id.Generator

	bufLen      int
	replayBatch int

	mu   sync.RWMutex
	subs map[string]map[string]*Subscription
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Opener      LogOpener
	Logger      log.Logger
	Metrics     Metrics
	BufferLen   int
	ReplayBatch int
}

// NewRegistry builds an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.BufferLen <= 0 {
		opts.BufferLen = 256
	}
	if opts.ReplayBatch <= 0 {
		opts.ReplayBatch = 128
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewLogger()
	}
	return &Registry{
		opener:      opts.Opener,
		logger:      opts.Logger.With(log.Component("activity.registry")),
		metrics:     opts.Metrics,
		gen:         id.NewGenerator(),
		bufLen:      opts.BufferLen,
		replayBatch: opts.ReplayBatch,
		subs:        make(map[string]map[string]*Subscription),
	}
}

// Subscribe registers a consumer for the scope's account. With opts.Replay
// set, all persisted events with id > opts.ResumeAfter are delivered first,
// then delivery switches to live fan-out with no gap and no duplicates.
// Without replay, only events persisted after the subscription is live are
// delivered. ctx cancellation aborts a pending replay; it does not replace
// Unsubscribe.
func (r *Registry) Subscribe(ctx context.Context, scope Scope, opts SubscribeOptions) (*Subscription, error) {
	fil, err := NewFilter(opts.Types, opts.Filter)
	if err != nil {
		return nil, err
	}
	l, err := r.opener.OpenLog(scope.AccountID)
	if err != nil {
		return nil, err
	}

	s := &Subscription{
		id:    r.gen.Next().String(),
		scope: scope,
		fil:   fil,
		ch:    make(chan EventRecord, r.bufLen),
		done:  make(chan struct{}),
		reg:   r,
	}

	r.mu.Lock()
	acct := r.subs[scope.AccountID]
	if acct == nil {
		acct = make(map[string]*Subscription)
		r.subs[scope.AccountID] = acct
	}
	acct[s.id] = s
	r.mu.Unlock()
	r.metrics.ObserveSubscribers(1)

	if opts.Replay {
		go r.replay(ctx, s, l, opts.ResumeAfter)
	} else {
		// Live-only: anything already persisted is history by definition.
		s.mu.Lock()
		s.nextID = l.LastSeq() + 1
		s.live = true
		s.mu.Unlock()
	}

	r.logger.Debug("subscription opened",
		log.Str("sub_id", s.id),
		log.Str("account", scope.AccountID),
		log.Bool("replay", opts.Replay))
	return s, nil
}

// replay pages history from the log into the subscription, then flips it
// live once the log has no entries beyond the watermark. The flip happens
// under the subscription lock so no concurrently published event can fall
// between replay and live delivery.
func (r *Registry) replay(ctx context.Context, s *Subscription, l *activitylog.Log, after uint64) {
	next := after + 1
	for {
		items, err := l.Read(activitylog.ReadOptions{
			Start: activitylog.TokenFromSeq(next),
			Limit: r.replayBatch,
		})
		if err != nil {
			r.logger.Warn("replay failed",
				log.Str("sub_id", s.id),
				log.Str("account", s.scope.AccountID),
				log.Err(err))
			r.closeSub(s, CloseReasonError, err)
			return
		}
		for _, it := range items {
			next = it.Seq + 1
			rec, ok := eventFromItem(s.scope.AccountID, it)
			if !ok || !s.fil.Match(rec) {
				continue
			}
			select {
			case s.ch <- rec:
				r.metrics.ObserveDelivery()
			case <-s.done:
				return
			case <-ctx.Done():
				r.closeSub(s, CloseReasonClient, ctx.Err())
				return
			}
		}
		if len(items) < r.replayBatch {
			s.mu.Lock()
			if l.LastSeq() < next {
				s.nextID = next
				s.live = true
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			// Appends landed while the last page was draining; keep paging.
		}
	}
}

// Publish fans a persisted event out to the account's live subscriptions.
// Fire and forget: errors and slow consumers never propagate to the caller.
func (r *Registry) Publish(rec EventRecord) int {
	r.mu.RLock()
	acct := r.subs[rec.AccountID]
	if len(acct) == 0 {
		r.mu.RUnlock()
		return 0
	}
	targets := make([]*Subscription, 0, len(acct))
	for _, s := range acct {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.deliver(rec) {
			delivered++
			r.metrics.ObserveDelivery()
		}
	}
	return delivered
}

// Unsubscribe removes the subscription. Idempotent.
func (r *Registry) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	r.closeSub(s, CloseReasonClient, nil)
}

// closeSub terminates a subscription exactly once and removes it from the
// account map.
func (r *Registry) closeSub(s *Subscription, reason CloseReason, err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.reason = reason
	s.err = err
	close(s.done)
	s.mu.Unlock()

	r.mu.Lock()
	if acct := r.subs[s.scope.AccountID]; acct != nil {
		delete(acct, s.id)
		if len(acct) == 0 {
			delete(r.subs, s.scope.AccountID)
		}
	}
	r.mu.Unlock()

	r.metrics.ObserveSubscribers(-1)
	r.metrics.ObserveClose(reason)
	if reason == CloseReasonOverflow {
		r.logger.Warn("subscription buffer overflow",
			log.Str("sub_id", s.id),
			log.Str("account", s.scope.AccountID))
	} else {
		r.logger.Debug("subscription closed",
			log.Str("sub_id", s.id),
			log.Str("reason", string(reason)))
	}
}

// Count returns the number of live subscriptions for an account.
func (r *Registry) Count(account string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[account])
}

// CloseAll terminates every subscription with the given reason. Used on
// shutdown.
func (r *Registry) CloseAll(reason CloseReason) {
	r.mu.RLock()
	all := make([]*Subscription, 0)
	for _, acct := range r.subs {
		for _, s := range acct {
			all = append(all, s)
		}
	}
	r.mu.RUnlock()
	for _, s := range all {
		r.closeSub(s, reason, nil)
	}
}
