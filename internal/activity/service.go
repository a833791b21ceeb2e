package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tdaniel1925/easemail-redux-sub002/internal/account"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/activitylog"
	pebblestore "github.com/tdaniel1925/easemail-redux-sub002/internal/storage/pebble"
	"github.com/tdaniel1925/easemail-redux-sub002/pkg/log"
)

// ServiceOptions configures a Service.
type ServiceOptions struct {
	DB     *pebblestore.DB
	Opener LogOpener
	Logger log.Logger
	// Metrics is shared with the registry. Optional.
	Metrics Metrics
	// SnapshotLimit is the default and maximum page size for List/Search.
	SnapshotLimit int
	// PayloadMaxBytes bounds event payloads accepted by Emit.
	PayloadMaxBytes int
	BufferLen       int
	ReplayBatch     int
}

// Service is the activity subsystem facade: it persists events, serves
// snapshot reads and owns the live subscription registry.
type Service struct {
	db      *pebblestore.DB
	opener  LogOpener
	logger  log.Logger
	metrics Metrics
	reg     *Registry

	snapshotLimit int
	payloadMax    int
	// searchScanMax bounds how many entries a filtered scan visits per call.
	searchScanMax int

	mu     sync.Mutex
	emitMu map[string]*sync.Mutex
}

// NewService wires the service and its registry.
func NewService(opts ServiceOptions) *Service {
	if opts.SnapshotLimit <= 0 {
		opts.SnapshotLimit = 100
	}
	if opts.PayloadMaxBytes <= 0 {
		opts.PayloadMaxBytes = 256 << 10
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewLogger()
	}
	reg := NewRegistry(RegistryOptions{
		Opener:      opts.Opener,
		Logger:      opts.Logger,
		Metrics:     opts.Metrics,
		BufferLen:   opts.BufferLen,
		ReplayBatch: opts.ReplayBatch,
	})
	return &Service{
		db:            opts.DB,
		opener:        opts.Opener,
		logger:        opts.Logger.With(log.Component("activity")),
		metrics:       opts.Metrics,
		reg:           reg,
		snapshotLimit: opts.SnapshotLimit,
		payloadMax:    opts.PayloadMaxBytes,
		searchScanMax: 10000,
		emitMu:        make(map[string]*sync.Mutex),
	}
}

// accountEmitLock serializes append+publish per account so live delivery
// order always matches id order.
func (s *Service) accountEmitLock(acct string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.emitMu[acct]
	if m == nil {
		m = &sync.Mutex{}
		s.emitMu[acct] = m
	}
	return m
}

// Emit validates, persists and fans out one event. The returned record
// carries the store-assigned id. Persistence failure is the only error
// path; fan-out is best effort and never fails the caller.
func (s *Service) Emit(ctx context.Context, scope Scope, eventType, entityID string, payload json.RawMessage) (EventRecord, error) {
	if scope.AccountID == "" {
		return EventRecord{}, ErrUnauthorized
	}
	if err := ValidateEventType(eventType); err != nil {
		return EventRecord{}, err
	}
	if len(payload) > s.payloadMax {
		return EventRecord{}, ErrPayloadTooLarge
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return EventRecord{}, ErrInvalidPayload
	}

	if _, err := account.Ensure(s.db, scope.AccountID); err != nil {
		return EventRecord{}, fmt.Errorf("ensure account: %w", err)
	}
	l, err := s.opener.OpenLog(scope.AccountID)
	if err != nil {
		return EventRecord{}, fmt.Errorf("open activity log: %w", err)
	}

	now := time.Now().UnixMilli()
	hdr, err := encodeHeader(now, scope.UserID, eventType, entityID)
	if err != nil {
		return EventRecord{}, fmt.Errorf("encode event header: %w", err)
	}

	lock := s.accountEmitLock(scope.AccountID)
	lock.Lock()
	seqs, err := l.Append(ctx, []activitylog.AppendRecord{{Header: hdr, Payload: payload}})
	if err != nil {
		lock.Unlock()
		return EventRecord{}, fmt.Errorf("persist activity event: %w", err)
	}
	rec := EventRecord{
		ID:          seqs[0],
		AccountID:   scope.AccountID,
		UserID:      scope.UserID,
		Type:        eventType,
		EntityID:    entityID,
		Payload:     payload,
		CreatedAtMs: now,
	}
	s.reg.Publish(rec)
	lock.Unlock()

	s.metrics.ObserveEmit(eventType)
	s.logger.Debug("event emitted",
		log.Str("account", scope.AccountID),
		log.Str("type", eventType),
		log.Uint64("id", rec.ID))
	return rec, nil
}

// EmitLogged is Emit for callers that must not fail on activity errors:
// the event is dropped and logged instead. Intended for mutation paths
// where activity is a side effect.
func (s *Service) EmitLogged(ctx context.Context, scope Scope, eventType, entityID string, payload json.RawMessage) {
	if _, err := s.Emit(ctx, scope, eventType, entityID, payload); err != nil {
		s.logger.Warn("activity emit dropped",
			log.Str("account", scope.AccountID),
			log.Str("type", eventType),
			log.Err(err))
	}
}

func (s *Service) clampLimit(n int) int {
	if n <= 0 || n > s.snapshotLimit {
		return s.snapshotLimit
	}
	return n
}

// List returns a newest-first page of the account's feed. BeforeID is
// exclusive; zero starts at the newest event. With opts.Wait set and an
// empty page, List blocks up to that duration for new activity.
func (s *Service) List(ctx context.Context, scope Scope, opts ListOptions) ([]EventRecord, error) {
	if scope.AccountID == "" {
		return nil, ErrUnauthorized
	}
	fil, err := NewFilter(opts.Types, "")
	if err != nil {
		return nil, err
	}
	l, err := s.opener.OpenLog(scope.AccountID)
	if err != nil {
		return nil, fmt.Errorf("open activity log: %w", err)
	}
	limit := s.clampLimit(opts.Limit)

	var waiter <-chan struct{}
	if opts.Wait > 0 {
		waiter = l.AppendWaiter()
	}
	out, err := s.scanReverse(l, scope.AccountID, opts.BeforeID, limit, fil, celFilter{})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 && waiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, opts.Wait)
		defer cancel()
		select {
		case <-waiter:
			out, err = s.scanReverse(l, scope.AccountID, opts.BeforeID, limit, fil, celFilter{})
			if err != nil {
				return nil, err
			}
		case <-waitCtx.Done():
		}
	}
	return out, nil
}

// Search returns a newest-first page matching type patterns and an optional
// CEL expression. The scan is bounded; a page may come back short even when
// older matches exist, in which case callers continue with before_id.
func (s *Service) Search(ctx context.Context, scope Scope, opts SearchOptions) ([]EventRecord, error) {
	if scope.AccountID == "" {
		return nil, ErrUnauthorized
	}
	fil, err := NewFilter(opts.Types, "")
	if err != nil {
		return nil, err
	}
	cf, err := newCELFilter(opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	l, err := s.opener.OpenLog(scope.AccountID)
	if err != nil {
		return nil, fmt.Errorf("open activity log: %w", err)
	}
	return s.scanReverse(l, scope.AccountID, opts.BeforeID, s.clampLimit(opts.Limit), fil, cf)
}

// scanReverse pages the log newest-first, applying filters, until limit
// matches are found or the scan budget runs out.
func (s *Service) scanReverse(l *activitylog.Log, acct string, before uint64, limit int, fil *Filter, cf celFilter) ([]EventRecord, error) {
	out := make([]EventRecord, 0, limit)
	cursor := before
	scanned := 0
	for len(out) < limit && scanned < s.searchScanMax {
		batch := limit - len(out)
		if fil != nil || cf.enabled {
			batch = 128
		}
		items, err := l.Read(activitylog.ReadOptions{
			Start:   activitylog.TokenFromSeq(cursor),
			Limit:   batch,
			Reverse: true,
		})
		if err != nil {
			return nil, fmt.Errorf("read activity log: %w", err)
		}
		if len(items) == 0 {
			break
		}
		for _, it := range items {
			cursor = it.Seq
			scanned++
			rec, ok := eventFromItem(acct, it)
			if !ok || !fil.Match(rec) || !cf.Eval(rec) {
				continue
			}
			out = append(out, rec)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// Stats reports aggregate feed statistics for the account.
func (s *Service) Stats(ctx context.Context, scope Scope) (StatsInfo, error) {
	if scope.AccountID == "" {
		return StatsInfo{}, ErrUnauthorized
	}
	l, err := s.opener.OpenLog(scope.AccountID)
	if err != nil {
		return StatsInfo{}, fmt.Errorf("open activity log: %w", err)
	}
	st := l.CollectStats()
	return StatsInfo{
		AccountID:         scope.AccountID,
		FirstID:           st.FirstSeq,
		LastID:            st.LastSeq,
		Count:             st.Count,
		Bytes:             st.Bytes,
		ActiveSubscribers: s.reg.Count(scope.AccountID),
	}, nil
}

// Subscribe opens a live subscription in the caller's scope.
func (s *Service) Subscribe(ctx context.Context, scope Scope, opts SubscribeOptions) (*Subscription, error) {
	if scope.AccountID == "" {
		return nil, ErrUnauthorized
	}
	return s.reg.Subscribe(ctx, scope, opts)
}

// Unsubscribe removes a subscription. Idempotent.
func (s *Service) Unsubscribe(sub *Subscription) { s.reg.Unsubscribe(sub) }

// Registry exposes the fan-out registry for transports and tests.
func (s *Service) Registry() *Registry { return s.reg }

// Shutdown terminates all subscriptions.
func (s *Service) Shutdown() { s.reg.CloseAll(CloseReasonShutdown) }
