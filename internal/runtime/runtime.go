// Package runtime owns process-wide state: the Pebble store and the
// per-account activity logs opened from it.
package runtime

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/account"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/activitylog"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/config"
	pebblestore "github.com/tdaniel1925/easemail-redux-sub002/internal/storage/pebble"
	"github.com/tdaniel1925/easemail-redux-sub002/pkg/log"
)

// Runtime bundles the open store with a cache of per-account logs. The
// cache matters for correctness, not just speed: all writers to one
// account must share a Log instance so sequence assignment is serialized.
type Runtime struct {
	db     *pebblestore.DB
	cfg    config.Config
	logger log.Logger

	mu   sync.Mutex
	logs map[string]*activitylog.Log
}

// Options configures a Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        config.Config
	Logger        log.Logger
	Metrics       pebblestore.MetricsHook
}

// Open opens the store and returns a ready Runtime.
func Open(opts Options) (*Runtime, error) {
	if opts.Logger == nil {
		opts.Logger = log.NewLogger()
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Metrics:       opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &Runtime{
		db:     db,
		cfg:    opts.Config,
		logger: opts.Logger.With(log.Component("runtime")),
		logs:   make(map[string]*activitylog.Log),
	}, nil
}

// DB returns the underlying store.
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the loaded configuration.
func (r *Runtime) Config() config.Config { return r.cfg }

// Logger returns the root logger.
func (r *Runtime) Logger() log.Logger { return r.logger }

// OpenLog returns the account's activity log, opening it on first use.
func (r *Runtime) OpenLog(acct string) (*activitylog.Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.logs[acct]; ok {
		return l, nil
	}
	l, err := activitylog.OpenLog(r.db, acct)
	if err != nil {
		return nil, err
	}
	r.logs[acct] = l
	return l, nil
}

// EnsureAccount registers the account if unseen.
func (r *Runtime) EnsureAccount(id string) (account.Meta, error) {
	return account.Ensure(r.db, id)
}

// CheckHealth verifies the store answers reads.
func (r *Runtime) CheckHealth() error {
	_, err := r.db.Get([]byte("health/probe"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return err
	}
	return nil
}

// Close releases the store.
func (r *Runtime) Close() error {
	return r.db.Close()
}
