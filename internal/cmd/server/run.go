package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tdaniel1925/easemail-redux-sub002/internal/activity"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/auth"
	cfgpkg "github.com/tdaniel1925/easemail-redux-sub002/internal/config"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/metrics"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/runtime"
	httpserver "github.com/tdaniel1925/easemail-redux-sub002/internal/server/http"
	pebblestore "github.com/tdaniel1925/easemail-redux-sub002/internal/storage/pebble"
	logpkg "github.com/tdaniel1925/easemail-redux-sub002/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// small wrapper to allow testing
var getenv = func(key string) string { return os.Getenv(key) }

// Options configures a server run.
type Options struct {
	DataDir       string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so callers that
	// pass context.Background still get clean SIGTERM handling.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.HTTPAddr == "" {
		opts.HTTPAddr = opts.Config.HTTPAddr
	}

	logCfg := &logpkg.Config{
		Level:  getenvDefault("EASEMAIL_LOG_LEVEL", "info"),
		Format: getenvDefault("EASEMAIL_LOG_FORMAT", "text"),
	}
	procLogger, err := logpkg.ApplyConfig(logCfg)
	if err != nil {
		procLogger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	// Redirect stdlib logs (e.g. Pebble) to our logger.
	logpkg.RedirectStdLog(procLogger)

	mtr := metrics.New()
	storeDir := filepath.Join(opts.DataDir, "store")
	rt, err := runtime.Open(runtime.Options{
		DataDir:       storeDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
		Logger:        procLogger,
		Metrics:       mtr,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("Starting easemail activity server",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", storeDir),
		logpkg.Str("level", logCfg.Level),
		logpkg.Str("format", logCfg.Format),
		logpkg.Int("stream_buf", opts.Config.Stream.BufferLen),
		logpkg.Int("keepalive_ms", opts.Config.Stream.KeepAliveMs),
	)

	svc := activity.NewService(activity.ServiceOptions{
		DB:              rt.DB(),
		Opener:          rt,
		Logger:          procLogger,
		Metrics:         mtr,
		SnapshotLimit:   opts.Config.SnapshotLimit,
		PayloadMaxBytes: opts.Config.PayloadMaxBytes,
		BufferLen:       opts.Config.Stream.BufferLen,
		ReplayBatch:     opts.Config.Stream.ReplayBatch,
	})

	hsrv := httpserver.New(httpserver.Options{
		Runtime: rt,
		Service: svc,
		Auth:    auth.New(opts.Config.AuthTokens),
		Metrics: mtr,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- hsrv.ListenAndServe(sctx, opts.HTTPAddr) }()

	select {
	case <-sctx.Done():
	case err := <-errCh:
		if err != nil && sctx.Err() == nil {
			return err
		}
	}
	hsrv.Close()
	return nil
}
