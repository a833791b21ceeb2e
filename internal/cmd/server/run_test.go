package serverrun

import (
	"context"
	"testing"
	"time"

	cfgpkg "github.com/tdaniel1925/easemail-redux-sub002/internal/config"
	pebblestore "github.com/tdaniel1925/easemail-redux-sub002/internal/storage/pebble"
)

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{
			DataDir:  t.TempDir(),
			HTTPAddr: "127.0.0.1:0",
			Fsync:    pebblestore.FsyncModeNever,
			Config:   cfgpkg.Default(),
		})
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop on cancel")
	}
}
