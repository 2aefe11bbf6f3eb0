package daemon

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/refcap/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hookRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *hookRecorder) hook(name string) ShutdownHook {
	return func(context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.order = append(r.order, name)
		return nil
	}
}

func (r *hookRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func startManagerForHooks(t *testing.T) (Manager, context.CancelFunc, chan error) {
	t.Helper()

	mgr, err := NewManager(testServerConfig("127.0.0.1:0"), Deps{
		Logger:  log.WithComponent("test"),
		Handler: http.NotFoundHandler(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- mgr.Start(ctx)
	}()
	time.Sleep(50 * time.Millisecond)

	return mgr, cancel, errCh
}

func TestManager_ShutdownRunsHooksInReverseOrder(t *testing.T) {
	rec := &hookRecorder{}

	mgr, cancel, errCh := startManagerForHooks(t)
	mgr.RegisterShutdownHook("store", rec.hook("store"))
	mgr.RegisterShutdownHook("capture", rec.hook("capture"))
	mgr.RegisterShutdownHook("telemetry", rec.hook("telemetry"))

	cancel()

	select {
	case startErr := <-errCh:
		require.NoError(t, startErr)
	case <-time.After(3 * time.Second):
		t.Fatal("manager.Start did not return after cancellation")
	}

	assert.Equal(t, []string{"telemetry", "capture", "store"}, rec.names())
}

func TestManager_ShutdownAggregatesHookErrors(t *testing.T) {
	rec := &hookRecorder{}
	hookErr := errors.New("store close failed")

	mgr, cancel, errCh := startManagerForHooks(t)
	mgr.RegisterShutdownHook("store", func(context.Context) error { return hookErr })
	mgr.RegisterShutdownHook("capture", rec.hook("capture"))

	cancel()

	select {
	case startErr := <-errCh:
		require.Error(t, startErr)
		assert.ErrorIs(t, startErr, hookErr)
	case <-time.After(3 * time.Second):
		t.Fatal("manager.Start did not return after cancellation")
	}

	// The failing hook must not stop the remaining hooks from running.
	assert.Equal(t, []string{"capture"}, rec.names())
}
