package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/exprsn/platform/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStopsOnCancelAndRunsHooks(t *testing.T) {
	srv := New("test", 0, http.NotFoundHandler(), logger.Discard())
	srv.httpServer.Addr = "127.0.0.1:0"

	hooked := make(chan struct{})
	srv.OnShutdown(func(ctx context.Context) error {
		close(hooked)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	select {
	case <-hooked:
	default:
		assert.Fail(t, "shutdown hook not called")
	}
}
