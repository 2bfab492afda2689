package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_StopsOnCancel(t *testing.T) {
	server := &http.Server{
		Addr:    "127.0.0.1:0",
		Handler: http.NotFoundHandler(),
	}

	hookRan := make(chan struct{})
	hooks := &ShutdownHooks{}
	hooks.Add("marker", func(context.Context) error {
		close(hookRan)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, server, time.Second, hooks)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	select {
	case <-hookRan:
	default:
		assert.Fail(t, "shutdown hook did not run")
	}
}

func TestServe_ListenFailure(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:99999"}

	err := Serve(context.Background(), server, time.Second, nil)

	assert.ErrorContains(t, err, "server:")
}
