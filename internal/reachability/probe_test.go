package reachability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostPort(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://api.tidepool.org", want: "api.tidepool.org:443"},
		{in: "http://localhost", want: "localhost:80"},
		{in: "http://127.0.0.1:8009/path", want: "127.0.0.1:8009"},
		{in: "ftp://example.org", wantErr: true},
		{in: "not a url", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := hostPort(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProbe_StartsOptimistic(t *testing.T) {
	p, err := NewProbe("https://api.tidepool.org", 0, nil)
	require.NoError(t, err)

	assert.True(t, p.IsReachable())
	assert.Equal(t, DefaultInterval, p.interval)
}

func TestProbe_CheckAgainstLiveServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	p, err := NewProbe(srv.URL, time.Minute, nil)
	require.NoError(t, err)

	assert.True(t, p.Check(context.Background()))
	assert.True(t, p.IsReachable())
}

func TestProbe_CheckFailureFlipsFlag(t *testing.T) {
	p, err := NewProbe("https://api.tidepool.org", time.Minute, nil)
	require.NoError(t, err)

	p.dial = func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("no route to host")
	}

	assert.False(t, p.Check(context.Background()))
	assert.False(t, p.IsReachable())

	p.dial = func(context.Context, string, string) (net.Conn, error) {
		client, server := net.Pipe()
		server.Close()

		return client, nil
	}

	assert.True(t, p.Check(context.Background()))
	assert.True(t, p.IsReachable())
}

func TestProbe_SetNotifications(t *testing.T) {
	p, err := NewProbe("https://api.tidepool.org", 10*time.Millisecond, nil)
	require.NoError(t, err)

	var dials atomic.Int32
	p.dial = func(context.Context, string, string) (net.Conn, error) {
		dials.Add(1)
		return nil, errors.New("down")
	}

	assert.False(t, p.SetNotifications(false), "not running yet")
	assert.True(t, p.SetNotifications(true))
	assert.False(t, p.SetNotifications(true), "already running")

	require.Eventually(t, func() bool { return dials.Load() >= 2 }, 5*time.Second, 5*time.Millisecond)
	assert.False(t, p.IsReachable())

	assert.True(t, p.SetNotifications(false))

	stopped := dials.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, dials.Load(), "no checks after stop")
}

func TestProbe_StopDuringDialKeepsFlag(t *testing.T) {
	p, err := NewProbe("https://example.org", time.Minute, nil)
	require.NoError(t, err)

	dialing := make(chan struct{})
	p.dial = func(ctx context.Context, _, _ string) (net.Conn, error) {
		close(dialing)
		<-ctx.Done()

		return nil, ctx.Err()
	}

	require.True(t, p.SetNotifications(true))
	<-dialing
	require.True(t, p.SetNotifications(false))

	assert.True(t, p.IsReachable(), "an interrupted dial must not mark the host offline")
}

func TestProbe_CheckCanceledContext(t *testing.T) {
	p, err := NewProbe("https://example.org", time.Minute, nil)
	require.NoError(t, err)

	p.dial = func(ctx context.Context, _, _ string) (net.Conn, error) {
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.True(t, p.Check(ctx))
	assert.True(t, p.IsReachable())

	p.dial = func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}

	assert.False(t, p.Check(context.Background()))
	assert.False(t, p.IsReachable())
}
