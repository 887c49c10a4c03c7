// Package reachability implements a network reachability source backed by a
// periodic TCP dial to the service host. Readers only ever see a cached
// flag, so IsReachable never blocks.
package reachability

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is how often the probe re-dials while notifications are on.
const DefaultInterval = 30 * time.Second

// dialTimeout bounds a single reachability check.
const dialTimeout = 5 * time.Second

// DialFunc opens a connection; tests substitute a fake.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Probe reports whether the service host accepts TCP connections.
type Probe struct {
	addr     string
	interval time.Duration
	dial     DialFunc
	logger   *slog.Logger

	reachable atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProbe creates a probe for the host in baseURL. The probe starts out
// optimistic (reachable) until the first check says otherwise.
func NewProbe(baseURL string, interval time.Duration, logger *slog.Logger) (*Probe, error) {
	addr, err := hostPort(baseURL)
	if err != nil {
		return nil, err
	}

	if interval <= 0 {
		interval = DefaultInterval
	}

	if logger == nil {
		logger = slog.Default()
	}

	d := &net.Dialer{}
	p := &Probe{
		addr:     addr,
		interval: interval,
		dial:     d.DialContext,
		logger:   logger,
	}
	p.reachable.Store(true)

	return p, nil
}

// hostPort extracts host:port from an http(s) URL, defaulting the port from
// the scheme.
func hostPort(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("reachability: invalid base URL %q", baseURL)
	}

	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		default:
			return "", fmt.Errorf("reachability: unsupported scheme %q", u.Scheme)
		}
	}

	return net.JoinHostPort(u.Hostname(), port), nil
}

// IsReachable returns the cached result of the last check.
func (p *Probe) IsReachable() bool {
	return p.reachable.Load()
}

// Check dials the host once and updates the cached flag. A dial cut short
// by cancellation of ctx says nothing about the host and leaves the flag
// unchanged.
func (p *Probe) Check(ctx context.Context) bool {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, err := p.dial(dialCtx, "tcp", p.addr)
	ok := err == nil

	if conn != nil {
		conn.Close()
	}

	if !ok && ctx.Err() != nil {
		p.logger.Debug("reachability check canceled", slog.String("addr", p.addr))
		return p.reachable.Load()
	}

	if prev := p.reachable.Swap(ok); prev != ok {
		p.logger.Info("reachability changed",
			slog.String("addr", p.addr),
			slog.Bool("reachable", ok),
		)
	}

	return ok
}

// SetNotifications starts (on) or stops (off) the background check loop.
// It reports false when the loop was already in the requested state.
func (p *Probe) SetNotifications(on bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	running := p.cancel != nil
	if on == running {
		return false
	}

	if !on {
		p.cancel()
		<-p.done
		p.cancel = nil
		p.done = nil

		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(ctx, p.done)

	return true
}

func (p *Probe) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
