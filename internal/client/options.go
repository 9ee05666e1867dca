package client

import (
	"context"
	"net"
	"time"

	"github.com/douyudm/dmclient/internal/core/event"
	"github.com/douyudm/dmclient/internal/danmaku"
	"go.uber.org/zap"
)

// Resolver maps a human-readable room name to a numeric room id.
type Resolver interface {
	Resolve(ctx context.Context, name string) (int, error)
}

// DialFunc opens the transport connection.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Ticker drives the heartbeat. It matches the subset of *time.Ticker the
// client needs so tests can fire beats by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type Option func(*Client)

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithBus publishes events to an existing bus instead of a private one.
func WithBus(b *event.Bus) Option {
	return func(c *Client) { c.bus = b }
}

func WithResolver(r Resolver) Option {
	return func(c *Client) { c.resolver = r }
}

func WithDialer(d DialFunc) Option {
	return func(c *Client) { c.dial = d }
}

// WithTicker replaces the heartbeat ticker factory.
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(c *Client) { c.newTicker = newTicker }
}

func WithParser(p *danmaku.Parser) Option {
	return func(c *Client) { c.parser = p }
}
