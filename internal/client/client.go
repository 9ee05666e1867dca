// Package client maintains a danmaku session: it dials the server, performs
// the login handshake, keeps the connection alive with heartbeats and
// publishes decoded room events on an event.Bus.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/douyudm/dmclient/internal/config"
	"github.com/douyudm/dmclient/internal/core/event"
	"github.com/douyudm/dmclient/internal/danmaku"
	dmnet "github.com/douyudm/dmclient/internal/net"
	"github.com/douyudm/dmclient/internal/net/packet"
	"go.uber.org/zap"
)

var (
	ErrAlreadyConnected = errors.New("client already connected")
	ErrNotConnected     = errors.New("client not connected")
	ErrNoResolver       = errors.New("no room resolver configured")
)

type State int32

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "Connected"
	}
	return "Disconnected"
}

// Client is safe for concurrent use. One Client holds at most one session
// at a time; Connect after a teardown starts a new one.
type Client struct {
	addr string
	cfg  config.ClientConfig

	log       *zap.Logger
	bus       *event.Bus
	parser    *danmaku.Parser
	resolver  Resolver
	dial      DialFunc
	newTicker func(d time.Duration) Ticker

	nextID atomic.Uint64

	mu         sync.Mutex // guards the fields below
	sess       *epoch
	connecting bool
	state      State
	roomID     int
	lastErr    error
}

// epoch is the state of one connection from Connect to teardown.
type epoch struct {
	sess   *dmnet.Session
	roomID int

	torn   atomic.Bool // set by whichever path tears the session down
	hbStop chan struct{}
	hbDone chan struct{}
}

func New(server config.ServerConfig, cfg config.ClientConfig, opts ...Option) *Client {
	c := &Client{
		addr:      server.Address(),
		cfg:       cfg,
		log:       zap.NewNop(),
		dial:      (&net.Dialer{}).DialContext,
		newTicker: newRealTicker,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bus == nil {
		c.bus = event.NewBus()
	}
	if c.parser == nil {
		c.parser = danmaku.NewParser(danmaku.WithLogger(c.log))
	}
	if c.cfg.HeartbeatInterval <= 0 {
		c.cfg.HeartbeatInterval = config.Defaults().Client.HeartbeatInterval
	}
	return c
}

// Connect dials the server and joins roomID. On success the session is
// live, event.Connected has been published and the heartbeat and receive
// loop are running. On failure nothing stays open.
//
// Connected is published on the caller's goroutine after the heartbeat has
// started and before the receive loop starts, so no Received event can
// precede it.
func (c *Client) Connect(ctx context.Context, roomID int) error {
	c.mu.Lock()
	if c.sess != nil || c.connecting {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.connecting = true
	c.mu.Unlock()

	ep, err := c.open(ctx, roomID)

	c.mu.Lock()
	c.connecting = false
	if err != nil {
		c.state = Disconnected
		c.lastErr = err
		c.mu.Unlock()
		c.log.Warn("連線失敗", zap.Int("room", roomID), zap.Error(err))
		return err
	}
	c.sess = ep
	c.state = Connected
	c.roomID = roomID
	c.lastErr = nil
	c.mu.Unlock()

	c.log.Info("已連線", zap.Int("room", roomID), zap.String("addr", c.addr))
	go c.heartbeat(ep)
	event.Publish(c.bus, event.Connected{RoomID: roomID})
	go c.receive(ep)
	return nil
}

// open dials and performs the handshake. The returned epoch has no
// goroutines attached yet.
func (c *Client) open(ctx context.Context, roomID int) (*epoch, error) {
	if c.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
	}
	conn, err := c.dial(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.addr, err)
	}

	id := c.nextID.Add(1)
	sess := dmnet.NewSession(conn, id, dmnet.SessionOptions{
		Direction:    dmnet.ClientToServer,
		WriteTimeout: c.cfg.WriteTimeout,
		MaxFrameSize: c.cfg.MaxFrameSize,
	}, c.log.With(zap.Int("room", roomID)))

	for _, msg := range []string{loginRequest(roomID), joinGroup(roomID, c.cfg.GroupID)} {
		if err := sess.SendText(msg); err != nil {
			sess.Close()
			return nil, fmt.Errorf("handshake: %w", err)
		}
	}

	return &epoch{
		sess:   sess,
		roomID: roomID,
		hbStop: make(chan struct{}),
		hbDone: make(chan struct{}),
	}, nil
}

// ConnectByName resolves name and connects to the resulting room. Resolver
// errors are returned unchanged.
func (c *Client) ConnectByName(ctx context.Context, name string) error {
	if c.resolver == nil {
		return ErrNoResolver
	}
	roomID, err := c.resolver.Resolve(ctx, name)
	if err != nil {
		return err
	}
	return c.Connect(ctx, roomID)
}

// Disconnect ends the current session. It is a no-op when not connected and
// never publishes event.Disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	ep := c.sess
	c.mu.Unlock()
	if ep == nil {
		return
	}
	if c.teardown(ep, nil) {
		c.log.Info("已斷線", zap.Int("room", ep.roomID))
	}
}

// teardown runs at most once per epoch. A nil cause is a caller-initiated
// disconnect: logout is attempted and no event is published.
func (c *Client) teardown(ep *epoch, cause error) bool {
	if !ep.torn.CompareAndSwap(false, true) {
		return false
	}

	close(ep.hbStop)
	<-ep.hbDone

	if cause == nil {
		if err := ep.sess.SendText(logout()); err != nil {
			c.log.Debug("登出封包發送失敗", zap.Error(err))
		}
	}
	ep.sess.Close()

	c.mu.Lock()
	if c.sess == ep {
		c.sess = nil
		c.state = Disconnected
		if cause != nil {
			c.lastErr = cause
		}
	}
	c.mu.Unlock()

	if cause != nil {
		c.log.Warn("連線中斷", zap.Int("room", ep.roomID), zap.Error(cause))
		event.Publish(c.bus, event.Disconnected{RoomID: ep.roomID, Err: cause})
	}
	return true
}

// Send writes one raw frame on the current session. The payload is sent
// unmodified without a text terminator.
func (c *Client) Send(dir dmnet.Direction, cipher, reserve byte, payload []byte) error {
	ep := c.current()
	if ep == nil {
		return ErrNotConnected
	}
	return ep.sess.Send(dir, cipher, reserve, payload)
}

// SendText writes one NUL-terminated text frame on the current session.
func (c *Client) SendText(dir dmnet.Direction, cipher, reserve byte, text string) error {
	ep := c.current()
	if ep == nil {
		return ErrNotConnected
	}
	return ep.sess.SendTextFrame(dir, cipher, reserve, text)
}

// SendMessage serializes w and sends it as a client text frame.
func (c *Client) SendMessage(w *packet.Writer) error {
	return c.SendText(dmnet.ClientToServer, 0, 0, w.String())
}

func (c *Client) current() *epoch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RoomID returns the room of the current or most recent session.
func (c *Client) RoomID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// LastError returns the error that ended the last session or failed the
// last Connect. A successful Connect clears it.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Client) Bus() *event.Bus {
	return c.bus
}

// OnMessage subscribes fn to decoded room events.
func (c *Client) OnMessage(fn func(danmaku.Event)) (cancel func()) {
	return event.Subscribe(c.bus, func(ev event.Received) { fn(ev.Event) })
}

func (c *Client) OnConnected(fn func(roomID int)) (cancel func()) {
	return event.Subscribe(c.bus, func(ev event.Connected) { fn(ev.RoomID) })
}

// OnDisconnected subscribes fn to unexpected session loss.
func (c *Client) OnDisconnected(fn func(err error)) (cancel func()) {
	return event.Subscribe(c.bus, func(ev event.Disconnected) { fn(ev.Err) })
}

func (c *Client) OnParseError(fn func(raw string, err error)) (cancel func()) {
	return event.Subscribe(c.bus, func(ev event.ParseFailed) { fn(ev.Raw, ev.Err) })
}
