package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/douyudm/dmclient/internal/config"
	"github.com/douyudm/dmclient/internal/danmaku"
	dmnet "github.com/douyudm/dmclient/internal/net"
	"github.com/douyudm/dmclient/internal/net/packet"
)

const waitTimeout = 2 * time.Second

// manualTicker fires only when the test sends on ticks.
type manualTicker struct {
	ticks chan time.Time
}

func (m manualTicker) C() <-chan time.Time { return m.ticks }
func (m manualTicker) Stop()               {}

type harness struct {
	srv       *dmnet.Server
	client    *Client
	ticks     chan time.Time
	mu        sync.Mutex
	intervals []time.Duration
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	srv, err := dmnet.NewServer("127.0.0.1:0", 0, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go srv.AcceptLoop()
	t.Cleanup(srv.Shutdown)

	h := &harness{srv: srv, ticks: make(chan time.Time)}
	addr := srv.Addr().(*net.TCPAddr)
	cfg := config.Defaults().Client
	opts = append([]Option{WithTicker(func(d time.Duration) Ticker {
		h.mu.Lock()
		h.intervals = append(h.intervals, d)
		h.mu.Unlock()
		return manualTicker{ticks: h.ticks}
	})}, opts...)
	h.client = New(config.ServerConfig{Host: addr.IP.String(), Port: addr.Port}, cfg, opts...)
	t.Cleanup(h.client.Disconnect)
	return h
}

func (h *harness) peer(t *testing.T) *dmnet.Peer {
	t.Helper()
	select {
	case p := <-h.srv.Peers():
		t.Cleanup(p.Close)
		return p
	case <-time.After(waitTimeout):
		t.Fatal("server accepted no connection")
		return nil
	}
}

// connect joins room and consumes the handshake and the immediate first
// heartbeat on the server side.
func (h *harness) connect(t *testing.T, room int) *dmnet.Peer {
	t.Helper()
	if err := h.client.Connect(context.Background(), room); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	p := h.peer(t)
	expectText(t, p, loginRequest(room))
	expectText(t, p, joinGroup(room, -9999))
	expectText(t, p, "type@=mkrl/")
	return p
}

func expectText(t *testing.T, p *dmnet.Peer, want string) {
	t.Helper()
	select {
	case f, ok := <-p.Frames():
		if !ok {
			t.Fatalf("connection closed, want %q", want)
		}
		if f.Direction != dmnet.ClientToServer {
			t.Fatalf("direction = %v", f.Direction)
		}
		if got := f.Text(); got != want {
			t.Fatalf("frame = %q, want %q", got, want)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func expectClosed(t *testing.T, p *dmnet.Peer) {
	t.Helper()
	select {
	case f, ok := <-p.Frames():
		if ok {
			t.Fatalf("unexpected frame %q after close", f.Text())
		}
	case <-time.After(waitTimeout):
		t.Fatal("connection not closed")
	}
}

func TestConnectHandshake(t *testing.T) {
	h := newHarness(t)
	connected := make(chan int, 1)
	h.client.OnConnected(func(room int) { connected <- room })

	if got := loginRequest(288016); got != "type@=loginreq/roomid@=288016/" {
		t.Fatalf("loginreq = %q", got)
	}
	if got := joinGroup(288016, -9999); got != "type@=joingroup/rid@=288016/gid@=-9999/" {
		t.Fatalf("joingroup = %q", got)
	}

	h.connect(t, 288016)

	select {
	case room := <-connected:
		if room != 288016 {
			t.Fatalf("connected room = %d", room)
		}
	default:
		t.Fatal("Connected not published before Connect returned")
	}
	if h.client.State() != Connected || h.client.RoomID() != 288016 {
		t.Fatalf("state = %v room = %d", h.client.State(), h.client.RoomID())
	}
	if h.client.LastError() != nil {
		t.Fatalf("last error = %v", h.client.LastError())
	}
}

func TestConnectWhileConnected(t *testing.T) {
	h := newHarness(t)
	p := h.connect(t, 1)

	if err := h.client.Connect(context.Background(), 2); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("second Connect = %v, want ErrAlreadyConnected", err)
	}
	if h.client.State() != Connected || h.client.RoomID() != 1 {
		t.Fatalf("existing connection disturbed: %v room %d", h.client.State(), h.client.RoomID())
	}
	select {
	case <-h.srv.Peers():
		t.Fatal("second Connect dialed the server")
	default:
	}

	// The first session still works.
	if err := p.SendText("type@=chatmsg/rid@=1/txt@=still here/"); err != nil {
		t.Fatalf("peer send: %v", err)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.client.Disconnect()

	lost := make(chan error, 1)
	h.client.OnDisconnected(func(err error) { lost <- err })

	p := h.connect(t, 1)
	h.client.Disconnect()
	h.client.Disconnect()

	expectText(t, p, "type@=logout/")
	expectClosed(t, p)

	if h.client.State() != Disconnected {
		t.Fatalf("state = %v", h.client.State())
	}
	select {
	case err := <-lost:
		t.Fatalf("Disconnected published for caller disconnect: %v", err)
	default:
	}
	if err := h.client.SendText(dmnet.ClientToServer, 0, 0, "type@=mkrl/"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendText after Disconnect = %v", err)
	}
}

func TestHeartbeatCadence(t *testing.T) {
	h := newHarness(t)
	p := h.connect(t, 1)

	h.mu.Lock()
	intervals := append([]time.Duration(nil), h.intervals...)
	h.mu.Unlock()
	if len(intervals) != 1 || intervals[0] != 30*time.Second {
		t.Fatalf("ticker intervals = %v, want [30s]", intervals)
	}

	for i := 0; i < 3; i++ {
		h.ticks <- time.Now()
		expectText(t, p, "type@=mkrl/")
	}

	h.client.Disconnect()

	// The heartbeat goroutine has exited, so nobody takes the tick.
	select {
	case h.ticks <- time.Now():
		t.Fatal("heartbeat still running after Disconnect")
	default:
	}
	expectText(t, p, "type@=logout/")
	expectClosed(t, p)
}

func TestServerCloseIsUnexpectedDisconnect(t *testing.T) {
	h := newHarness(t)
	lost := make(chan error, 1)
	h.client.OnDisconnected(func(err error) { lost <- err })

	p := h.connect(t, 7)
	p.Close()

	var err error
	select {
	case err = <-lost:
	case <-time.After(waitTimeout):
		t.Fatal("no Disconnected event")
	}
	if err == nil {
		t.Fatal("Disconnected carried nil error")
	}
	if h.client.State() != Disconnected {
		t.Fatalf("state = %v", h.client.State())
	}
	if h.client.LastError() != err {
		t.Fatalf("last error = %v, want %v", h.client.LastError(), err)
	}

	// A new epoch can start after an error teardown.
	h.connect(t, 8)
	if h.client.State() != Connected || h.client.LastError() != nil {
		t.Fatalf("reconnect: state %v err %v", h.client.State(), h.client.LastError())
	}
}

func TestMessagesInOrderAndParseErrorsSkipped(t *testing.T) {
	h := newHarness(t)
	got := make(chan danmaku.Event, 8)
	bad := make(chan string, 8)
	h.client.OnMessage(func(ev danmaku.Event) { got <- ev })
	h.client.OnParseError(func(raw string, err error) { bad <- raw })

	p := h.connect(t, 100)
	frames := []string{
		"type@=chatmsg/rid@=100/nn@=Alice/txt@=1/",
		"type@=chatmsg/rid@=oops/",
		"type@=dgb/gfid@=123/gfcnt@=5/hits@=2/",
		"type@=chatmsg/rid@=100/nn@=Alice/txt@=2/",
		"type@=loginres/",
	}
	for _, f := range frames {
		if err := p.SendText(f); err != nil {
			t.Fatalf("peer send: %v", err)
		}
	}

	want := []danmaku.MsgType{danmaku.MsgChat, danmaku.MsgGiftSend, danmaku.MsgChat, danmaku.MsgUnrecognized}
	var texts []string
	for i, w := range want {
		select {
		case ev := <-got:
			if ev.Type() != w {
				t.Fatalf("event %d = %v, want %v", i, ev.Type(), w)
			}
			if chat, ok := ev.(*danmaku.ChatMessage); ok {
				texts = append(texts, chat.Text)
			}
		case <-time.After(waitTimeout):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	if len(texts) != 2 || texts[0] != "1" || texts[1] != "2" {
		t.Fatalf("chat order = %v", texts)
	}
	select {
	case raw := <-bad:
		if raw != "type@=chatmsg/rid@=oops/" {
			t.Fatalf("parse error raw = %q", raw)
		}
	default:
		t.Fatal("parse error not reported")
	}
	if h.client.State() != Connected {
		t.Fatalf("parse error ended the session")
	}
}

func TestConnectFailureLeavesDisconnected(t *testing.T) {
	dialErr := errors.New("network unreachable")
	h := newHarness(t, WithDialer(func(context.Context, string, string) (net.Conn, error) {
		return nil, dialErr
	}))

	err := h.client.Connect(context.Background(), 1)
	if !errors.Is(err, dialErr) {
		t.Fatalf("Connect = %v, want %v", err, dialErr)
	}
	if h.client.State() != Disconnected || !errors.Is(h.client.LastError(), dialErr) {
		t.Fatalf("state %v last error %v", h.client.State(), h.client.LastError())
	}
	// A failed attempt does not block the next one.
	if err := h.client.Connect(context.Background(), 1); errors.Is(err, ErrAlreadyConnected) {
		t.Fatal("failed Connect left the client marked connected")
	}
}

func TestHandshakeFailureClosesSocket(t *testing.T) {
	server, clientSide := net.Pipe()
	server.Close()
	h := newHarness(t, WithDialer(func(context.Context, string, string) (net.Conn, error) {
		return clientSide, nil
	}))

	if err := h.client.Connect(context.Background(), 1); err == nil {
		t.Fatal("Connect succeeded over a dead pipe")
	}
	if h.client.State() != Disconnected {
		t.Fatalf("state = %v", h.client.State())
	}
	if err := h.client.LastError(); err == nil {
		t.Fatal("handshake failure not recorded")
	}
}

type fakeResolver map[string]int

var errUnknownRoom = errors.New("unknown room")

func (f fakeResolver) Resolve(_ context.Context, name string) (int, error) {
	if id, ok := f[name]; ok {
		return id, nil
	}
	return 0, errUnknownRoom
}

func TestConnectByName(t *testing.T) {
	h := newHarness(t, WithResolver(fakeResolver{"lol": 288016}))

	if err := h.client.ConnectByName(context.Background(), "nope"); err != errUnknownRoom {
		t.Fatalf("ConnectByName = %v, want resolver error unchanged", err)
	}
	if err := h.client.ConnectByName(context.Background(), "lol"); err != nil {
		t.Fatalf("ConnectByName: %v", err)
	}
	p := h.peer(t)
	expectText(t, p, "type@=loginreq/roomid@=288016/")

	noResolver := New(config.ServerConfig{Host: "127.0.0.1", Port: 1}, config.ClientConfig{})
	if err := noResolver.ConnectByName(context.Background(), "lol"); !errors.Is(err, ErrNoResolver) {
		t.Fatalf("without resolver = %v", err)
	}
}

var errWriteBroken = errors.New("write broken")

// brokenWriteConn lets the first limit writes through and fails the rest.
type brokenWriteConn struct {
	net.Conn
	limit  int32
	writes atomic.Int32
}

func (c *brokenWriteConn) Write(b []byte) (int, error) {
	if c.writes.Add(1) > c.limit {
		return 0, errWriteBroken
	}
	return c.Conn.Write(b)
}

func waitState(t *testing.T, c *Client, want State) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for c.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want %v", c.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHeartbeatFailureTearsDown(t *testing.T) {
	h := newHarness(t, WithDialer(func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := (&net.Dialer{}).DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &brokenWriteConn{Conn: conn, limit: 2}, nil
	}))
	lost := make(chan error, 1)
	h.client.OnDisconnected(func(err error) { lost <- err })

	if err := h.client.Connect(context.Background(), 5); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	p := h.peer(t)
	expectText(t, p, loginRequest(5))
	expectText(t, p, joinGroup(5, -9999))

	var err error
	select {
	case err = <-lost:
	case <-time.After(waitTimeout):
		t.Fatal("no Disconnected event after heartbeat failure")
	}
	if !errors.Is(err, errWriteBroken) || !strings.HasPrefix(err.Error(), "heartbeat:") {
		t.Fatalf("Disconnected err = %v", err)
	}
	if h.client.State() != Disconnected {
		t.Fatalf("state = %v", h.client.State())
	}
	if h.client.LastError() != err {
		t.Fatalf("last error = %v, want %v", h.client.LastError(), err)
	}
	// Error teardown sends no logout.
	expectClosed(t, p)
}

func TestConcurrentTeardownPublishesAtMostOnce(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := newHarness(t)
		var lost atomic.Int32
		h.client.OnDisconnected(func(error) { lost.Add(1) })
		p := h.connect(t, 1)

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			p.Close()
		}()
		for j := 0; j < 2; j++ {
			go func() {
				defer wg.Done()
				h.client.Disconnect()
			}()
		}
		wg.Wait()

		waitState(t, h.client, Disconnected)
		if n := lost.Load(); n > 1 {
			t.Fatalf("iteration %d: Disconnected published %d times", i, n)
		}
	}
}

func TestSendRawFrame(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		if conn, err := ln.Accept(); err == nil {
			accepted <- conn
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	c := New(config.ServerConfig{Host: addr.IP.String(), Port: addr.Port}, config.Defaults().Client,
		WithTicker(func(time.Duration) Ticker { return manualTicker{ticks: make(chan time.Time)} }))
	if err := c.Connect(context.Background(), 1); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(waitTimeout):
		t.Fatal("no connection accepted")
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(waitTimeout))

	for _, want := range []string{loginRequest(1), joinGroup(1, -9999), "type@=mkrl/"} {
		f, err := dmnet.ReadFrame(conn, 0)
		if err != nil {
			t.Fatalf("read %q: %v", want, err)
		}
		if f.Text() != want {
			t.Fatalf("frame = %q, want %q", f.Text(), want)
		}
	}

	payload := []byte{0x01, 0x00, 'a', 0xff}
	if err := c.Send(dmnet.ClientToServer, 3, 4, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf := make([]byte, dmnet.HeaderSize+len(payload))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read raw frame: %v", err)
	}
	hdr, err := dmnet.DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	want := uint32(9 + len(payload))
	if hdr.Length != want || hdr.Length2 != want {
		t.Fatalf("lengths = %d/%d, want %d", hdr.Length, hdr.Length2, want)
	}
	if hdr.Direction != dmnet.ClientToServer || hdr.Cipher != 3 || hdr.Reserve != 4 {
		t.Fatalf("header = %+v", hdr)
	}
	if !bytes.Equal(buf[dmnet.HeaderSize:], payload) {
		t.Fatalf("payload = %x, want %x", buf[dmnet.HeaderSize:], payload)
	}

	// No terminator follows the raw payload: the next frame starts right
	// after it.
	if err := c.SendMessage(packet.NewWriterWithType("chatmessage").WriteS("content", "a/b")); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	f, err := dmnet.ReadFrame(conn, 0)
	if err != nil {
		t.Fatalf("read text frame: %v", err)
	}
	if f.Text() != "type@=chatmessage/content@=a@Sb/" || f.Direction != dmnet.ClientToServer {
		t.Fatalf("SendMessage frame = %q (%v)", f.Text(), f.Direction)
	}
}
