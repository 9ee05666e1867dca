package net

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Session owns one TCP connection carrying danmaku frames. Writes from any
// goroutine are serialized so each frame reaches the socket as one unit;
// reads are expected from a single goroutine and run independently.
type Session struct {
	ID   uint64
	conn net.Conn
	IP   string

	writeTimeout time.Duration
	maxFrame     int
	dir          Direction // direction stamped on outbound frames

	mu sync.Mutex // serializes frame writes

	closeOnce sync.Once
	closed    atomic.Bool

	log *zap.Logger
}

// SessionOptions configures a Session. Zero values select the defaults.
type SessionOptions struct {
	Direction    Direction
	WriteTimeout time.Duration
	MaxFrameSize int
}

func NewSession(conn net.Conn, id uint64, opts SessionOptions, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Direction == 0 {
		opts.Direction = ClientToServer
	}
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = DefaultMaxFrameSize
	}
	return &Session{
		ID:           id,
		conn:         conn,
		IP:           conn.RemoteAddr().String(),
		writeTimeout: opts.WriteTimeout,
		maxFrame:     opts.MaxFrameSize,
		dir:          opts.Direction,
		log:          log.With(zap.Uint64("session", id)),
	}
}

// SendText writes one text frame with the trailing NUL.
func (s *Session) SendText(text string) error {
	return s.write(EncodeText(s.dir, 0, 0, text))
}

// Send writes one frame with an explicit header. The payload is not
// NUL-terminated.
func (s *Session) Send(dir Direction, cipher, reserve byte, payload []byte) error {
	return s.write(EncodeFrame(dir, cipher, reserve, payload))
}

// SendTextFrame writes one NUL-terminated text frame with an explicit header.
func (s *Session) SendTextFrame(dir Direction, cipher, reserve byte, text string) error {
	return s.write(EncodeText(dir, cipher, reserve, text))
}

func (s *Session) write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return net.ErrClosed
	}
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if err := WriteFrame(s.conn, frame); err != nil {
		return err
	}
	s.log.Debug("TX", zap.Int("len", len(frame)))
	return nil
}

// ReadFrame blocks until one complete frame has arrived.
func (s *Session) ReadFrame() (*Frame, error) {
	f, err := ReadFrame(s.conn, s.maxFrame)
	if err != nil {
		return nil, err
	}
	s.log.Debug("RX", zap.Int("len", len(f.Payload)))
	return f, nil
}

// Close closes the socket once. A blocked ReadFrame returns promptly.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.conn.Close()
	})
}

// IsClosed reports whether Close was called locally.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}
