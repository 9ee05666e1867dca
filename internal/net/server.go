package net

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"go.uber.org/zap"
)

// Server is a loopback stand-in for the danmaku endpoint. It accepts
// clients and hands each one out as a Peer; what a peer is sent is up to
// the caller (replay scripts, tests).
type Server struct {
	listener net.Listener
	nextID   atomic.Uint64
	newPeers chan *Peer
	opts     SessionOptions
	log      *zap.Logger
	closeCh  chan struct{}
}

func NewServer(bindAddr string, maxFrameSize int, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", bindAddr, err)
	}
	return &Server{
		listener: ln,
		newPeers: make(chan *Peer, 64),
		opts:     SessionOptions{Direction: ServerToClient, MaxFrameSize: maxFrameSize},
		log:      log,
		closeCh:  make(chan struct{}),
	}, nil
}

// AcceptLoop runs in its own goroutine until Shutdown.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error("連線接受失敗", zap.Error(err))
			continue
		}

		id := s.nextID.Add(1)
		p := newPeer(NewSession(conn, id, s.opts, s.log))
		go p.readLoop()

		s.log.Info(fmt.Sprintf("客戶端連線  session=%d  ip=%s", id, p.IP))

		select {
		case s.newPeers <- p:
		default:
			s.log.Warn("連線佇列已滿，拒絕新連線")
			p.Close()
		}
	}
}

// Peers returns the channel of newly accepted clients.
func (s *Server) Peers() <-chan *Peer {
	return s.newPeers
}

// Shutdown stops accepting new connections. Accepted peers stay open.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Peer is one accepted client connection.
type Peer struct {
	*Session
	frames chan *Frame
	done   chan struct{}
	err    error // read error that ended readLoop; valid after done closes
}

func newPeer(sess *Session) *Peer {
	return &Peer{
		Session: sess,
		frames:  make(chan *Frame, 64),
		done:    make(chan struct{}),
	}
}

// Frames delivers the client's frames in arrival order. It is closed when
// the connection ends.
func (p *Peer) Frames() <-chan *Frame {
	return p.frames
}

// Done is closed once the connection has ended.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// Err returns the error that ended the connection (wrapping io.EOF for a clean
// close by the client). It must only be called after Done is closed.
func (p *Peer) Err() error {
	return p.err
}

func (p *Peer) readLoop() {
	defer close(p.done)
	defer close(p.frames)
	defer p.Close()

	for {
		f, err := p.ReadFrame()
		if err != nil {
			p.err = err
			if !p.IsClosed() {
				p.log.Debug("讀取結束", zap.Error(err))
			}
			return
		}
		p.frames <- f
	}
}
