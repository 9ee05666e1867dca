package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Direction is the 16-bit message type carried at header offset 8.
type Direction uint16

const (
	ClientToServer Direction = 689
	ServerToClient Direction = 690
)

func (d Direction) String() string {
	switch d {
	case ClientToServer:
		return "ClientToServer"
	case ServerToClient:
		return "ServerToClient"
	default:
		return fmt.Sprintf("Direction(%d)", uint16(d))
	}
}

// HeaderSize is the fixed frame header length:
// [4B LE length][4B LE length][2B LE direction][1B cipher][1B reserve].
const HeaderSize = 12

// lengthOverhead is what the length field counts besides the payload:
// second length (4) + direction (2) + cipher (1) + reserve (1) + trailing NUL (1).
const lengthOverhead = 9

// DefaultMaxFrameSize bounds the payload accepted by ReadFrame when the
// caller passes max <= 0.
const DefaultMaxFrameSize = 1 << 20

var (
	ErrInvalidLength = errors.New("invalid frame length")
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// Header is the decoded 12-byte frame header.
type Header struct {
	Length    uint32
	Length2   uint32
	Direction Direction
	Cipher    byte
	Reserve   byte
}

// PayloadLen is the number of bytes that follow the header on the wire.
// The length field already accounts for the 8 header bytes after itself.
func (h Header) PayloadLen() int {
	return int(h.Length) - 8
}

// Frame is one inbound or outbound protocol unit. Payload holds every byte
// after the header, including the trailing NUL of text messages.
type Frame struct {
	Header
	Payload []byte
}

// Text returns the payload as a string with the text terminator removed.
func (f *Frame) Text() string {
	p := f.Payload
	if n := len(p); n > 0 && p[n-1] == 0 {
		p = p[:n-1]
	}
	return string(p)
}

func putHeader(buf []byte, dir Direction, cipher, reserve byte, payloadLen int) {
	length := uint32(lengthOverhead + payloadLen)
	binary.LittleEndian.PutUint32(buf[0:4], length)
	binary.LittleEndian.PutUint32(buf[4:8], length)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(dir))
	buf[10] = cipher
	buf[11] = reserve
}

// EncodeText builds a text frame: header, UTF-8 payload, trailing 0x00.
func EncodeText(dir Direction, cipher, reserve byte, text string) []byte {
	buf := make([]byte, HeaderSize+len(text)+1)
	putHeader(buf, dir, cipher, reserve, len(text))
	copy(buf[HeaderSize:], text)
	return buf
}

// EncodeFrame builds a binary frame. The payload is written unmodified and
// no terminator is appended, although the length field still counts one;
// raw senders supply their own terminator when the peer expects it.
func EncodeFrame(dir Direction, cipher, reserve byte, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	putHeader(buf, dir, cipher, reserve, len(payload))
	copy(buf[HeaderSize:], payload)
	return buf
}

// DecodeHeader parses the fixed header. Only the first length field drives
// framing; the duplicate is reported as-is.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("short header (%d bytes): %w", len(b), ErrInvalidLength)
	}
	h := Header{
		Length:    binary.LittleEndian.Uint32(b[0:4]),
		Length2:   binary.LittleEndian.Uint32(b[4:8]),
		Direction: Direction(binary.LittleEndian.Uint16(b[8:10])),
		Cipher:    b[10],
		Reserve:   b[11],
	}
	if h.Length < lengthOverhead {
		return Header{}, fmt.Errorf("length %d: %w", h.Length, ErrInvalidLength)
	}
	return h, nil
}

// ReadFrame reads exactly one frame from r. A stream that ends before the
// header or payload is complete is an error, never a short frame.
func ReadFrame(r io.Reader, max int) (*Frame, error) {
	if max <= 0 {
		max = DefaultMaxFrameSize
	}
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	h, err := DecodeHeader(header[:])
	if err != nil {
		return nil, err
	}
	payloadLen := h.PayloadLen()
	if payloadLen > max {
		return nil, fmt.Errorf("payload %d > %d: %w", payloadLen, max, ErrFrameTooLarge)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload (%d bytes): %w", payloadLen, err)
	}
	return &Frame{Header: h, Payload: payload}, nil
}

// WriteFrame writes one fully encoded frame with a single Write call.
func WriteFrame(w io.Writer, frame []byte) error {
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame (%d bytes): %w", len(frame), err)
	}
	return nil
}
