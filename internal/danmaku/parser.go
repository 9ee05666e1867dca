package danmaku

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/douyudm/dmclient/internal/net/packet"
	"go.uber.org/zap"
)

// ParseError aborts decoding of a single message. It is never fatal to the
// connection.
type ParseError struct {
	Type  string // message discriminator
	Field string // offending key, empty for decoder failures
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("parse %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("parse %s: field %s=%q: %v", e.Type, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Discriminators the server is known to send that carry nothing this client
// decodes. They surface as Unrecognized but get their payload logged.
var trackedTypes = []string{
	"loginres",
	"mrkl",
	"keeplive",
	"pingreq",
	"rri",
	"frank",
	"noble_num_info",
	"online_noble_list",
	"synexp",
	"blab",
	"upgrade",
}

// Parser decodes message text into Events.
type Parser struct {
	now func() time.Time
	reg *packet.Registry[Event]
	log *zap.Logger
}

type ParserOption func(*Parser)

// WithClock replaces time.Now for timestamp computation.
func WithClock(now func() time.Time) ParserOption {
	return func(p *Parser) { p.now = now }
}

// WithLogger sets the logger used for tracked payload dumps.
func WithLogger(log *zap.Logger) ParserOption {
	return func(p *Parser) { p.log = log }
}

func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{now: time.Now, log: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}

	reg := packet.NewRegistry[Event](decodeUnrecognized, p.log)
	reg.Register("chatmsg", false, p.decodeChat)
	reg.Register("dgb", false, p.decodeGift)
	reg.Register("uenter", false, decodeEnter)
	reg.Register("bc_buy_deserve", true, decodeBuyDeserve)
	reg.Register("rss", true, decodeLiveStatus)
	reg.Register("ssd", true, decodeSuperDanmaku)
	reg.Register("spbc", true, decodeBroadcast)
	reg.Register("ggbb", true, decodeGotPacket)
	for _, t := range trackedTypes {
		reg.Register(t, true, decodeUnrecognized)
	}
	p.reg = reg
	return p
}

var defaultParser = NewParser()

// Parse decodes text with a parser using the wall clock.
func Parse(text string) (Event, error) {
	return defaultParser.Parse(text)
}

// Parse decodes one frame payload. Trailing NUL bytes are ignored.
func (p *Parser) Parse(text string) (Event, error) {
	text = strings.TrimRight(text, "\x00")
	return p.ParseMessage(packet.Deserialize(text))
}

// ParseMessage decodes an already deserialized message.
func (p *Parser) ParseMessage(msg *packet.Message) (Event, error) {
	ev, err := p.reg.Dispatch(packet.NewReader(msg))
	if err == nil {
		return ev, nil
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return nil, err
	}
	return nil, &ParseError{Type: msg.Type(), Err: err}
}

// decodeInto applies every binding, converting field failures into a
// ParseError for the message type.
func decodeInto(r *packet.Reader, bindings ...binding) error {
	for _, b := range bindings {
		if err := b.apply(r); err != nil {
			return parseError(r, err)
		}
	}
	return nil
}

func parseError(r *packet.Reader, err error) *ParseError {
	pe := &ParseError{Type: r.Type(), Err: err}
	var fe *packet.FieldError
	if errors.As(err, &fe) {
		pe.Field, pe.Value, pe.Err = fe.Key, fe.Value, fe.Err
	}
	return pe
}

// timestamp approximates the send time. With a `gatin` offset it is UTC now
// plus that many seconds; otherwise it is local now.
func (p *Parser) timestamp(r *packet.Reader) (time.Time, error) {
	offset, ok, err := r.Int("gatin")
	if err != nil {
		return time.Time{}, parseError(r, err)
	}
	if !ok {
		return p.now(), nil
	}
	return p.now().UTC().Add(time.Duration(offset) * time.Second), nil
}

func (p *Parser) decodeChat(r *packet.Reader) (Event, error) {
	ev := &ChatMessage{User: User{RoomPermission: 1, PlatformPermission: 1}}
	if err := decodeInto(r,
		bind(&ev.Room, roomFields),
		bind(&ev.User, userFields),
		bind(&ev.Medal, medalFields),
		bind(&ev.Deserve, chatDeserveFields),
		bind(ev, chatFields),
	); err != nil {
		return nil, err
	}
	ts, err := p.timestamp(r)
	if err != nil {
		return nil, err
	}
	ev.Timestamp = ts
	return ev, nil
}

func (p *Parser) decodeGift(r *packet.Reader) (Event, error) {
	ev := &GiftSend{
		User:  User{RoomPermission: 1, PlatformPermission: 1},
		Count: 1,
		Hits:  1,
	}
	if err := decodeInto(r,
		bind(&ev.Room, roomFields),
		bind(&ev.User, userFields),
		bind(&ev.Medal, medalFields),
		bind(&ev.Deserve, deserveFields),
		bind(ev, giftFields),
	); err != nil {
		return nil, err
	}
	ts, err := p.timestamp(r)
	if err != nil {
		return nil, err
	}
	ev.Timestamp = ts
	return ev, nil
}

func decodeEnter(r *packet.Reader) (Event, error) {
	ev := &UserEnter{User: User{RoomPermission: 1, PlatformPermission: 1}}
	if err := decodeInto(r,
		bind(&ev.Room, roomFields),
		bind(&ev.User, userFields),
		bind(&ev.Deserve, deserveFields),
		bind(ev, enterFields),
	); err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeBuyDeserve(r *packet.Reader) (Event, error) {
	ev := &UserBuyDeserve{}
	if err := decodeInto(r, bind(&ev.Room, roomFields), bind(ev, buyDeserveFields)); err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeLiveStatus(r *packet.Reader) (Event, error) {
	ev := &LiveStatusChanged{}
	if err := decodeInto(r, bind(&ev.Room, roomFields), bind(ev, liveStatusFields)); err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeSuperDanmaku(r *packet.Reader) (Event, error) {
	ev := &SuperDanmaku{}
	if err := decodeInto(r, bind(&ev.Room, roomFields), bind(ev, superDanmakuFields)); err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeBroadcast(r *packet.Reader) (Event, error) {
	ev := &RoomGiftBroadcast{}
	var rocket bool
	if err := decodeInto(r,
		bind(&ev.Room, roomFields),
		bind(ev, broadcastFields),
		bind(&rocket, []field[bool]{flagField("es", func(b *bool) *bool { return b })}),
	); err != nil {
		return nil, err
	}
	if rocket {
		ev.Style = GiftStyleRocket
	}
	return ev, nil
}

func decodeGotPacket(r *packet.Reader) (Event, error) {
	return &UserGotPacket{Raw: r.Raw()}, nil
}

func decodeUnrecognized(r *packet.Reader) (Event, error) {
	return &Unrecognized{Name: r.Type(), Raw: r.Raw()}, nil
}
