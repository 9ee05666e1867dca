package danmaku

import "github.com/douyudm/dmclient/internal/net/packet"

type fieldKind uint8

const (
	kindInt     fieldKind = iota
	kindStr               // raw string
	kindFlag              // true when value == 1
	kindNonZero           // true when value != 0
)

// field binds one wire key to a slot of T. A key absent from the message
// leaves the slot at the default the decoder initialised it with.
type field[T any] struct {
	key  string
	kind fieldKind
	i    func(*T) *int
	s    func(*T) *string
	b    func(*T) *bool
}

func intField[T any](key string, slot func(*T) *int) field[T] {
	return field[T]{key: key, kind: kindInt, i: slot}
}

func strField[T any](key string, slot func(*T) *string) field[T] {
	return field[T]{key: key, kind: kindStr, s: slot}
}

func flagField[T any](key string, slot func(*T) *bool) field[T] {
	return field[T]{key: key, kind: kindFlag, b: slot}
}

func nonZeroField[T any](key string, slot func(*T) *bool) field[T] {
	return field[T]{key: key, kind: kindNonZero, b: slot}
}

// binding is a field table bound to a destination record.
type binding interface {
	apply(r *packet.Reader) error
}

type boundTable[T any] struct {
	dst   *T
	table []field[T]
}

func bind[T any](dst *T, table []field[T]) binding {
	return boundTable[T]{dst: dst, table: table}
}

func (b boundTable[T]) apply(r *packet.Reader) error {
	for _, f := range b.table {
		switch f.kind {
		case kindStr:
			if v, ok := r.Str(f.key); ok {
				*f.s(b.dst) = v
			}
		case kindInt:
			v, ok, err := r.Int(f.key)
			if err != nil {
				return err
			}
			if ok {
				*f.i(b.dst) = v
			}
		case kindFlag:
			v, ok, err := r.Flag(f.key)
			if err != nil {
				return err
			}
			if ok {
				*f.b(b.dst) = v
			}
		case kindNonZero:
			v, ok, err := r.NonZero(f.key)
			if err != nil {
				return err
			}
			if ok {
				*f.b(b.dst) = v
			}
		}
	}
	return nil
}

// Shared sub-record tables.

var roomFields = []field[Room]{
	intField("rid", func(r *Room) *int { return &r.RoomID }),
	intField("gid", func(r *Room) *int { return &r.GroupID }),
}

var userFields = []field[User]{
	intField("uid", func(u *User) *int { return &u.UserID }),
	strField("nn", func(u *User) *string { return &u.UserName }),
	intField("level", func(u *User) *int { return &u.UserLevel }),
	intField("rg", func(u *User) *int { return &u.RoomPermission }),
	intField("pg", func(u *User) *int { return &u.PlatformPermission }),
	intField("nl", func(u *User) *int { return &u.NobleLevel }),
}

var medalFields = []field[Medal]{
	strField("bnn", func(m *Medal) *string { return &m.MedalName }),
	intField("bl", func(m *Medal) *int { return &m.MedalLevel }),
	intField("brid", func(m *Medal) *int { return &m.MedalRoomID }),
}

// chatmsg reports the highest tier as "bdlv"; dgb and uenter use "bdl".
var chatDeserveFields = []field[Deserve]{
	intField("dlv", func(d *Deserve) *int { return &d.DeserveLevel }),
	intField("dc", func(d *Deserve) *int { return &d.DeserveCount }),
	intField("bdlv", func(d *Deserve) *int { return &d.MostDeserveLevel }),
}

var deserveFields = []field[Deserve]{
	intField("dlv", func(d *Deserve) *int { return &d.DeserveLevel }),
	intField("dc", func(d *Deserve) *int { return &d.DeserveCount }),
	intField("bdl", func(d *Deserve) *int { return &d.MostDeserveLevel }),
}

// Per-variant tables.

var chatFields = []field[ChatMessage]{
	strField("txt", func(e *ChatMessage) *string { return &e.Text }),
	strField("cid", func(e *ChatMessage) *string { return &e.CommentID }),
	intField("gt", func(e *ChatMessage) *int { return &e.GiftTitle }),
	intField("col", func(e *ChatMessage) *int { return &e.Color }),
	intField("cmt", func(e *ChatMessage) *int { return &e.CommentType }),
	flagField("nc", func(e *ChatMessage) *bool { return &e.IsNoble }),
	flagField("rev", func(e *ChatMessage) *bool { return &e.IsReverse }),
	flagField("hl", func(e *ChatMessage) *bool { return &e.IsHighlighted }),
	flagField("ifs", func(e *ChatMessage) *bool { return &e.IsFans }),
}

var giftFields = []field[GiftSend]{
	intField("gfid", func(e *GiftSend) *int { return &e.GiftID }),
	intField("eid", func(e *GiftSend) *int { return &e.GiftEffectID }),
	intField("fc", func(e *GiftSend) *int { return &e.GiftForce }),
	intField("gfcnt", func(e *GiftSend) *int { return &e.Count }),
	intField("hits", func(e *GiftSend) *int { return &e.Hits }),
	nonZeroField("bg", func(e *GiftSend) *bool { return &e.IsBigGift }),
}

var enterFields = []field[UserEnter]{
	intField("gt", func(e *UserEnter) *int { return &e.GiftTitle }),
	intField("crw", func(e *UserEnter) *int { return &e.LastWeekRank }),
}

var buyDeserveFields = []field[UserBuyDeserve]{
	intField("level", func(e *UserBuyDeserve) *int { return &e.UserLevel }),
	intField("cnt", func(e *UserBuyDeserve) *int { return &e.Count }),
	intField("hits", func(e *UserBuyDeserve) *int { return &e.Hits }),
	intField("lev", func(e *UserBuyDeserve) *int { return &e.DeserveLevel }),
}

var liveStatusFields = []field[LiveStatusChanged]{
	flagField("ss", func(e *LiveStatusChanged) *bool { return &e.Live }),
	strField("rt", func(e *LiveStatusChanged) *string { return &e.Reason }),
	intField("rtv", func(e *LiveStatusChanged) *int { return &e.OperateCode }),
	intField("notify", func(e *LiveStatusChanged) *int { return &e.NotifyType }),
}

var superDanmakuFields = []field[SuperDanmaku]{
	strField("content", func(e *SuperDanmaku) *string { return &e.Content }),
	strField("sdid", func(e *SuperDanmaku) *string { return &e.ID }),
	strField("url", func(e *SuperDanmaku) *string { return &e.URL }),
	intField("clitp", func(e *SuperDanmaku) *int { return &e.ClientType }),
	intField("jmptp", func(e *SuperDanmaku) *int { return &e.JumpType }),
	intField("trid", func(e *SuperDanmaku) *int { return &e.JumpTargetID }),
}

var broadcastFields = []field[RoomGiftBroadcast]{
	strField("sn", func(e *RoomGiftBroadcast) *string { return &e.SenderName }),
	strField("dn", func(e *RoomGiftBroadcast) *string { return &e.DestinationName }),
	strField("gn", func(e *RoomGiftBroadcast) *string { return &e.GiftName }),
	intField("gc", func(e *RoomGiftBroadcast) *int { return &e.Count }),
	intField("drid", func(e *RoomGiftBroadcast) *int { return &e.DestinationRoomID }),
	intField("gs", func(e *RoomGiftBroadcast) *int { return &e.BroadcastType }),
	flagField("gb", func(e *RoomGiftBroadcast) *bool { return &e.HasPacket }),
	intField("gfid", func(e *RoomGiftBroadcast) *int { return &e.GiftID }),
	intField("eid", func(e *RoomGiftBroadcast) *int { return &e.GiftEffectID }),
}
