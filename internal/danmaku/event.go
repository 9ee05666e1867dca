// Package danmaku turns parsed KV messages into typed room events.
package danmaku

import (
	"fmt"
	"time"
)

// MsgType identifies an Event variant.
type MsgType int

const (
	MsgUnrecognized MsgType = iota
	MsgChat
	MsgGiftSend
	MsgUserEnter
	MsgUserBuyDeserve
	MsgLiveStart
	MsgLiveEnd
	MsgSuperDanmaku
	MsgRoomGiftBroadcast
	MsgUserGotPacket
)

func (t MsgType) String() string {
	switch t {
	case MsgUnrecognized:
		return "Unrecognized"
	case MsgChat:
		return "ChatMessage"
	case MsgGiftSend:
		return "GiftSend"
	case MsgUserEnter:
		return "UserEnter"
	case MsgUserBuyDeserve:
		return "UserBuyDeserve"
	case MsgLiveStart:
		return "LiveStart"
	case MsgLiveEnd:
		return "LiveEnd"
	case MsgSuperDanmaku:
		return "SuperDanmaku"
	case MsgRoomGiftBroadcast:
		return "RoomGiftBroadcast"
	case MsgUserGotPacket:
		return "UserGotPacket"
	default:
		return fmt.Sprintf("MsgType(%d)", int(t))
	}
}

// Event is one decoded room message. The set of implementations is closed.
type Event interface {
	Type() MsgType
	isEvent()
}

// Room identifies where a message was broadcast.
type Room struct {
	RoomID  int `json:"room_id"`
	GroupID int `json:"group_id"`
}

// User is the sender profile shared by chat, gift and enter messages.
type User struct {
	UserID             int    `json:"user_id"`
	UserName           string `json:"user_name"`
	UserLevel          int    `json:"user_level"`
	RoomPermission     int    `json:"room_permission"`
	PlatformPermission int    `json:"platform_permission"`
	NobleLevel         int    `json:"noble_level"`
}

// Medal is the fan badge worn by a user.
type Medal struct {
	MedalName   string `json:"medal_name"`
	MedalLevel  int    `json:"medal_level"`
	MedalRoomID int    `json:"medal_room_id"`
}

// Deserve holds the supporter tier fields.
type Deserve struct {
	DeserveLevel     int `json:"deserve_level"`
	DeserveCount     int `json:"deserve_count"`
	MostDeserveLevel int `json:"most_deserve_level"`
}

// ChatMessage is a `chatmsg` comment.
type ChatMessage struct {
	Room
	User
	Medal
	Deserve
	Text          string    `json:"text"`
	CommentID     string    `json:"comment_id"`
	GiftTitle     int       `json:"gift_title"`
	Color         int       `json:"color"`
	CommentType   int       `json:"comment_type"`
	IsNoble       bool      `json:"is_noble"`
	IsReverse     bool      `json:"is_reverse"`
	IsHighlighted bool      `json:"is_highlighted"`
	IsFans        bool      `json:"is_fans"`
	Timestamp     time.Time `json:"timestamp"`
}

// GiftSend is a `dgb` gift.
type GiftSend struct {
	Room
	User
	Medal
	Deserve
	GiftID       int       `json:"gift_id"`
	GiftEffectID int       `json:"gift_effect_id"`
	GiftForce    int       `json:"gift_force"`
	Count        int       `json:"count"`
	Hits         int       `json:"hits"`
	IsBigGift    bool      `json:"is_big_gift"`
	Timestamp    time.Time `json:"timestamp"`
}

// UserEnter is a `uenter` room entry.
type UserEnter struct {
	Room
	User
	Deserve
	GiftTitle    int `json:"gift_title"`
	LastWeekRank int `json:"last_week_rank"`
}

// UserBuyDeserve is a `bc_buy_deserve` supporter purchase.
type UserBuyDeserve struct {
	Room
	UserLevel    int `json:"user_level"`
	Count        int `json:"count"`
	Hits         int `json:"hits"`
	DeserveLevel int `json:"deserve_level"`
}

// LiveStatusChanged is an `rss` stream start/stop notice.
type LiveStatusChanged struct {
	Room
	Live        bool   `json:"live"`
	Reason      string `json:"reason"`
	OperateCode int    `json:"operate_code"`
	NotifyType  int    `json:"notify_type"`
}

// SuperDanmaku is an `ssd` platform-wide banner.
type SuperDanmaku struct {
	Room
	Content      string `json:"content"`
	ID           string `json:"id"`
	URL          string `json:"url"`
	ClientType   int    `json:"client_type"`
	JumpType     int    `json:"jump_type"`
	JumpTargetID int    `json:"jump_target_room_id"`
}

// GiftStyle is the broadcast animation of a RoomGiftBroadcast.
type GiftStyle int

const (
	GiftStylePlane GiftStyle = iota
	GiftStyleRocket
)

func (s GiftStyle) String() string {
	if s == GiftStyleRocket {
		return "Rocket"
	}
	return "Plane"
}

// RoomGiftBroadcast is an `spbc` in-room broadcast of a big gift.
type RoomGiftBroadcast struct {
	Room
	SenderName        string    `json:"sender_name"`
	DestinationName   string    `json:"destination_name"`
	DestinationRoomID int       `json:"destination_room_id"`
	GiftName          string    `json:"gift_name"`
	GiftID            int       `json:"gift_id"`
	GiftEffectID      int       `json:"gift_effect_id"`
	Count             int       `json:"count"`
	BroadcastType     int       `json:"broadcast_type"`
	HasPacket         bool      `json:"has_packet"`
	Style             GiftStyle `json:"style"`
}

// UserGotPacket is a `ggbb` red packet notice. Its fields are not decoded.
type UserGotPacket struct {
	Raw string `json:"raw"`
}

// Unrecognized carries any message without a dedicated decoder.
type Unrecognized struct {
	Name string `json:"name"`
	Raw  string `json:"raw"`
}

func (*ChatMessage) Type() MsgType       { return MsgChat }
func (*GiftSend) Type() MsgType          { return MsgGiftSend }
func (*UserEnter) Type() MsgType         { return MsgUserEnter }
func (*UserBuyDeserve) Type() MsgType    { return MsgUserBuyDeserve }
func (*SuperDanmaku) Type() MsgType      { return MsgSuperDanmaku }
func (*RoomGiftBroadcast) Type() MsgType { return MsgRoomGiftBroadcast }
func (*UserGotPacket) Type() MsgType     { return MsgUserGotPacket }
func (*Unrecognized) Type() MsgType      { return MsgUnrecognized }

func (e *LiveStatusChanged) Type() MsgType {
	if e.Live {
		return MsgLiveStart
	}
	return MsgLiveEnd
}

func (*ChatMessage) isEvent()       {}
func (*GiftSend) isEvent()          {}
func (*UserEnter) isEvent()         {}
func (*UserBuyDeserve) isEvent()    {}
func (*LiveStatusChanged) isEvent() {}
func (*SuperDanmaku) isEvent()      {}
func (*RoomGiftBroadcast) isEvent() {}
func (*UserGotPacket) isEvent()     {}
func (*Unrecognized) isEvent()      {}
