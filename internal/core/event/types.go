package event

import "github.com/douyudm/dmclient/internal/danmaku"

// Connected is published once the handshake frames have been written and
// the session is live.
type Connected struct {
	RoomID int
}

// Disconnected is published when a session ends because of a transport or
// heartbeat failure. A caller-initiated disconnect does not publish it.
type Disconnected struct {
	RoomID int
	Err    error
}

// Received carries one decoded inbound message.
type Received struct {
	RoomID int
	Event  danmaku.Event
}

// ParseFailed reports an inbound message that was dropped because it could
// not be decoded. The session keeps running.
type ParseFailed struct {
	RoomID int
	Raw    string
	Err    error
}
