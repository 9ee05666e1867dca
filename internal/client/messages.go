package client

import "github.com/douyudm/dmclient/internal/net/packet"

// Outbound request payloads.

func loginRequest(roomID int) string {
	return packet.NewWriterWithType("loginreq").WriteD("roomid", roomID).String()
}

func joinGroup(roomID, groupID int) string {
	return packet.NewWriterWithType("joingroup").
		WriteD("rid", roomID).
		WriteD("gid", groupID).
		String()
}

func heartbeatRequest() string {
	return packet.NewWriterWithType("mkrl").String()
}

func logout() string {
	return packet.NewWriterWithType("logout").String()
}
