package client

import (
	"fmt"

	"github.com/douyudm/dmclient/internal/core/event"
	"go.uber.org/zap"
)

// heartbeat sends the first beat immediately and then one per tick until
// the epoch is torn down. hbDone is closed before a failure triggers
// teardown so teardown never waits on its own caller.
func (c *Client) heartbeat(ep *epoch) {
	err := c.runHeartbeat(ep)
	close(ep.hbDone)
	if err != nil {
		c.teardown(ep, fmt.Errorf("heartbeat: %w", err))
	}
}

func (c *Client) runHeartbeat(ep *epoch) error {
	t := c.newTicker(c.cfg.HeartbeatInterval)
	defer t.Stop()

	msg := heartbeatRequest()
	for {
		select {
		case <-ep.hbStop:
			return nil
		default:
		}
		if err := ep.sess.SendText(msg); err != nil {
			if ep.torn.Load() {
				return nil
			}
			return err
		}
		select {
		case <-ep.hbStop:
			return nil
		case <-t.C():
		}
	}
}

// receive reads frames until the socket fails or is closed locally. Events
// are published synchronously, so observers see them in wire order.
func (c *Client) receive(ep *epoch) {
	for {
		f, err := ep.sess.ReadFrame()
		if err != nil {
			if ep.torn.Load() || ep.sess.IsClosed() {
				return
			}
			c.teardown(ep, fmt.Errorf("receive: %w", err))
			return
		}

		text := f.Text()
		ev, err := c.parser.Parse(text)
		if err != nil {
			c.log.Debug("訊息解析失敗", zap.Int("room", ep.roomID), zap.Error(err))
			event.Publish(c.bus, event.ParseFailed{RoomID: ep.roomID, Raw: text, Err: err})
			continue
		}
		event.Publish(c.bus, event.Received{RoomID: ep.roomID, Event: ev})
	}
}
