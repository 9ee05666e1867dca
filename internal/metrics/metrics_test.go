package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/douyudm/dmclient/internal/core/event"
	"github.com/douyudm/dmclient/internal/danmaku"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestCollectorCountsBusEvents(t *testing.T) {
	c := NewCollector()
	b := event.NewBus()
	detach := c.Attach(b)

	event.Publish(b, event.Connected{RoomID: 1})
	event.Publish(b, event.Received{RoomID: 1, Event: &danmaku.ChatMessage{Text: "a"}})
	event.Publish(b, event.Received{RoomID: 1, Event: &danmaku.ChatMessage{Text: "b"}})
	event.Publish(b, event.Received{RoomID: 1, Event: &danmaku.GiftSend{Count: 5, Hits: 1}})
	event.Publish(b, event.ParseFailed{RoomID: 1, Err: errors.New("bad")})

	if v := counterValue(t, c.messagesTotal.WithLabelValues("ChatMessage")); v != 2 {
		t.Fatalf("chat messages = %v", v)
	}
	if v := counterValue(t, c.giftsTotal); v != 5 {
		t.Fatalf("gifts = %v", v)
	}
	if v := counterValue(t, c.parseErrors); v != 1 {
		t.Fatalf("parse errors = %v", v)
	}
	if v := gaugeValue(t, c.connected); v != 1 {
		t.Fatalf("connected = %v", v)
	}

	event.Publish(b, event.Disconnected{RoomID: 1, Err: io.EOF})
	if v := gaugeValue(t, c.connected); v != 0 {
		t.Fatalf("connected after loss = %v", v)
	}
	if v := counterValue(t, c.disconnectTotal); v != 1 {
		t.Fatalf("disconnects = %v", v)
	}

	detach()
	event.Publish(b, event.Connected{RoomID: 2})
	if v := counterValue(t, c.connectsTotal); v != 1 {
		t.Fatalf("connects after detach = %v", v)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	b := event.NewBus()
	c.Attach(b)
	event.Publish(b, event.Received{Event: &danmaku.Unrecognized{Name: "x"}})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`dmclient_messages_total{type="Unrecognized"} 1`,
		"dmclient_connected 0",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output lacks %q", want)
		}
	}
}
