package event

import (
	"errors"
	"testing"
)

func TestPublishInSubscriptionOrder(t *testing.T) {
	b := NewBus()
	var got []string
	Subscribe(b, func(ev Connected) { got = append(got, "a") })
	Subscribe(b, func(ev Connected) { got = append(got, "b") })
	Subscribe(b, func(ev Disconnected) { got = append(got, "other") })

	Publish(b, Connected{RoomID: 1})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v, want [a b]", got)
	}
}

func TestCancelRemovesOnlyThatHandler(t *testing.T) {
	b := NewBus()
	var a, c int
	cancelA := Subscribe(b, func(Disconnected) { a++ })
	Subscribe(b, func(Disconnected) { c++ })

	Publish(b, Disconnected{Err: errors.New("boom")})
	cancelA()
	cancelA()
	Publish(b, Disconnected{})

	if a != 1 || c != 2 {
		t.Fatalf("a=%d c=%d, want 1 and 2", a, c)
	}
	if n := Subscribers[Disconnected](b); n != 1 {
		t.Fatalf("subscribers = %d, want 1", n)
	}
}

func TestCancelDuringPublish(t *testing.T) {
	b := NewBus()
	calls := 0
	var cancel func()
	cancel = Subscribe(b, func(Received) {
		calls++
		cancel()
	})
	Subscribe(b, func(Received) { calls++ })

	Publish(b, Received{})
	Publish(b, Received{})
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := NewBus()
	Publish(b, ParseFailed{Raw: "x"})
	if n := Subscribers[ParseFailed](b); n != 0 {
		t.Fatalf("subscribers = %d", n)
	}
}
