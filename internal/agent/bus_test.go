package agent

import (
	"fmt"
	"testing"

	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

func TestBusFanout(t *testing.T) {
	bus := NewBus(8)

	subA1 := bus.Subscribe("chat-a")
	subA2 := bus.Subscribe("chat-a")
	subB := bus.Subscribe("chat-b")
	defer subA1.Close()
	defer subA2.Close()
	defer subB.Close()

	for i := 1; i <= 3; i++ {
		ev := models.NewChunkEvent("chat-a", fmt.Sprintf("c%d", i))
		ev.Seq = uint64(i)
		bus.Publish(ev)
	}

	for _, sub := range []*Subscription{subA1, subA2} {
		for i := 1; i <= 3; i++ {
			ev := <-sub.Events()
			if ev.Seq != uint64(i) || ev.Chunk.Text != fmt.Sprintf("c%d", i) {
				t.Fatalf("got Seq %d text %q, want %d", ev.Seq, ev.Chunk.Text, i)
			}
		}
	}
	select {
	case ev := <-subB.Events():
		t.Fatalf("chat-b subscriber got %s for chat-a", ev.Type)
	default:
	}

	if n := bus.Subscribers("chat-a"); n != 2 {
		t.Errorf("Subscribers(chat-a) = %d, want 2", n)
	}
}

func TestBusDropsWhenSubscriberLags(t *testing.T) {
	bus := NewBus(2)
	sub := bus.Subscribe(chatID)
	defer sub.Close()

	for i := 1; i <= 5; i++ {
		ev := models.NewChunkEvent(chatID, "x")
		ev.Seq = uint64(i)
		bus.Publish(ev)
	}

	// The first two fit the buffer; the rest are dropped, never
	// reordered or blocked on.
	first := <-sub.Events()
	second := <-sub.Events()
	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("delivered Seq %d, %d; want 1, 2", first.Seq, second.Seq)
	}
	if lag := sub.Lagged(); lag != 3 {
		t.Errorf("Lagged() = %d, want 3", lag)
	}
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected extra event Seq %d", ev.Seq)
	default:
	}
}

func TestBusSubscriptionClose(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe(chatID)
	keep := bus.Subscribe(chatID)
	defer keep.Close()

	sub.Close()
	sub.Close()

	if n := bus.Subscribers(chatID); n != 1 {
		t.Fatalf("Subscribers() = %d after close, want 1", n)
	}

	bus.Publish(models.NewChunkEvent(chatID, "after"))
	if ev := <-keep.Events(); ev.Chunk.Text != "after" {
		t.Errorf("remaining subscriber got %q", ev.Chunk.Text)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("closed subscription still delivers")
	}
}

func TestBusSubscribeBeforeActor(t *testing.T) {
	bus := NewBus(4)

	// Subscribing to a chat that has never published is fine; events
	// arrive once something does publish.
	sub := bus.Subscribe("quiet-chat")
	defer sub.Close()

	bus.Publish(models.NewDoneEvent("quiet-chat", models.UsageRecord{TotalTokens: 1}))
	ev := <-sub.Events()
	if ev.Type != models.EventDone || ev.Done.Usage.TotalTokens != 1 {
		t.Fatalf("got %+v", ev)
	}
}
