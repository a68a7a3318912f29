package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestPublishDeliversEvent(t *testing.T) {
	s := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, "syncly:room-access")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	pub, err := NewPublisher("redis://"+s.Addr(), "syncly:room-access")
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}
	defer pub.Close()

	event := Event{
		RoomID:    "room_1",
		Email:     "dana@example.com",
		Role:      "editor",
		UpdatedBy: "user_1",
		Kind:      KindInvited,
	}
	if err := pub.Publish(ctx, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive message: %v", err)
	}

	var got Event
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.RoomID != event.RoomID || got.Email != event.Email || got.Kind != KindInvited {
		t.Fatalf("unexpected event: %+v", got)
	}
	if got.At.IsZero() {
		t.Fatal("event timestamp was not stamped")
	}
}

func TestPublisherRejectsBadURL(t *testing.T) {
	if _, err := NewPublisher("not-a-url", "ch"); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}
