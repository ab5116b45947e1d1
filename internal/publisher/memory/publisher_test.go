package memory

import (
	"context"
	"errors"
	"testing"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), map[string]string{"k": "v"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "payload")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[1] != "payload" {
		t.Fatalf("payloads not recorded in order: %+v", msgs)
	}

	msgs[1] = "modified"
	if pub.Messages()[1] == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestFailingPublisher(t *testing.T) {
	t.Parallel()

	pub := NewFailing(errors.New("down"))
	if _, err := pub.Publish(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	if len(pub.Messages()) != 0 {
		t.Fatal("expected nothing recorded")
	}
}
