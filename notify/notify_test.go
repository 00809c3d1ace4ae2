package notify

import (
	"context"
	"testing"
	"time"
)

func TestSendIsThrottledWithinMinPeriod(t *testing.T) {
	n := Notifier{}
	store := NewMemStore()
	if err := n.Init(context.Background(), "", "", "ops@example.com", store); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var first time.Time
	for i := 0; i < 3; i++ {
		if err := n.Send(context.Background(), "one", SyncLoss, "drift exceeded", time.Hour); err != nil {
			t.Fatalf("Send #%d: %v", i, err)
		}
		if i == 0 {
			first, _ = store.Get("one", SyncLoss)
		}
	}
	if first.IsZero() {
		t.Fatalf("expected the first send to record a send time")
	}
	if last, _ := store.Get("one", SyncLoss); !last.Equal(first) {
		t.Errorf("expected throttled sends to leave the send time at %v, got %v", first, last)
	}
}

func TestSendWithoutRecipientErrors(t *testing.T) {
	n := Notifier{}
	if err := n.Init(context.Background(), "", "", "", nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := n.Send(context.Background(), "one", SyncLoss, "drift exceeded", time.Hour); err == nil {
		t.Errorf("expected error with no recipient configured")
	}
}

func TestMemStoreThrottlesIndependentlyPerKindAndChannel(t *testing.T) {
	s := NewMemStore()
	now := time.Now()
	if err := s.Set("one", SyncLoss, now); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if got, _ := s.Get("one", SyncLoss); !got.Equal(now) {
		t.Errorf("Get(one, SyncLoss) = %v, want %v", got, now)
	}
	if got, _ := s.Get("one", UnrecoverableError); !got.IsZero() {
		t.Errorf("expected zero time for untouched kind, got %v", got)
	}
	if got, _ := s.Get("two", SyncLoss); !got.IsZero() {
		t.Errorf("expected zero time for untouched channel, got %v", got)
	}
}
