package eventing

import (
	"context"
	"errors"
	"testing"
)

type pingEvent struct {
	ID string
}

type otherEvent struct{}

func TestInMemoryBus_DeliversToSubscribers(t *testing.T) {
	bus := NewInMemoryBus()

	var got []string
	bus.Subscribe(EventTypeOf[pingEvent](), func(ctx context.Context, event any) error {
		evt, ok := event.(pingEvent)
		if !ok {
			return ErrInvalidEventType
		}
		got = append(got, evt.ID)
		return nil
	})

	if err := bus.Publish(context.Background(), pingEvent{ID: "a"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Publish(context.Background(), otherEvent{}); err != nil {
		t.Fatalf("publish other: %v", err)
	}
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("unexpected deliveries: %v", got)
	}
}

func TestInMemoryBus_NilEventRejected(t *testing.T) {
	bus := NewInMemoryBus()
	if err := bus.Publish(context.Background(), nil); !errors.Is(err, ErrNilEvent) {
		t.Fatalf("expected ErrNilEvent, got %v", err)
	}
}

func TestInMemoryBus_HandlerErrorReported(t *testing.T) {
	bus := NewInMemoryBus()
	wantErr := errors.New("handler failed")

	var second bool
	bus.Subscribe(EventTypeOf[pingEvent](), func(ctx context.Context, event any) error {
		return wantErr
	})
	bus.Subscribe(EventTypeOf[pingEvent](), func(ctx context.Context, event any) error {
		second = true
		return nil
	})

	err := bus.Publish(context.Background(), pingEvent{ID: "x"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if !second {
		t.Fatal("all handlers must run despite an earlier error")
	}
}

func TestEventType_PointerAndValueMatch(t *testing.T) {
	value := EventType(pingEvent{})
	pointer := EventType(&pingEvent{})
	if value != pointer {
		t.Fatalf("type mismatch: %q vs %q", value, pointer)
	}
	if value != EventTypeOf[pingEvent]() {
		t.Fatalf("EventTypeOf mismatch: %q", EventTypeOf[pingEvent]())
	}
}
