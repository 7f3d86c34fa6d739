package server

import (
	"context"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/circles"
)

func TestRealtimeDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "user-1")
	defer cleanup()

	dispatcher.Publish(RealtimeMessage{
		UserID:    "user-1",
		EventType: RealtimeEventCircleAssigned,
		EventID:   "event-1",
		CircleID:  "circle-a",
		Role:      circles.RoleHost,
		Timestamp: time.Now().UTC(),
	})

	select {
	case received := <-stream:
		if received.EventType != RealtimeEventCircleAssigned {
			t.Fatalf("expected event type %s, got %s", RealtimeEventCircleAssigned, received.EventType)
		}
		if received.CircleID != "circle-a" {
			t.Fatalf("expected circle-a, got %s", received.CircleID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestRealtimeDispatcherIsolatedByUser(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otherCtx, otherCancel := context.WithCancel(context.Background())
	defer otherCancel()

	userStream, cleanup := dispatcher.Subscribe(ctx, "user-2")
	defer cleanup()

	otherStream, otherCleanup := dispatcher.Subscribe(otherCtx, "user-3")
	defer otherCleanup()

	dispatcher.Publish(RealtimeMessage{
		UserID:    "user-3",
		EventType: RealtimeEventCircleAssigned,
		EventID:   "event-1",
		Timestamp: time.Now().UTC(),
	})

	select {
	case <-userStream:
		t.Fatal("did not expect realtime message for unrelated user")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case msg := <-otherStream:
		if msg.UserID != "user-3" {
			t.Fatalf("expected user-3, received %s", msg.UserID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message for subscribed user")
	}
}

func TestRealtimeDispatcherCirclesAssignedNotifiesEveryMember(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	fixed := time.Date(2026, time.October, 1, 18, 0, 0, 0, time.UTC)
	dispatcher.clock = func() time.Time { return fixed }
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hostStream, hostCleanup := dispatcher.Subscribe(ctx, "host-1")
	defer hostCleanup()
	guestStream, guestCleanup := dispatcher.Subscribe(ctx, "guest-1")
	defer guestCleanup()

	dispatcher.CirclesAssigned("event-9", []circles.CircleWithMembers{{
		Circle: circles.Circle{CircleID: "circle-1", EventID: "event-9", Name: "Circle 1", Format: circles.FormatHosted},
		Members: []circles.CircleMember{
			{CircleID: "circle-1", UserID: "host-1", EventID: "event-9", Role: circles.RoleHost, Position: 0},
			{CircleID: "circle-1", UserID: "guest-1", EventID: "event-9", Role: circles.RoleParticipant, Position: 1},
		},
	}})

	expectations := []struct {
		stream <-chan RealtimeMessage
		role   circles.Role
	}{
		{stream: hostStream, role: circles.RoleHost},
		{stream: guestStream, role: circles.RoleParticipant},
	}
	for _, expectation := range expectations {
		select {
		case message := <-expectation.stream:
			if message.EventID != "event-9" || message.CircleID != "circle-1" {
				t.Fatalf("unexpected message routing: %+v", message)
			}
			if message.Role != expectation.role {
				t.Fatalf("expected role %s, got %s", expectation.role, message.Role)
			}
			if !message.Timestamp.Equal(fixed) {
				t.Fatalf("expected timestamp %s, got %s", fixed, message.Timestamp)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatal("expected circle-assigned message within deadline")
		}
	}
}

func TestRealtimeDispatcherCleanupIsIdempotent(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx, "user-4")
	cleanup()
	cancel()
	cleanup()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		dispatcher.mu.RLock()
		remaining := len(dispatcher.subscribers)
		dispatcher.mu.RUnlock()
		if remaining == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected subscriber registry to be empty")
}
