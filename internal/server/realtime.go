package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/circles"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	RealtimeEventCircleAssigned = "circle-assigned"
	realtimeEventHeartbeat      = "heartbeat"
	realtimeSourceBackend       = "tablemates-backend"
	realtimeHeartbeatInterval   = 25 * time.Second
)

// RealtimeMessage tells one user which circle they were placed in.
type RealtimeMessage struct {
	UserID    string
	EventType string
	EventID   string
	CircleID  string
	Circle    string
	Format    circles.Format
	Role      circles.Role
	Timestamp time.Time
}

// RealtimeDispatcher fans messages out to per-user subscribers. Slow subscribers
// drop messages rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID string) (<-chan RealtimeMessage, func()) {
	if userID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(userID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(userID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.UserID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// CirclesAssigned publishes one circle-assigned message per member.
func (d *RealtimeDispatcher) CirclesAssigned(eventID string, assigned []circles.CircleWithMembers) {
	now := d.clock().UTC()
	for _, circle := range assigned {
		for _, member := range circle.Members {
			d.Publish(RealtimeMessage{
				UserID:    member.UserID,
				EventType: RealtimeEventCircleAssigned,
				EventID:   eventID,
				CircleID:  circle.Circle.CircleID,
				Circle:    circle.Circle.Name,
				Format:    circle.Circle.Format,
				Role:      member.Role,
				Timestamp: now,
			})
		}
	}
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(userID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[userID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(userID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[userID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, userID)
		}
	}
	d.mu.Unlock()
}

type circleAssignedPayload struct {
	EventID   string `json:"eventId"`
	CircleID  string `json:"circleId"`
	Circle    string `json:"circle"`
	Format    string `json:"format"`
	Role      string `json:"role"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

type heartbeatPayload struct {
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

func (h *httpHandler) handleRealtimeStream(c *gin.Context) {
	eventID, ok := h.eventIDParam(c)
	if !ok {
		return
	}
	userID, ok := h.sessionUserID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, userID.String())
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(realtimeHeartbeatInterval)
	defer heartbeat.Stop()

	h.logger.Debug("realtime stream opened",
		zap.String("event_id", eventID.String()),
		zap.String("user_id", userID.String()))

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			if message.EventID != eventID.String() {
				return true
			}
			c.SSEvent(message.EventType, circleAssignedPayload{
				EventID:   message.EventID,
				CircleID:  message.CircleID,
				Circle:    message.Circle,
				Format:    string(message.Format),
				Role:      string(message.Role),
				Source:    realtimeSourceBackend,
				Timestamp: message.Timestamp.UTC().Format(time.RFC3339),
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{
				Source:    realtimeSourceBackend,
				Timestamp: tick.UTC().Format(time.RFC3339),
			})
			return true
		}
	})
}
