package sse

import (
	"context"
	"sync"
	"time"
)

const (
	EventBookingCreated = "booking.created"
	EventBookingSettled = "booking.settled"
)

// BookingEvent is pushed to coaches watching their booking stream.
type BookingEvent struct {
	Type       string    `json:"type"`
	BookingID  int64     `json:"booking_id"`
	CoachID    int64     `json:"coach_id"`
	TotalCents int64     `json:"total_cents"`
	SlotIDs    []int64   `json:"slot_ids,omitempty"`
	At         time.Time `json:"at"`
}

// BookingEventEmitter fans booking events out to per-coach subscribers.
type BookingEventEmitter struct {
	mu      sync.RWMutex
	clients map[int64][]chan BookingEvent
}

func NewBookingEventEmitter() *BookingEventEmitter {
	return &BookingEventEmitter{clients: make(map[int64][]chan BookingEvent)}
}

// SubscribeToCoach returns a channel closed when ctx ends.
func (e *BookingEventEmitter) SubscribeToCoach(ctx context.Context, coachID int64) <-chan BookingEvent {
	ch := make(chan BookingEvent, 10)

	e.mu.Lock()
	e.clients[coachID] = append(e.clients[coachID], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(coachID, ch)
	}()
	return ch
}

// Emit never blocks: a subscriber with a full buffer misses the event.
func (e *BookingEventEmitter) Emit(evt BookingEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.clients[evt.CoachID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (e *BookingEventEmitter) remove(coachID int64, ch chan BookingEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[coachID]
	for i, c := range clients {
		if c == ch {
			e.clients[coachID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[coachID]) == 0 {
		delete(e.clients, coachID)
	}
}

func (e *BookingEventEmitter) ClientCount(coachID int64) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[coachID])
}
