// Package queue defines the booking event payload exchanged over the message
// broker and the consumer that records those events.
package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/escape-room-manager/internal/model"
)

// EventType names what happened to a booking.  It doubles as the AMQP
// message type.
type EventType string

const (
	BookingCreated       EventType = "booking.created"
	BookingStatusChanged EventType = "booking.status_changed"
)

// BookingEvent carries enough of the booking for consumers to log or notify
// without querying the database.
type BookingEvent struct {
	ID             uuid.UUID       `json:"id"`
	Type           EventType       `json:"type"`
	BookingID      uint64          `json:"booking_id"`
	RoomID         uint64          `json:"room_id"`
	RoomName       string          `json:"room_name"`
	Status         string          `json:"status"`
	PreviousStatus string          `json:"previous_status,omitempty"`
	ScheduledTime  time.Time       `json:"scheduled_time"`
	Players        []string        `json:"players"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// NewBookingEvent snapshots b.  previous is empty for creations.
func NewBookingEvent(typ EventType, b *model.Booking, previous model.BookingStatus) BookingEvent {
	ev := BookingEvent{
		ID:             uuid.New(),
		Type:           typ,
		BookingID:      b.ID,
		RoomID:         b.RoomID,
		Status:         string(b.Status),
		PreviousStatus: string(previous),
		ScheduledTime:  b.ScheduledTime.UTC(),
		Players:        make([]string, 0, len(b.Players)),
		TotalPrice:     b.TotalPrice,
		OccurredAt:     time.Now().UTC(),
	}
	if b.Room != nil {
		ev.RoomName = b.Room.Name
	}
	for _, p := range b.Players {
		ev.Players = append(ev.Players, p.FullName())
	}
	return ev
}

// Encode serializes the event as the message body.
func (e BookingEvent) Encode() ([]byte, error) { return json.Marshal(e) }

// DecodeBookingEvent parses a message body.
func DecodeBookingEvent(body []byte) (BookingEvent, error) {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return BookingEvent{}, fmt.Errorf("unmarshal booking event: %w", err)
	}
	if ev.Type == "" || ev.BookingID == 0 {
		return BookingEvent{}, fmt.Errorf("booking event missing type or booking id")
	}
	return ev, nil
}

// Line renders the event as one line of the booking log.
func (e BookingEvent) Line() string {
	status := e.Status
	if e.PreviousStatus != "" {
		status = e.PreviousStatus + "->" + e.Status
	}
	return fmt.Sprintf("[%s] %s | booking_id=%d | room_id=%d | room=%q | status=%s | scheduled=%s | total=%s | players=[%s] | event_id=%s\n",
		e.OccurredAt.Format(time.RFC3339), e.Type, e.BookingID, e.RoomID, e.RoomName, status,
		e.ScheduledTime.Format(time.RFC3339), e.TotalPrice.StringFixed(2), strings.Join(e.Players, ","), e.ID)
}
