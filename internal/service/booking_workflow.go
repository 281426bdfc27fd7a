package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/escape-room-manager/internal/model"
	"github.com/iliyamo/escape-room-manager/internal/queue"
	"github.com/iliyamo/escape-room-manager/internal/repository"
)

var (
	ErrCapacityExceeded  = errors.New("party exceeds room capacity")
	ErrRoomUnavailable   = errors.New("room is already booked at that time")
	ErrRoomInactive      = errors.New("room is not active")
	ErrIllegalTransition = errors.New("illegal booking status transition")
)

// Bookings applies the business rules around the booking store: capacity,
// slot availability, room activity and the status state machine.
type Bookings struct {
	rooms    *repository.RoomRepo
	bookings *repository.BookingRepo
	events   EventPublisher
	log      *slog.Logger
}

func NewBookings(rooms *repository.RoomRepo, bookings *repository.BookingRepo, events EventPublisher, logger *slog.Logger) *Bookings {
	if events == nil {
		events = NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bookings{rooms: rooms, bookings: bookings, events: events, log: logger}
}

// Create books an active room for a party.  A new booking starts PENDING
// unless CONFIRMED is asked for, and a zero price is taken from the room.
func (s *Bookings) Create(ctx context.Context, b *model.Booking) error {
	if b.Status == "" {
		b.Status = model.StatusPending
	}
	if b.Status.Terminal() {
		return fmt.Errorf("%w: a booking cannot start as %s", ErrIllegalTransition, b.Status)
	}
	room, err := s.rooms.FindByID(ctx, b.RoomID)
	if err != nil {
		return err
	}
	if !room.IsActive {
		return ErrRoomInactive
	}
	party := partySize(b)
	if party > room.Capacity {
		return fmt.Errorf("%w: %d players, capacity %d", ErrCapacityExceeded, party, room.Capacity)
	}
	if err := s.requireSlot(ctx, b.RoomID, b.ScheduledTime); err != nil {
		return err
	}
	if b.TotalPrice.IsZero() {
		b.TotalPrice = room.CalculatePrice(party)
	}
	if err := s.bookings.Create(ctx, b); err != nil {
		return err
	}
	publish(ctx, s.events, s.log, queue.NewBookingEvent(queue.BookingCreated, b, ""))
	return nil
}

// Update rewrites a booking.  Availability is checked again only when the
// room or the time moves; a status change must follow the state machine.
func (s *Bookings) Update(ctx context.Context, b *model.Booking) error {
	current, err := s.bookings.FindByID(ctx, b.ID)
	if err != nil {
		return err
	}
	if b.Status == "" {
		b.Status = current.Status
	}
	if b.Status != current.Status && !current.Status.CanTransitionTo(b.Status) {
		return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, current.Status, b.Status)
	}

	room, err := s.rooms.FindByID(ctx, b.RoomID)
	if err != nil {
		return err
	}
	moved := b.RoomID != current.RoomID || !sameSlot(b.ScheduledTime, current.ScheduledTime)
	if moved && !room.IsActive {
		return ErrRoomInactive
	}
	party := partySize(b)
	if party > room.Capacity {
		return fmt.Errorf("%w: %d players, capacity %d", ErrCapacityExceeded, party, room.Capacity)
	}
	if moved && b.Status != model.StatusCancelled {
		if err := s.requireSlot(ctx, b.RoomID, b.ScheduledTime); err != nil {
			return err
		}
	}
	if err := s.bookings.Update(ctx, b); err != nil {
		return err
	}
	if b.Status != current.Status {
		publish(ctx, s.events, s.log, queue.NewBookingEvent(queue.BookingStatusChanged, b, current.Status))
	}
	return nil
}

// ChangeStatus moves a booking along PENDING -> CONFIRMED -> COMPLETED, or
// to CANCELLED from either live status.  Asking for the current status is a
// no-op.
func (s *Bookings) ChangeStatus(ctx context.Context, id uint64, next model.BookingStatus) (*model.Booking, error) {
	if !next.Valid() {
		return nil, &model.ValidationError{Fields: []string{fmt.Sprintf("unknown status %q", next)}}
	}
	b, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := b.Status
	if previous == next {
		return b, nil
	}
	if !previous.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s to %s", ErrIllegalTransition, previous, next)
	}
	if err := s.bookings.UpdateStatus(ctx, id, next); err != nil {
		return nil, err
	}
	b.Status = next
	publish(ctx, s.events, s.log, queue.NewBookingEvent(queue.BookingStatusChanged, b, previous))
	return b, nil
}

// Availability reports whether an existing room is free at the given time.
func (s *Bookings) Availability(ctx context.Context, roomID uint64, at time.Time) (bool, error) {
	if _, err := s.rooms.FindByID(ctx, roomID); err != nil {
		return false, err
	}
	return s.bookings.IsRoomAvailable(ctx, roomID, at)
}

func (s *Bookings) requireSlot(ctx context.Context, roomID uint64, at time.Time) error {
	ok, err := s.bookings.IsRoomAvailable(ctx, roomID, at)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoomUnavailable, at.UTC().Format(time.RFC3339))
	}
	return nil
}

// partySize is the declared player count, or the number of linked players
// when that is larger.
func partySize(b *model.Booking) int {
	linked := len(model.UniqueIDs(b.PlayerIDs))
	if b.NumberOfPlayers < linked {
		return linked
	}
	return b.NumberOfPlayers
}

func sameSlot(a, b time.Time) bool {
	return a.UTC().Truncate(time.Second).Equal(b.UTC().Truncate(time.Second))
}
