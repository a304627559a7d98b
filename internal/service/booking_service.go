package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"roombook/internal/database"
	"roombook/internal/domain"
	"roombook/internal/events"
	"roombook/internal/metrics"
	"roombook/internal/models"
	"roombook/internal/rooms"
	"roombook/internal/scheduling"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options carries the booking policy taken from configuration.
type Options struct {
	Location    *time.Location
	AutoConfirm bool
	// LockWait bounds how long a commit waits for a busy room.
	LockWait time.Duration
	Managers []int64
	Clock    domain.Clock
}

type BookingService struct {
	store    domain.BookingStore
	rooms    *RoomService
	locker   domain.RoomLocker
	eventBus domain.EventPublisher
	queue    domain.NotificationQueue
	opts     Options
	managers map[int64]struct{}
	logger   *zerolog.Logger
}

func NewBookingService(
	store domain.BookingStore,
	roomService *RoomService,
	locker domain.RoomLocker,
	eventBus domain.EventPublisher,
	queue domain.NotificationQueue,
	opts Options,
	logger *zerolog.Logger,
) *BookingService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.LockWait <= 0 {
		opts.LockWait = models.DefaultLockWait * time.Second
	}
	managers := make(map[int64]struct{}, len(opts.Managers))
	for _, id := range opts.Managers {
		managers[id] = struct{}{}
	}
	return &BookingService{
		store:    store,
		rooms:    roomService,
		locker:   locker,
		eventBus: eventBus,
		queue:    queue,
		opts:     opts,
		managers: managers,
		logger:   logger,
	}
}

// CommitRequest is a single or recurring booking request. RoomName is used
// when RoomID is zero.
type CommitRequest struct {
	RoomID            int64
	RoomName          string
	Title             string
	Description       string
	StartTime         time.Time
	EndTime           time.Time
	RecurrencePattern string
	RecurrenceEndDate *time.Time
	CreatedBy         int64
}

// ExtractedBooking is booking data produced by natural-language extraction.
// None of it is trusted.
type ExtractedBooking struct {
	RoomName      string  `json:"room_name"`
	StartTime     string  `json:"start_time"`
	DurationHours float64 `json:"duration_hours"`
	Title         string  `json:"title"`
}

// UpdateRequest changes a booking in place. Nil fields are left unchanged.
type UpdateRequest struct {
	Title       *string
	Description *string
	StartTime   *time.Time
	EndTime     *time.Time
}

func (s *BookingService) IsManager(userID int64) bool {
	_, ok := s.managers[userID]
	return ok
}

func (s *BookingService) Location() *time.Location {
	return s.opts.Location
}

// Commit validates the request, expands it into occurrences, checks every
// occurrence against the room's live bookings and persists the whole series in
// one transaction. Nothing is stored unless every occurrence is clear. The
// first stored occurrence is returned.
func (s *BookingService) Commit(ctx context.Context, req CommitRequest) (*models.Booking, error) {
	started := time.Now()
	first, n, err := s.commit(ctx, req)
	metrics.ObserveCommit(commitOutcome(err), n, time.Since(started).Seconds())
	return first, err
}

func (s *BookingService) commit(ctx context.Context, req CommitRequest) (*models.Booking, int, error) {
	room, err := s.validate(ctx, req)
	if err != nil {
		return nil, 0, err
	}

	pattern := req.RecurrencePattern
	if pattern == "" {
		pattern = models.RecurrenceNone
	}
	var recurrenceEnd time.Time
	if pattern != models.RecurrenceNone {
		if req.RecurrenceEndDate == nil {
			return nil, 0, scheduling.NewValidationError("recurrence_end_date", "is required for recurring bookings")
		}
		recurrenceEnd = *req.RecurrenceEndDate
	}

	occurrences, err := scheduling.ExpandAll(req.StartTime, req.EndTime.Sub(req.StartTime), pattern, recurrenceEnd)
	if err != nil {
		return nil, 0, err
	}

	unlock, err := s.lockRoom(ctx, room.ID)
	if err != nil {
		return nil, 0, err
	}
	defer unlock()

	existing, err := s.store.ListBookings(ctx, models.BookingFilter{
		RoomID:        room.ID,
		ExcludeStatus: []string{models.StatusCancelled},
		From:          occurrences[0].Start,
		To:            occurrences[len(occurrences)-1].End,
	})
	if err != nil {
		return nil, 0, &scheduling.StoreError{Op: "list bookings", Err: err}
	}

	if err := scheduling.CheckSeries(room.ID, occurrences, existing); err != nil {
		var ce *scheduling.ConflictError
		if errors.As(err, &ce) {
			ce.Location = s.opts.Location
			s.publishConflict(room, req, ce)
		}
		return nil, 0, err
	}

	status := models.StatusPending
	if s.opts.AutoConfirm {
		status = models.StatusConfirmed
	}
	var recurrenceID string
	var recurrenceEndDate *time.Time
	if pattern != models.RecurrenceNone {
		recurrenceID = uuid.NewString()
		end := recurrenceEnd
		recurrenceEndDate = &end
	}

	bookings := make([]*models.Booking, len(occurrences))
	for i, occ := range occurrences {
		bookings[i] = &models.Booking{
			RoomID:            room.ID,
			RoomName:          room.Name,
			Title:             strings.TrimSpace(req.Title),
			Description:       req.Description,
			StartTime:         occ.Start,
			EndTime:           occ.End,
			Status:            status,
			CreatedBy:         req.CreatedBy,
			RecurrencePattern: pattern,
			RecurrenceEndDate: recurrenceEndDate,
			RecurrenceID:      recurrenceID,
		}
	}

	if err := s.store.InsertBookings(ctx, bookings); err != nil {
		var oe *database.OverlapError
		if errors.As(err, &oe) {
			idx := oe.Index
			if idx < 0 || idx >= len(occurrences) {
				idx = 0
			}
			ce := &scheduling.ConflictError{RoomID: room.ID, Occurrence: occurrences[idx], Location: s.opts.Location}
			s.publishConflict(room, req, ce)
			return nil, 0, ce
		}
		return nil, 0, &scheduling.StoreError{Op: "insert bookings", Err: err}
	}

	first := bookings[0]
	s.logger.Info().
		Int64("booking_id", first.ID).
		Int64("room_id", room.ID).
		Int64("created_by", req.CreatedBy).
		Str("recurrence_id", recurrenceID).
		Int("occurrences", len(bookings)).
		Msg("Booking committed")

	s.publishEvent(events.EventBookingCreated, first, len(bookings), req.CreatedBy)
	s.enqueueNotification(ctx, events.EventBookingCreated, first)

	return first, len(bookings), nil
}

// validate checks the request against the room's policy and returns the room.
func (s *BookingService) validate(ctx context.Context, req CommitRequest) (*models.Room, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, scheduling.NewValidationError("title", "is required")
	}
	room, err := s.findRoom(ctx, req.RoomID, req.RoomName)
	if err != nil {
		return nil, err
	}
	if err := s.validateWindow(room, req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *BookingService) findRoom(ctx context.Context, id int64, name string) (*models.Room, error) {
	var (
		room *models.Room
		err  error
	)
	switch {
	case id != 0:
		room, err = s.rooms.GetRoom(ctx, id)
	case strings.TrimSpace(name) != "":
		room, err = s.rooms.ResolveRoom(ctx, name)
	default:
		return nil, scheduling.NewValidationError("room_id", "a room must be selected")
	}
	if err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			return nil, scheduling.NewValidationError("room_id", "room not found")
		}
		return nil, err
	}
	if !room.IsActive() {
		return nil, scheduling.NewValidationError("room_id", fmt.Sprintf("room %q is not available for booking", room.Name))
	}
	return room, nil
}

func (s *BookingService) validateWindow(room *models.Room, start, end time.Time) error {
	if start.IsZero() {
		return scheduling.NewValidationError("start_time", "is required")
	}
	if end.IsZero() {
		return scheduling.NewValidationError("end_time", "is required")
	}
	if !end.After(start) {
		return scheduling.NewValidationError("end_time", "must be after start time")
	}

	minutes := end.Sub(start).Minutes()
	if room.MinBookingTime > 0 && minutes < float64(room.MinBookingTime) {
		return scheduling.NewValidationError("end_time", fmt.Sprintf("booking must last at least %d minutes", room.MinBookingTime))
	}
	if room.MaxBookingTime > 0 && minutes > float64(room.MaxBookingTime) {
		return scheduling.NewValidationError("end_time", fmt.Sprintf("booking must not last more than %d minutes", room.MaxBookingTime))
	}

	now := s.opts.Clock()
	if start.Before(now) {
		return scheduling.NewValidationError("start_time", "must not be in the past")
	}
	if room.MaxAdvanceBooking > 0 && start.After(now.AddDate(0, 0, room.MaxAdvanceBooking)) {
		return scheduling.NewValidationError("start_time",
			fmt.Sprintf("room %q can be booked at most %d days ahead", room.Name, room.MaxAdvanceBooking))
	}
	return nil
}

func (s *BookingService) lockRoom(ctx context.Context, roomID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockWait)
	defer cancel()
	unlock, err := s.locker.Lock(lockCtx, roomID)
	if err != nil {
		return nil, &scheduling.StoreError{Op: "lock room", Err: err}
	}
	return unlock, nil
}

var extractedLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseLocalTime accepts ISO-8601 with or without an offset. Offset-less
// input is read in loc. Failures are ValidationErrors on field.
func ParseLocalTime(field, value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range extractedLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, scheduling.NewValidationError(field, fmt.Sprintf("%q is not an ISO-8601 date", value))
}

// CommitExtracted re-validates extracted booking data and commits it as a
// single booking.
func (s *BookingService) CommitExtracted(ctx context.Context, in ExtractedBooking, userID int64) (*models.Booking, error) {
	start, err := ParseLocalTime("start_time", in.StartTime, s.opts.Location)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(in.DurationHours) || math.IsInf(in.DurationHours, 0) || in.DurationHours <= 0 {
		return nil, scheduling.NewValidationError("duration_hours", "must be greater than zero")
	}
	if strings.TrimSpace(in.RoomName) == "" {
		return nil, scheduling.NewValidationError("room_name", "is required")
	}
	room, err := s.rooms.ResolveRoom(ctx, in.RoomName)
	if err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			return nil, scheduling.NewValidationError("room_name", fmt.Sprintf("unknown room %q", in.RoomName))
		}
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Meeting"
	}

	return s.Commit(ctx, CommitRequest{
		RoomID:    room.ID,
		Title:     title,
		StartTime: start,
		EndTime:   start.Add(time.Duration(in.DurationHours * float64(time.Hour))),
		CreatedBy: userID,
	})
}

// Approve confirms a pending booking. Only managers may approve.
func (s *BookingService) Approve(ctx context.Context, id, managerID int64) (*models.Booking, error) {
	if !s.IsManager(managerID) {
		return nil, ErrPermissionDenied
	}
	booking, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransition, booking.Status)
	}

	if err := s.store.UpdateBookingStatusWithVersion(ctx, id, booking.Version, models.StatusConfirmed, &managerID); err != nil {
		return nil, s.storeErr("approve booking", err)
	}

	updated, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, s.storeErr("get booking", err)
	}
	s.logger.Info().Int64("booking_id", id).Int64("manager_id", managerID).Msg("Booking approved")
	s.publishEvent(events.EventBookingConfirmed, updated, 0, managerID)
	s.enqueueNotification(ctx, events.EventBookingConfirmed, updated)
	return updated, nil
}

// Cancel cancels a booking on behalf of its creator. With wholeSeries the
// booking and every later live occurrence of its series are cancelled. It
// returns how many bookings changed.
func (s *BookingService) Cancel(ctx context.Context, id, userID int64, wholeSeries bool) (int64, error) {
	booking, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return 0, err
	}
	if booking.CreatedBy != userID {
		return 0, ErrPermissionDenied
	}
	if booking.IsTerminal() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidTransition, booking.Status)
	}

	room, err := s.rooms.GetRoom(ctx, booking.RoomID)
	if err == nil && room.CancellationTime > 0 {
		deadline := booking.StartTime.Add(-time.Duration(room.CancellationTime) * time.Minute)
		if s.opts.Clock().After(deadline) {
			return 0, ErrCancellationWindow
		}
	}

	var n int64
	if wholeSeries && booking.IsRecurring() {
		n, err = s.store.CancelSeries(ctx, booking.RecurrenceID, booking.StartTime)
		if err != nil {
			return 0, s.storeErr("cancel series", err)
		}
	} else {
		if err := s.store.UpdateBookingStatusWithVersion(ctx, id, booking.Version, models.StatusCancelled, nil); err != nil {
			return 0, s.storeErr("cancel booking", err)
		}
		n = 1
	}

	booking.Status = models.StatusCancelled
	s.logger.Info().
		Int64("booking_id", id).
		Int64("user_id", userID).
		Bool("whole_series", wholeSeries).
		Int64("cancelled", n).
		Msg("Booking cancelled")
	s.publishEvent(events.EventBookingCancelled, booking, int(n), userID)
	s.enqueueNotification(ctx, events.EventBookingCancelled, booking)
	return n, nil
}

// Update changes a live booking's text or window. A new window is
// re-validated and checked against every other live booking of the room.
func (s *BookingService) Update(ctx context.Context, id, userID int64, req UpdateRequest) (*models.Booking, error) {
	booking, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.CreatedBy != userID {
		return nil, ErrPermissionDenied
	}
	if booking.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransition, booking.Status)
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, scheduling.NewValidationError("title", "is required")
		}
		booking.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		booking.Description = *req.Description
	}

	windowChanged := req.StartTime != nil || req.EndTime != nil
	if req.StartTime != nil {
		booking.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		booking.EndTime = *req.EndTime
	}

	if windowChanged {
		room, err := s.rooms.GetRoom(ctx, booking.RoomID)
		if err != nil {
			return nil, err
		}
		if err := s.validateWindow(room, booking.StartTime, booking.EndTime); err != nil {
			return nil, err
		}

		unlock, err := s.lockRoom(ctx, room.ID)
		if err != nil {
			return nil, err
		}
		defer unlock()

		window := scheduling.Occurrence{Start: booking.StartTime, End: booking.EndTime}
		existing, err := s.store.ListBookings(ctx, models.BookingFilter{
			RoomID:        room.ID,
			ExcludeStatus: []string{models.StatusCancelled},
			From:          window.Start,
			To:            window.End,
		})
		if err != nil {
			return nil, &scheduling.StoreError{Op: "list bookings", Err: err}
		}
		others := existing[:0]
		for _, b := range existing {
			if b.ID != booking.ID {
				others = append(others, b)
			}
		}
		if blocking := scheduling.FirstConflict(room.ID, window, others); blocking != nil {
			return nil, &scheduling.ConflictError{RoomID: room.ID, Occurrence: window, Existing: blocking, Location: s.opts.Location}
		}
	}

	if err := s.store.UpdateBookingWithVersion(ctx, booking); err != nil {
		if errors.Is(err, database.ErrOverlap) {
			return nil, &scheduling.ConflictError{
				RoomID:     booking.RoomID,
				Occurrence: scheduling.Occurrence{Start: booking.StartTime, End: booking.EndTime},
				Location:   s.opts.Location,
			}
		}
		return nil, s.storeErr("update booking", err)
	}

	s.logger.Info().Int64("booking_id", id).Int64("user_id", userID).Msg("Booking updated")
	s.publishEvent(events.EventBookingUpdated, booking, 0, userID)
	s.enqueueNotification(ctx, events.EventBookingUpdated, booking)
	return booking, nil
}

// CheckAvailability reports whether the room is free for window and, when it
// is not, which other active rooms are.
func (s *BookingService) CheckAvailability(ctx context.Context, roomID int64, window scheduling.Occurrence) (*models.Availability, error) {
	if !window.Valid() {
		return nil, scheduling.NewValidationError("end", "must be after start")
	}
	if _, err := s.rooms.GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			return nil, scheduling.NewValidationError("room_id", "room not found")
		}
		return nil, err
	}

	bookings, err := s.store.ListBookings(ctx, models.BookingFilter{
		ExcludeStatus: []string{models.StatusCancelled},
		From:          window.Start,
		To:            window.End,
	})
	if err != nil {
		return nil, &scheduling.StoreError{Op: "list bookings", Err: err}
	}

	result := &models.Availability{
		RoomID:    roomID,
		Start:     window.Start,
		End:       window.End,
		Available: scheduling.IsAvailable(roomID, window, bookings),
	}
	if !result.Available {
		var candidates []*models.Room
		for _, r := range s.rooms.ActiveRooms(ctx) {
			if r.ID != roomID {
				candidates = append(candidates, r)
			}
		}
		result.Alternatives = scheduling.SuggestAlternatives(window, candidates, bookings)
	}
	return result, nil
}

// CompleteElapsed marks confirmed bookings that have ended as completed.
func (s *BookingService) CompleteElapsed(ctx context.Context) (int64, error) {
	n, err := s.store.CompleteBookingsBefore(ctx, s.opts.Clock())
	if err != nil {
		return 0, &scheduling.StoreError{Op: "complete bookings", Err: err}
	}
	if n > 0 {
		s.logger.Info().Int64("completed", n).Msg("Elapsed bookings completed")
		if s.eventBus != nil {
			if err := s.eventBus.PublishJSON(events.EventBookingCompleted, map[string]int64{"count": n}); err != nil {
				s.logger.Error().Err(err).Msg("publish event error")
			}
		}
	}
	return n, nil
}

// RunCompletion calls CompleteElapsed every interval until ctx is done.
func (s *BookingService) RunCompletion(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = models.DefaultCompletionInterval * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CompleteElapsed(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Completion sweep failed")
			}
		}
	}
}

func (s *BookingService) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	list, err := s.store.ListBookings(ctx, filter)
	if err != nil {
		return nil, &scheduling.StoreError{Op: "list bookings", Err: err}
	}
	return list, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

// storeErr keeps the sentinels callers branch on and wraps everything else.
func (s *BookingService) storeErr(op string, err error) error {
	if errors.Is(err, database.ErrNotFound) || errors.Is(err, database.ErrConcurrentModification) {
		return err
	}
	return &scheduling.StoreError{Op: op, Err: err}
}

func (s *BookingService) publishConflict(room *models.Room, req CommitRequest, ce *scheduling.ConflictError) {
	if s.eventBus == nil {
		return
	}
	payload := events.BookingEventPayload{
		RoomID:       room.ID,
		RoomName:     room.Name,
		Title:        req.Title,
		StartTime:    ce.Occurrence.Start,
		EndTime:      ce.Occurrence.End,
		CreatedBy:    req.CreatedBy,
		ConflictDate: ce.Date(),
	}
	if err := s.eventBus.PublishJSON(events.EventBookingConflict, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", events.EventBookingConflict).Msg("publish event error")
	}
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, occurrences int, changedByID int64) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:    booking.ID,
		RoomID:       booking.RoomID,
		RoomName:     booking.RoomName,
		Title:        booking.Title,
		Status:       booking.Status,
		StartTime:    booking.StartTime,
		EndTime:      booking.EndTime,
		CreatedBy:    booking.CreatedBy,
		RecurrenceID: booking.RecurrenceID,
		Occurrences:  occurrences,
		ChangedByID:  changedByID,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueNotification(ctx context.Context, taskType string, booking *models.Booking) {
	if s.queue == nil {
		return
	}
	if err := s.queue.EnqueueTask(ctx, taskType, booking); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Str("task", taskType).Msg("notification enqueue error")
	}
}

func commitOutcome(err error) string {
	var ce *scheduling.ConflictError
	switch {
	case err == nil:
		return metrics.OutcomeCommitted
	case errors.As(err, &ce):
		return metrics.OutcomeConflict
	case scheduling.IsUserError(err):
		return metrics.OutcomeValidation
	default:
		return metrics.OutcomeError
	}
}
