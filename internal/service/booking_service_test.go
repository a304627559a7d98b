package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"roombook/internal/database"
	"roombook/internal/events"
	"roombook/internal/models"
	"roombook/internal/repository"
	"roombook/internal/rooms"
	"roombook/internal/scheduling"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	mu    sync.Mutex
	tasks []string
}

func (q *recordingQueue) EnqueueTask(_ context.Context, taskType string, _ *models.Booking) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, taskType)
	return nil
}

func (q *recordingQueue) Tasks() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.tasks...)
}

type fixture struct {
	db        *database.DB
	svc       *BookingService
	rooms     *RoomService
	queue     *recordingQueue
	bus       *events.EventBus
	now       time.Time
	managerID int64
}

func at(day, hour, minute int) time.Time {
	return time.Date(2025, 4, day, hour, minute, 0, 0, time.UTC)
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "service.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	aliases := rooms.MustAliasTable(
		rooms.Alias{Pattern: "phòng họp 1", Canonical: "phòng 1"},
		rooms.Alias{Pattern: "phòng A", Canonical: "phòng A"},
	)
	roomService := NewRoomService(db, aliases, &logger)
	require.NoError(t, roomService.Sync(context.Background(), []*models.Room{
		{ID: 1, Name: "Phòng A", Capacity: 8},
		{ID: 2, Name: "Phòng B", Capacity: 4, CancellationTime: 60},
		{ID: 3, Name: "Phòng 1", Capacity: 12, MinBookingTime: 30, MaxBookingTime: 240},
		{ID: 4, Name: "Kho", Status: models.RoomStatusMaintenance},
		{ID: 5, Name: "Phòng C", MaxAdvanceBooking: 7},
	}))

	f := &fixture{
		db:        db,
		rooms:     roomService,
		queue:     &recordingQueue{},
		bus:       events.NewEventBus(&logger),
		now:       at(1, 8, 0),
		managerID: 900,
	}
	f.svc = NewBookingService(db, roomService, repository.NewMemoryRoomLocker(), f.bus, f.queue, Options{
		Location: time.UTC,
		Managers: []int64{f.managerID},
		Clock:    func() time.Time { return f.now },
	}, &logger)
	return f
}

func (f *fixture) existing(t *testing.T, roomID int64, start, end time.Time) *models.Booking {
	t.Helper()
	b := &models.Booking{
		RoomID: roomID, Title: "Existing", StartTime: start, EndTime: end,
		Status: models.StatusConfirmed, CreatedBy: 1,
	}
	require.NoError(t, f.db.InsertBookings(context.Background(), []*models.Booking{b}))
	return b
}

func (f *fixture) count(t *testing.T, roomID int64) int {
	t.Helper()
	list, err := f.db.ListBookings(context.Background(), models.BookingFilter{RoomID: roomID})
	require.NoError(t, err)
	return len(list)
}

func request(roomID int64, start time.Time, d time.Duration) CommitRequest {
	return CommitRequest{RoomID: roomID, Title: "Planning", StartTime: start, EndTime: start.Add(d), CreatedBy: 42}
}

func TestCommit_ConflictReportsDate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	blocking := f.existing(t, 1, at(30, 9, 0), at(30, 11, 0))

	var conflicts []events.BookingEventPayload
	f.bus.Subscribe(events.EventBookingConflict, func(e *events.Event) error {
		var p events.BookingEventPayload
		require.NoError(t, e.Decode(&p))
		conflicts = append(conflicts, p)
		return nil
	})

	_, err := f.svc.Commit(ctx, request(1, at(30, 10, 0), time.Hour))
	var ce *scheduling.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "2025-04-30", ce.Date())
	assert.Equal(t, blocking.ID, ce.Existing.ID)
	assert.Equal(t, "room is already booked on 2025-04-30", err.Error())
	require.Len(t, conflicts, 1)
	assert.Equal(t, "2025-04-30", conflicts[0].ConflictDate)
	assert.Equal(t, 1, f.count(t, 1))
}

func TestCommit_TouchingBookingSucceeds(t *testing.T) {
	f := setup(t)
	f.existing(t, 1, at(30, 9, 0), at(30, 11, 0))

	b, err := f.svc.Commit(context.Background(), request(1, at(30, 11, 0), time.Hour))
	require.NoError(t, err)
	assert.NotZero(t, b.ID)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, "Phòng A", b.RoomName)
	assert.Empty(t, b.RecurrenceID)
	assert.Equal(t, []string{events.EventBookingCreated}, f.queue.Tasks())
}

func TestCommit_SubSecondWindows(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.existing(t, 1, at(30, 9, 0), at(30, 10, 0).Add(600*time.Millisecond))

	_, err := f.svc.Commit(ctx, request(1, at(30, 10, 0).Add(300*time.Millisecond), time.Hour))
	var ce *scheduling.ConflictError
	require.ErrorAs(t, err, &ce)

	start := at(30, 10, 0).Add(200 * time.Millisecond)
	b, err := f.svc.Commit(ctx, request(2, start, 500*time.Millisecond))
	require.NoError(t, err)

	stored, err := f.db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, b.StartTime.Equal(stored.StartTime))
	assert.True(t, b.EndTime.Equal(stored.EndTime))
}

func TestCommit_RecurringSeriesIsAllOrNothing(t *testing.T) {
	f := setup(t)
	f.existing(t, 1, at(30, 9, 0), at(30, 11, 0))
	// week 3 of a series starting 2025-04-16
	f.existing(t, 1, time.Date(2025, 4, 30, 14, 30, 0, 0, time.UTC), time.Date(2025, 4, 30, 15, 30, 0, 0, time.UTC))

	end := time.Date(2025, 5, 7, 23, 59, 0, 0, time.UTC)
	req := request(1, at(16, 14, 0), time.Hour)
	req.RecurrencePattern = models.RecurrenceWeekly
	req.RecurrenceEndDate = &end

	_, err := f.svc.Commit(context.Background(), req)
	var ce *scheduling.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "2025-04-30", ce.Date())
	assert.Equal(t, 2, f.count(t, 1), "no occurrence of the rejected series may persist")
	assert.Empty(t, f.queue.Tasks())
}

func TestCommit_RecurringSeriesSharesID(t *testing.T) {
	f := setup(t)
	end := at(6, 0, 0)
	req := request(2, at(2, 9, 0), 30*time.Minute)
	req.RecurrencePattern = models.RecurrenceDaily
	req.RecurrenceEndDate = &end

	first, err := f.svc.Commit(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, first.RecurrenceID)
	assert.Equal(t, at(2, 9, 0), first.StartTime)

	series, err := f.db.ListBookings(context.Background(), models.BookingFilter{RecurrenceID: first.RecurrenceID})
	require.NoError(t, err)
	require.Len(t, series, 4)
	for i, b := range series {
		assert.Equal(t, at(2+i, 9, 0), b.StartTime)
		assert.Equal(t, models.RecurrenceDaily, b.RecurrencePattern)
		require.NotNil(t, b.RecurrenceEndDate)
	}
}

func TestCommit_AutoConfirm(t *testing.T) {
	f := setup(t)
	f.svc.opts.AutoConfirm = true

	b, err := f.svc.Commit(context.Background(), request(1, at(3, 9, 0), time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, b.Status)
}

func TestCommit_ByRoomName(t *testing.T) {
	f := setup(t)
	req := request(0, at(3, 9, 0), time.Hour)
	req.RoomName = "  PHÒNG HỌP 1 "

	b, err := f.svc.Commit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(3), b.RoomID)
}

func TestCommit_Validation(t *testing.T) {
	f := setup(t)
	longEnd := at(1, 9, 0).AddDate(1, 0, 1)
	shortEnd := at(1, 9, 0)

	tests := []struct {
		name  string
		req   CommitRequest
		field string
	}{
		{"EmptyTitle", CommitRequest{RoomID: 1, Title: " ", StartTime: at(3, 9, 0), EndTime: at(3, 10, 0)}, "title"},
		{"NoRoom", CommitRequest{Title: "x", StartTime: at(3, 9, 0), EndTime: at(3, 10, 0)}, "room_id"},
		{"UnknownRoom", request(99, at(3, 9, 0), time.Hour), "room_id"},
		{"InactiveRoom", request(4, at(3, 9, 0), time.Hour), "room_id"},
		{"NoStart", CommitRequest{RoomID: 1, Title: "x", EndTime: at(3, 10, 0)}, "start_time"},
		{"EndBeforeStart", CommitRequest{RoomID: 1, Title: "x", StartTime: at(3, 10, 0), EndTime: at(3, 9, 0)}, "end_time"},
		{"InThePast", request(1, at(1, 7, 0), time.Hour), "start_time"},
		{"TooShort", request(3, at(3, 9, 0), 15*time.Minute), "end_time"},
		{"TooLong", request(3, at(3, 9, 0), 5*time.Hour), "end_time"},
		{"TooFarAhead", request(5, at(20, 9, 0), time.Hour), "start_time"},
		{"RecurringWithoutEnd", func() CommitRequest {
			r := request(1, at(3, 9, 0), time.Hour)
			r.RecurrencePattern = models.RecurrenceDaily
			return r
		}(), "recurrence_end_date"},
		{"RecurrenceEndBeforeStart", func() CommitRequest {
			r := request(1, at(3, 9, 0), time.Hour)
			r.RecurrencePattern = models.RecurrenceWeekly
			r.RecurrenceEndDate = &shortEnd
			return r
		}(), "recurrence_end_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Commit(context.Background(), tt.req)
			var ve *scheduling.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	t.Run("InvalidPattern", func(t *testing.T) {
		req := request(1, at(3, 9, 0), time.Hour)
		req.RecurrencePattern = "yearly"
		req.RecurrenceEndDate = &longEnd
		_, err := f.svc.Commit(context.Background(), req)
		var pe *scheduling.InvalidRecurrencePatternError
		assert.ErrorAs(t, err, &pe)
	})

	t.Run("RangeTooLong", func(t *testing.T) {
		req := request(1, at(1, 9, 0), time.Hour)
		req.RecurrencePattern = models.RecurrenceMonthly
		req.RecurrenceEndDate = &longEnd
		_, err := f.svc.Commit(context.Background(), req)
		var re *scheduling.RecurrenceRangeError
		assert.ErrorAs(t, err, &re)
	})

	assert.Zero(t, f.count(t, 0))
}

func TestCommit_ConcurrentSameWindow(t *testing.T) {
	f := setup(t)
	const workers = 10

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := request(1, at(10, 9, 0), time.Hour)
			req.CreatedBy = int64(i + 1)
			_, err := f.svc.Commit(context.Background(), req)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		var ce *scheduling.ConflictError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &ce):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)
	assert.Equal(t, 1, f.count(t, 1))
}

func TestCommitExtracted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("Valid", func(t *testing.T) {
		b, err := f.svc.CommitExtracted(ctx, ExtractedBooking{
			RoomName: "Phòng họp 1", StartTime: "2025-04-30T10:00:00+07:00", DurationHours: 1.5,
		}, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(3), b.RoomID)
		assert.Equal(t, "Meeting", b.Title)
		assert.True(t, b.StartTime.Equal(time.Date(2025, 4, 30, 3, 0, 0, 0, time.UTC)))
		assert.Equal(t, 90*time.Minute, b.Duration())
		assert.Equal(t, int64(7), b.CreatedBy)
	})

	t.Run("OffsetLessUsesLocation", func(t *testing.T) {
		b, err := f.svc.CommitExtracted(ctx, ExtractedBooking{
			RoomName: "phong b", StartTime: "2025-04-29T14:00", DurationHours: 1, Title: "Sync",
		}, 7)
		require.NoError(t, err)
		assert.True(t, b.StartTime.Equal(at(29, 14, 0)))
		assert.Equal(t, "Sync", b.Title)
	})

	tests := []struct {
		name  string
		in    ExtractedBooking
		field string
	}{
		{"BadDate", ExtractedBooking{RoomName: "Phòng A", StartTime: "next tuesday", DurationHours: 1}, "start_time"},
		{"ZeroDuration", ExtractedBooking{RoomName: "Phòng A", StartTime: "2025-04-29T09:00", DurationHours: 0}, "duration_hours"},
		{"NegativeDuration", ExtractedBooking{RoomName: "Phòng A", StartTime: "2025-04-29T09:00", DurationHours: -2}, "duration_hours"},
		{"UnknownRoom", ExtractedBooking{RoomName: "Phòng Z", StartTime: "2025-04-29T09:00", DurationHours: 1}, "room_name"},
		{"NoRoom", ExtractedBooking{StartTime: "2025-04-29T09:00", DurationHours: 1}, "room_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CommitExtracted(ctx, tt.in, 7)
			var ve *scheduling.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestApprove(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b, err := f.svc.Commit(ctx, request(1, at(3, 9, 0), time.Hour))
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, b.ID, 42)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	approved, err := f.svc.Approve(ctx, b.ID, f.managerID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, f.managerID, *approved.ApprovedBy)
	assert.Equal(t, int64(2), approved.Version)

	_, err = f.svc.Approve(ctx, b.ID, f.managerID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Approve(ctx, 12345, f.managerID)
	assert.ErrorIs(t, err, database.ErrNotFound)

	assert.Equal(t, []string{events.EventBookingCreated, events.EventBookingConfirmed}, f.queue.Tasks())
}

func TestCancel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("OnlyCreator", func(t *testing.T) {
		b, err := f.svc.Commit(ctx, request(1, at(3, 9, 0), time.Hour))
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, b.ID, 43, false)
		assert.ErrorIs(t, err, ErrPermissionDenied)

		n, err := f.svc.Cancel(ctx, b.ID, 42, false)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = f.svc.Cancel(ctx, b.ID, 42, false)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		// the slot is free again
		_, err = f.svc.Commit(ctx, request(1, at(3, 9, 0), time.Hour))
		assert.NoError(t, err)
	})

	t.Run("WholeSeriesFromOccurrence", func(t *testing.T) {
		end := at(12, 0, 0)
		req := request(1, at(8, 14, 0), time.Hour)
		req.RecurrencePattern = models.RecurrenceDaily
		req.RecurrenceEndDate = &end
		first, err := f.svc.Commit(ctx, req)
		require.NoError(t, err)

		series, err := f.db.ListBookings(ctx, models.BookingFilter{RecurrenceID: first.RecurrenceID})
		require.NoError(t, err)
		require.Len(t, series, 4)

		n, err := f.svc.Cancel(ctx, series[2].ID, 42, true)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		series, err = f.db.ListBookings(ctx, models.BookingFilter{RecurrenceID: first.RecurrenceID})
		require.NoError(t, err)
		statuses := make([]string, len(series))
		for i, b := range series {
			statuses[i] = b.Status
		}
		assert.Equal(t, []string{
			models.StatusPending, models.StatusPending, models.StatusCancelled, models.StatusCancelled,
		}, statuses)
	})

	t.Run("CancellationWindow", func(t *testing.T) {
		b, err := f.svc.Commit(ctx, request(2, at(1, 8, 30), time.Hour))
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, b.ID, 42, false)
		assert.ErrorIs(t, err, ErrCancellationWindow)
	})
}

func TestUpdate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.existing(t, 1, at(5, 13, 0), at(5, 14, 0))
	b, err := f.svc.Commit(ctx, request(1, at(5, 9, 0), time.Hour))
	require.NoError(t, err)

	t.Run("NotCreator", func(t *testing.T) {
		title := "Other"
		_, err := f.svc.Update(ctx, b.ID, 1, UpdateRequest{Title: &title})
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("OverlapsItself", func(t *testing.T) {
		start, end := at(5, 9, 30), at(5, 10, 30)
		updated, err := f.svc.Update(ctx, b.ID, 42, UpdateRequest{StartTime: &start, EndTime: &end})
		require.NoError(t, err)
		assert.Equal(t, start, updated.StartTime)
		assert.Equal(t, int64(2), updated.Version)
	})

	t.Run("ConflictWithOther", func(t *testing.T) {
		start, end := at(5, 12, 30), at(5, 13, 30)
		_, err := f.svc.Update(ctx, b.ID, 42, UpdateRequest{StartTime: &start, EndTime: &end})
		var ce *scheduling.ConflictError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "2025-04-05", ce.Date())

		stored, err := f.db.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, at(5, 9, 30), stored.StartTime)
	})

	t.Run("InvalidWindow", func(t *testing.T) {
		end := at(5, 9, 0)
		_, err := f.svc.Update(ctx, b.ID, 42, UpdateRequest{EndTime: &end})
		var ve *scheduling.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "end_time", ve.Field)
	})
}

func TestCheckAvailability(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.existing(t, 1, at(30, 9, 0), at(30, 11, 0))
	f.existing(t, 5, at(30, 10, 0), at(30, 10, 30))

	result, err := f.svc.CheckAvailability(ctx, 1, scheduling.Occurrence{Start: at(30, 10, 0), End: at(30, 11, 0)})
	require.NoError(t, err)
	assert.False(t, result.Available)

	var names []string
	for _, r := range result.Alternatives {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"Phòng B", "Phòng 1"}, names)

	result, err = f.svc.CheckAvailability(ctx, 1, scheduling.Occurrence{Start: at(30, 11, 0), End: at(30, 12, 0)})
	require.NoError(t, err)
	assert.True(t, result.Available)
	assert.Empty(t, result.Alternatives)

	_, err = f.svc.CheckAvailability(ctx, 1, scheduling.Occurrence{Start: at(30, 12, 0), End: at(30, 11, 0)})
	var ve *scheduling.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestCompleteElapsed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.svc.opts.AutoConfirm = true

	_, err := f.svc.Commit(ctx, request(1, at(2, 9, 0), time.Hour))
	require.NoError(t, err)
	_, err = f.svc.Commit(ctx, request(1, at(4, 9, 0), time.Hour))
	require.NoError(t, err)

	f.now = at(3, 0, 0)
	n, err := f.svc.CompleteElapsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := f.svc.ListBookings(ctx, models.BookingFilter{RoomID: 1})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.StatusCompleted, list[0].Status)
	assert.Equal(t, models.StatusConfirmed, list[1].Status)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *mockStore) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockStore) InsertBookings(ctx context.Context, bookings []*models.Booking) error {
	return m.Called(ctx, bookings).Error(0)
}

func (m *mockStore) UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string, actorID *int64) error {
	return m.Called(ctx, id, fromVersion, status, actorID).Error(0)
}

func (m *mockStore) UpdateBookingWithVersion(ctx context.Context, booking *models.Booking) error {
	return m.Called(ctx, booking).Error(0)
}

func (m *mockStore) CancelSeries(ctx context.Context, recurrenceID string, from time.Time) (int64, error) {
	args := m.Called(ctx, recurrenceID, from)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) CompleteBookingsBefore(ctx context.Context, t time.Time) (int64, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(int64), args.Error(1)
}

func TestCommit_StoreFailures(t *testing.T) {
	f := setup(t)
	store := new(mockStore)
	logger := zerolog.New(io.Discard)
	svc := NewBookingService(store, f.rooms, repository.NewMemoryRoomLocker(), nil, nil, Options{
		Clock: func() time.Time { return f.now },
	}, &logger)
	ctx := context.Background()

	t.Run("ListFails", func(t *testing.T) {
		store.On("ListBookings", ctx, mock.Anything).Return(nil, errors.New("disk I/O error")).Once()

		_, err := svc.Commit(ctx, request(1, at(3, 9, 0), time.Hour))
		var se *scheduling.StoreError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "list bookings", se.Op)
		assert.False(t, scheduling.IsUserError(err))
	})

	t.Run("InsertRejectedByConstraint", func(t *testing.T) {
		store.On("ListBookings", ctx, mock.Anything).Return([]*models.Booking{}, nil).Once()
		store.On("InsertBookings", ctx, mock.Anything).Return(&database.OverlapError{Index: 0}).Once()

		_, err := svc.Commit(ctx, request(1, at(3, 9, 0), time.Hour))
		var ce *scheduling.ConflictError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "2025-04-03", ce.Date())
	})

	t.Run("InsertFails", func(t *testing.T) {
		store.On("ListBookings", ctx, mock.Anything).Return([]*models.Booking{}, nil).Once()
		store.On("InsertBookings", ctx, mock.Anything).Return(errors.New("database is locked")).Once()

		_, err := svc.Commit(ctx, request(1, at(3, 9, 0), time.Hour))
		var se *scheduling.StoreError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "insert bookings", se.Op)
	})

	t.Run("ConcurrentApproval", func(t *testing.T) {
		svc.managers[1] = struct{}{}
		store.On("GetBooking", ctx, int64(5)).Return(&models.Booking{ID: 5, Status: models.StatusPending, Version: 3}, nil).Once()
		store.On("UpdateBookingStatusWithVersion", ctx, int64(5), int64(3), models.StatusConfirmed, mock.Anything).
			Return(database.ErrConcurrentModification).Once()

		_, err := svc.Approve(ctx, 5, 1)
		assert.ErrorIs(t, err, database.ErrConcurrentModification)
	})

	store.AssertExpectations(t)
}
