package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"roombook/internal/export"
	"roombook/internal/models"
	"roombook/internal/rooms"
	"roombook/internal/scheduling"
	"roombook/internal/service"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleListRooms(w http.ResponseWriter, r *http.Request) {
	list := s.rooms.ListRooms(r.Context())
	if r.URL.Query().Get("active") == "true" {
		list = s.rooms.ActiveRooms(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": list})
}

func (s *HTTPServer) handleResolveRoom(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "name is required", Field: "name"})
		return
	}
	room, err := s.rooms.ResolveRoom(r.Context(), name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomID, err := s.roomFromQuery(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	loc := s.bookings.Location()
	start, err := service.ParseLocalTime("start", q.Get("start"), loc)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	end, err := service.ParseLocalTime("end", q.Get("end"), loc)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	avail, err := s.bookings.CheckAvailability(r.Context(), roomID, scheduling.Occurrence{Start: start, End: end})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if avail.Alternatives == nil {
		avail.Alternatives = []*models.Room{}
	}
	writeJSON(w, http.StatusOK, avail)
}

// roomFromQuery reads room_id, or resolves room when no id is given.
func (s *HTTPServer) roomFromQuery(r *http.Request) (int64, error) {
	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("room_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return 0, scheduling.NewValidationError("room_id", "must be a positive integer")
		}
		return id, nil
	}
	name := strings.TrimSpace(q.Get("room"))
	if name == "" {
		return 0, scheduling.NewValidationError("room_id", "a room must be selected")
	}
	room, err := s.rooms.ResolveRoom(r.Context(), name)
	if err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			return 0, scheduling.NewValidationError("room", "room not found")
		}
		return 0, err
	}
	return room.ID, nil
}

// rangeFromQuery reads from and to, defaulting to the window around now
// used for listings and exports.
func (s *HTTPServer) rangeFromQuery(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	loc := s.bookings.Location()
	now := s.clock().In(loc)
	from := now.AddDate(0, 0, -models.DefaultExportRangeDaysBefore)
	to := now.AddDate(0, 0, models.DefaultExportRangeDaysAfter)

	if raw := q.Get("from"); raw != "" {
		t, err := parseDateOrTime("from", raw, loc, false)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := parseDateOrTime("to", raw, loc, true)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = t
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, scheduling.NewValidationError("to", "must be after from")
	}
	return from, to, nil
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := s.rangeFromQuery(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	filter := models.BookingFilter{
		RecurrenceID: strings.TrimSpace(q.Get("recurrence_id")),
		From:         from,
		To:           to,
	}
	if q.Get("room_id") != "" || q.Get("room") != "" {
		filter.RoomID, err = s.roomFromQuery(r)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}
	if raw := strings.TrimSpace(q.Get("created_by")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "created_by must be an integer", Field: "created_by"})
			return
		}
		filter.CreatedBy = id
	}
	if q.Get("include_cancelled") != "true" {
		filter.ExcludeStatus = []string{models.StatusCancelled}
	}

	list, err := s.bookings.ListBookings(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": list})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.rangeFromQuery(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	list, err := s.bookings.ListBookings(r.Context(), models.BookingFilter{From: from, To: to})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	f, err := s.exporter.Build(from, to, s.rooms.ListRooms(r.Context()), list)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(from, to)+`"`)
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		s.log.Error().Err(err).Msg("write export")
	}
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	booking, err := s.bookings.GetBooking(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type createBookingRequest struct {
	RoomID            int64  `json:"room_id"`
	RoomName          string `json:"room_name"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	RecurrencePattern string `json:"recurrence_pattern"`
	RecurrenceEndDate string `json:"recurrence_end_date"`
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.actingUser(w, r)
	if !ok {
		return
	}
	var body createBookingRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if !s.allowWrite(w, r, userID) {
		return
	}

	req, err := s.commitRequest(body, userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	booking, err := s.bookings.Commit(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) commitRequest(body createBookingRequest, userID int64) (service.CommitRequest, error) {
	loc := s.bookings.Location()
	start, err := service.ParseLocalTime("start_time", body.StartTime, loc)
	if err != nil {
		return service.CommitRequest{}, err
	}
	end, err := service.ParseLocalTime("end_time", body.EndTime, loc)
	if err != nil {
		return service.CommitRequest{}, err
	}

	req := service.CommitRequest{
		RoomID:            body.RoomID,
		RoomName:          body.RoomName,
		Title:             body.Title,
		Description:       body.Description,
		StartTime:         start,
		EndTime:           end,
		RecurrencePattern: strings.ToLower(strings.TrimSpace(body.RecurrencePattern)),
		CreatedBy:         userID,
	}
	if strings.TrimSpace(body.RecurrenceEndDate) != "" {
		until, err := parseDateOrTime("recurrence_end_date", body.RecurrenceEndDate, loc, true)
		if err != nil {
			return service.CommitRequest{}, err
		}
		until = clampToLimitDay(until, scheduling.RecurrenceLimit(start))
		req.RecurrenceEndDate = &until
	}
	return req, nil
}

func (s *HTTPServer) handleCreateExtracted(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.actingUser(w, r)
	if !ok {
		return
	}
	var body service.ExtractedBooking
	if !decodeJSON(w, r, &body) {
		return
	}
	if !s.allowWrite(w, r, userID) {
		return
	}

	booking, err := s.bookings.CommitExtracted(r.Context(), body, userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

type updateBookingRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
}

func (s *HTTPServer) handleUpdateBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	userID, ok := s.actingUser(w, r)
	if !ok {
		return
	}
	var body updateBookingRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if !s.allowWrite(w, r, userID) {
		return
	}

	req := service.UpdateRequest{Title: body.Title, Description: body.Description}
	loc := s.bookings.Location()
	if body.StartTime != nil {
		t, err := service.ParseLocalTime("start_time", *body.StartTime, loc)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		req.StartTime = &t
	}
	if body.EndTime != nil {
		t, err := service.ParseLocalTime("end_time", *body.EndTime, loc)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		req.EndTime = &t
	}

	booking, err := s.bookings.Update(r.Context(), id, userID, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type cancelBookingRequest struct {
	WholeSeries bool `json:"whole_series"`
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	userID, ok := s.actingUser(w, r)
	if !ok {
		return
	}
	var body cancelBookingRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &body) {
		return
	}
	if !s.allowWrite(w, r, userID) {
		return
	}

	n, err := s.bookings.Cancel(r.Context(), id, userID, body.WholeSeries)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"cancelled": n})
}

func (s *HTTPServer) handleApproveBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	userID, ok := s.actingUser(w, r)
	if !ok {
		return
	}

	booking, err := s.bookings.Approve(r.Context(), id, userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func bookingID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "booking id must be a positive integer", Field: "id"})
		return 0, false
	}
	return id, true
}

// parseDateOrTime accepts a bare date as well as a timestamp. A bare date
// means the start of that day, or its last instant when endOfDay is set.
func parseDateOrTime(field, value string, loc *time.Location, endOfDay bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if d, err := time.ParseInLocation(time.DateOnly, value, loc); err == nil {
		if endOfDay {
			return d.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
		}
		return d, nil
	}
	return service.ParseLocalTime(field, value, loc)
}

// clampToLimitDay pulls an end that falls later on the same calendar day as
// limit back to limit, so a date-only end picked on the last allowed day is
// accepted.
func clampToLimitDay(until, limit time.Time) time.Time {
	if !until.After(limit) {
		return until
	}
	uy, um, ud := until.In(limit.Location()).Date()
	ly, lm, ld := limit.Date()
	if uy == ly && um == lm && ud == ld {
		return limit
	}
	return until
}
