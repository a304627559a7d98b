package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"roombook/internal/config"
	"roombook/internal/database"
	"roombook/internal/domain"
	"roombook/internal/export"
	"roombook/internal/metrics"
	"roombook/internal/models"
	"roombook/internal/repository"
	"roombook/internal/rooms"
	"roombook/internal/scheduling"
	"roombook/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 1 << 20
)

// Deps are the collaborators the HTTP API serves.
type Deps struct {
	Bookings *service.BookingService
	Rooms    *service.RoomService
	Exporter *export.Exporter
	// Limiter throttles booking writes per acting user. Nil disables it.
	Limiter domain.RateLimiter
	Health  func(ctx context.Context) error
	Clock   domain.Clock
	Logger  *zerolog.Logger
}

// HTTPServer exposes the booking API over JSON/HTTP.
type HTTPServer struct {
	cfg      config.APIConfig
	bookings *service.BookingService
	rooms    *service.RoomService
	exporter *export.Exporter
	limiter  domain.RateLimiter
	health   func(ctx context.Context) error
	clock    domain.Clock
	auth     *HTTPAuth
	log      zerolog.Logger
	server   *http.Server
}

func NewHTTPServer(cfg config.APIConfig, deps Deps) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		bookings: deps.Bookings,
		rooms:    deps.Rooms,
		exporter: deps.Exporter,
		limiter:  deps.Limiter,
		health:   deps.Health,
		clock:    deps.Clock,
		auth:     NewHTTPAuth(cfg, newKeyLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)),
		log:      zerolog.Nop(),
	}
	if deps.Logger != nil {
		srv.log = deps.Logger.With().Str("component", "http").Logger()
	}
	if srv.clock == nil {
		srv.clock = time.Now
	}
	if srv.exporter == nil {
		srv.exporter = export.New(srv.bookings.Location())
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(srv.routes()),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	a := s.auth

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.Handle("GET /api/v1/rooms", a.Require(permReadRooms, s.handleListRooms))
	mux.Handle("GET /api/v1/rooms/resolve", a.Require(permReadRooms, s.handleResolveRoom))
	mux.Handle("GET /api/v1/availability", a.Require(permReadBookings, s.handleAvailability))

	mux.Handle("GET /api/v1/bookings", a.Require(permReadBookings, s.handleListBookings))
	mux.Handle("GET /api/v1/bookings/export", a.Require(permReadBookings, s.handleExport))
	mux.Handle("GET /api/v1/bookings/{id}", a.Require(permReadBookings, s.handleGetBooking))
	mux.Handle("POST /api/v1/bookings", a.Require(permWriteBookings, s.handleCreateBooking))
	mux.Handle("POST /api/v1/bookings/extracted", a.Require(permWriteBookings, s.handleCreateExtracted))
	mux.Handle("PUT /api/v1/bookings/{id}", a.Require(permWriteBookings, s.handleUpdateBooking))
	mux.Handle("POST /api/v1/bookings/{id}/cancel", a.Require(permWriteBookings, s.handleCancelBooking))
	mux.Handle("POST /api/v1/bookings/{id}/approve", a.Require(permApproveBookings, s.handleApproveBooking))

	return mux
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// actingUser resolves the user header, writing 401 when it is absent.
func (s *HTTPServer) actingUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := s.auth.UserID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return 0, false
	}
	return id, true
}

// allowWrite applies the per-user write budget. A limiter failure lets the
// write through.
func (s *HTTPServer) allowWrite(w http.ResponseWriter, r *http.Request, userID int64) bool {
	perMinute := s.cfg.RateLimit.WritesPerMinute
	if s.limiter == nil || perMinute <= 0 {
		return true
	}
	ok, err := s.limiter.CheckRateLimit(r.Context(), "writes:"+strconv.FormatInt(userID, 10), perMinute, time.Minute)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("write rate limit check failed")
		return true
	}
	if !ok {
		writeError(w, http.StatusTooManyRequests, "too many booking changes, try again later")
		return false
	}
	return true
}

// writeServiceError maps booking errors to status codes.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *scheduling.ValidationError
		re *scheduling.RecurrenceRangeError
		pe *scheduling.InvalidRecurrencePatternError
		ce *scheduling.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error(), Field: ve.Field})
	case errors.As(err, &re):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: re.Error(), Field: "recurrence_end_date"})
	case errors.As(err, &pe):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: pe.Error(), Field: "recurrence_pattern"})
	case errors.As(err, &ce):
		s.writeConflict(w, r, ce)
	case errors.Is(err, service.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, database.ErrNotFound), errors.Is(err, rooms.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrCancellationWindow),
		errors.Is(err, database.ErrConcurrentModification):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrLockTimeout):
		writeError(w, http.StatusServiceUnavailable, "room is busy, try again")
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint, strconv.Itoa(recorder.status))

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", dur).
			Msg("http request")
	})
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type conflictBody struct {
	Error        string         `json:"error"`
	ConflictDate string         `json:"conflict_date"`
	Alternatives []*models.Room `json:"alternatives"`
}

// writeConflict reports the first conflicting date together with the rooms
// that are free for that occurrence.
func (s *HTTPServer) writeConflict(w http.ResponseWriter, r *http.Request, ce *scheduling.ConflictError) {
	body := conflictBody{Error: ce.Error(), ConflictDate: ce.Date(), Alternatives: []*models.Room{}}
	avail, err := s.bookings.CheckAvailability(r.Context(), ce.RoomID, ce.Occurrence)
	if err != nil {
		s.log.Warn().Err(err).Int64("room_id", ce.RoomID).Msg("alternative lookup failed")
	} else if len(avail.Alternatives) > 0 {
		body.Alternatives = avail.Alternatives
	}
	writeJSON(w, http.StatusConflict, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorBody{Error: message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
