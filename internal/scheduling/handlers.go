package scheduling

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/medrex/booking/pkg/types"
)

// setupRoutes configures HTTP routes for the scheduling service
func (s *Service) setupRoutes(router *mux.Router) {
	if s.config.Monitoring.Enabled {
		router.Handle(s.config.Monitoring.MetricsPath, s.metrics.Handler()).Methods("GET")
	}
	router.HandleFunc(s.config.Monitoring.HealthPath, s.health.HTTPHandler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.monitor.HTTPMiddleware)
	api.Use(s.auth.Middleware(s.writeErrorResponse))
	if s.limiter != nil {
		api.Use(s.limiter.Middleware(s.writeErrorResponse))
	}

	// Availability
	api.HandleFunc("/availability", s.createAvailabilityHandler).Methods("POST")
	api.HandleFunc("/availability", s.listAvailabilityHandler).Methods("GET")
	api.HandleFunc("/availability/{id}", s.removeAvailabilityHandler).Methods("DELETE")

	// Doctor views
	api.HandleFunc("/doctors/{doctorId}/calendar", s.getCalendarHandler).Methods("GET")
	api.HandleFunc("/doctors/{doctorId}/booked-slots", s.getBookedSlotsHandler).Methods("GET")
	api.HandleFunc("/doctors/{doctorId}/bookings", s.listDoctorBookingsHandler).Methods("GET")

	// Bookings
	api.HandleFunc("/bookings", s.createBookingHandler).Methods("POST")
	api.HandleFunc("/bookings/{id}", s.getBookingHandler).Methods("GET")
	api.HandleFunc("/bookings/{id}/accept", s.transitionHandler(types.ActionAccept)).Methods("POST")
	api.HandleFunc("/bookings/{id}/reject", s.transitionHandler(types.ActionReject)).Methods("POST")
	api.HandleFunc("/bookings/{id}/cancel", s.transitionHandler(types.ActionCancel)).Methods("POST")

	// Patient views
	api.HandleFunc("/patients/{patientId}/bookings", s.listPatientBookingsHandler).Methods("GET")

	s.logger.WithComponent("http").Debug("Scheduling service routes configured")
}

type createAvailabilityRequest struct {
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type windowResponse struct {
	ID        string    `json:"id"`
	DoctorID  string    `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
}

type bookingResponse struct {
	ID        string              `json:"id"`
	DoctorID  string              `json:"doctor_id"`
	PatientID string              `json:"patient_id"`
	Date      string              `json:"date"`
	StartTime string              `json:"start_time"`
	EndTime   string              `json:"end_time"`
	Duration  int                 `json:"duration"`
	Status    types.BookingStatus `json:"status"`
	Reason    string              `json:"reason,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func toWindowResponse(w *types.AvailabilityWindow) windowResponse {
	return windowResponse{
		ID:        w.ID,
		DoctorID:  w.DoctorID,
		Date:      w.Date,
		StartTime: w.Range.StartClock(),
		EndTime:   w.Range.EndClock(),
		CreatedAt: w.CreatedAt,
	}
}

func toBookingResponse(b *types.Booking) bookingResponse {
	return bookingResponse{
		ID:        b.ID,
		DoctorID:  b.DoctorID,
		PatientID: b.PatientID,
		Date:      b.Date,
		StartTime: b.Range.StartClock(),
		EndTime:   b.Range.EndClock(),
		Duration:  b.Duration,
		Status:    b.Status,
		Reason:    b.Reason,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

func toBookingResponses(bookings []*types.Booking) []bookingResponse {
	out := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingResponse(b))
	}
	return out
}

// createAvailabilityHandler handles window creation
func (s *Service) createAvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	var req createAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, r, types.NewError(types.ErrInvalidInput, "invalid request body"))
		return
	}
	if req.DoctorID == "" {
		req.DoctorID = actor.ID
	}

	window, err := s.engine.CreateAvailability(r.Context(), actor, req.DoctorID, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, toWindowResponse(window))
}

// listAvailabilityHandler handles window queries
func (s *Service) listAvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.AvailabilityFilter{
		DoctorID: q.Get("doctor_id"),
		Date:     q.Get("date"),
		FromDate: q.Get("from"),
		ToDate:   q.Get("to"),
	}

	windows, err := s.engine.ListAvailability(r.Context(), filter)
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}

	out := make([]windowResponse, 0, len(windows))
	for _, win := range windows {
		out = append(out, toWindowResponse(win))
	}
	s.writeJSONResponse(w, http.StatusOK, out)
}

// removeAvailabilityHandler handles window deletion
func (s *Service) removeAvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	if err := s.engine.RemoveAvailability(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// getCalendarHandler projects a doctor's calendar for the caller
func (s *Service) getCalendarHandler(w http.ResponseWriter, r *http.Request) {
	viewer, _ := ActorFromContext(r.Context())
	q := r.URL.Query()

	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		s.writeErrorResponse(w, r, types.NewError(types.ErrInvalidInput, "from and to are required"))
		return
	}

	var opts types.CalendarOptions
	if g := q.Get("granularity"); g != "" {
		parsed, err := strconv.Atoi(g)
		if err != nil {
			s.writeErrorResponse(w, r, types.NewError(types.ErrInvalidInput, "granularity must be an integer"))
			return
		}
		opts.Granularity = parsed
	}
	if inc := q.Get("include_unavailable"); inc != "" {
		parsed, err := strconv.ParseBool(inc)
		if err != nil {
			s.writeErrorResponse(w, r, types.NewError(types.ErrInvalidInput, "include_unavailable must be a boolean"))
			return
		}
		opts.IncludeUnavailable = parsed
	}

	calendar, err := s.engine.GetCalendar(r.Context(), viewer, mux.Vars(r)["doctorId"], from, to, opts)
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, calendar)
}

// getBookedSlotsHandler lists occupied intervals without patient data
func (s *Service) getBookedSlotsHandler(w http.ResponseWriter, r *http.Request) {
	slots, err := s.engine.GetPublicBookedSlots(r.Context(), mux.Vars(r)["doctorId"], r.URL.Query().Get("date"))
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, slots)
}

// createBookingHandler handles booking requests
func (s *Service) createBookingHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	var req types.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, r, types.NewError(types.ErrInvalidInput, "invalid request body"))
		return
	}

	booking, err := s.engine.CreateBooking(r.Context(), actor, req)
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, toBookingResponse(booking))
}

// getBookingHandler returns a booking to a participant
func (s *Service) getBookingHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	booking, err := s.engine.GetBooking(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, toBookingResponse(booking))
}

// transitionHandler handles accept, reject and cancel
func (s *Service) transitionHandler(action types.BookingAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := s.requireActor(w, r)
		if !ok {
			return
		}

		id := mux.Vars(r)["id"]
		var (
			booking *types.Booking
			err     error
		)
		switch action {
		case types.ActionAccept:
			booking, err = s.engine.AcceptBooking(r.Context(), actor, id)
		case types.ActionReject:
			booking, err = s.engine.RejectBooking(r.Context(), actor, id)
		default:
			booking, err = s.engine.CancelBooking(r.Context(), actor, id)
		}
		if err != nil {
			s.writeErrorResponse(w, r, err)
			return
		}

		s.writeJSONResponse(w, http.StatusOK, toBookingResponse(booking))
	}
}

// listDoctorBookingsHandler lists the bookings of a doctor
func (s *Service) listDoctorBookingsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	bookings, err := s.engine.ListBookingsForDoctor(r.Context(), actor, mux.Vars(r)["doctorId"], parseBookingFilter(r))
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, toBookingResponses(bookings))
}

// listPatientBookingsHandler lists the bookings of a patient
func (s *Service) listPatientBookingsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	bookings, err := s.engine.ListBookingsForPatient(r.Context(), actor, mux.Vars(r)["patientId"], parseBookingFilter(r))
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, toBookingResponses(bookings))
}

// parseBookingFilter reads status (comma separated), date, from and to
func parseBookingFilter(r *http.Request) types.BookingFilter {
	q := r.URL.Query()
	filter := types.BookingFilter{
		Date:     q.Get("date"),
		FromDate: q.Get("from"),
		ToDate:   q.Get("to"),
	}
	if status := q.Get("status"); status != "" {
		for _, s := range strings.Split(status, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.Statuses = append(filter.Statuses, types.BookingStatus(strings.ToUpper(s)))
			}
		}
	}
	return filter
}

// requireActor writes 401 when the request is anonymous
func (s *Service) requireActor(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		s.writeErrorResponse(w, r, types.ErrUnauthenticated)
		return types.Actor{}, false
	}
	return actor, true
}

// writeJSONResponse writes a JSON response
func (s *Service) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithComponent("http").WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse maps err onto a status code and error body
func (s *Service) writeErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	se, ok := types.AsSchedulingError(err)
	if !ok {
		se = types.NewInternalError("internal server error", err)
	}

	status := statusForError(se)
	message := se.Message
	if status >= http.StatusInternalServerError {
		s.logger.WithContext(r.Context()).WithError(err).Error("Request failed")
		message = "internal server error"
	}

	response := map[string]interface{}{
		"error":   se.Code,
		"message": message,
	}
	if len(se.Details) > 0 && status < http.StatusInternalServerError {
		response["details"] = se.Details
	}

	s.writeJSONResponse(w, status, response)
}

// statusForError maps error types onto HTTP status codes
func statusForError(se *types.SchedulingError) int {
	switch se.Type {
	case types.ErrorTypeValidation:
		return http.StatusBadRequest
	case types.ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case types.ErrorTypeAuthorization:
		return http.StatusForbidden
	case types.ErrorTypeNotFound:
		return http.StatusNotFound
	case types.ErrorTypeConflict, types.ErrorTypeState:
		return http.StatusConflict
	case types.ErrorTypeBusinessRule:
		return http.StatusUnprocessableEntity
	case types.ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}
