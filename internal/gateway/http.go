package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/soyeahso/clinicbot/internal/store"
)

// HealthResponse is served by GET /health and the health RPC. The HTTP
// endpoint is unauthenticated and only sets Status.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version,omitempty"`
	Clients       int    `json:"clients,omitempty"`
	Conversations int    `json:"conversations,omitempty"`
	UptimeMs      int64  `json:"uptimeMs,omitempty"`
}

type apiError struct {
	Error string `json:"error"`
	Path  string `json:"path,omitempty"`
}

// Handler serves /health, the /ws endpoint and the bookings REST API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, echoRequestID, requestLogger(s.log.Sub("http")), middleware.Recoverer)
	r.Use(cors(s.cfg.Gateway.ControlUI.AllowedOrigins))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, apiError{Error: "not found", Path: r.URL.Path})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	})
	r.Get("/ws", s.handleWebSocket)
	r.Route("/api/v1/bookings", func(r chi.Router) {
		r.Use(requireBearer(s.auth))
		r.Use(s.requireStore)
		r.Get("/", s.apiListBookings)
		r.Get("/stats", s.apiBookingStats)
		r.Get("/{id}", s.apiGetBooking)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) health() HealthResponse {
	h := HealthResponse{Status: "ok", Version: s.version, Clients: s.hub.count()}
	if s.assistant != nil {
		h.Conversations = len(s.assistant.Conversations())
	}
	if !s.startedAt.IsZero() {
		h.UptimeMs = time.Since(s.startedAt).Milliseconds()
	}
	return h
}

func (s *Server) requireStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.bookings == nil {
			writeJSON(w, http.StatusServiceUnavailable, apiError{Error: "booking store not configured"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) storeFailed(w http.ResponseWriter, err error, what string) {
	s.log.Error().Err(err).Msg(what)
	writeJSON(w, http.StatusInternalServerError, apiError{Error: "store error"})
}

// apiListBookings serves GET /api/v1/bookings. ?q= searches by customer
// name or email; otherwise ?limit= caps the newest-first listing.
func (s *Server) apiListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		list []store.Booking
		err  error
	)
	if term := q.Get("q"); term != "" {
		list, err = s.bookings.Search(r.Context(), term)
	} else {
		limit, convErr := strconv.Atoi(q.Get("limit"))
		switch {
		case q.Get("limit") == "":
			limit = 0
		case convErr != nil || limit < 0:
			writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid limit"})
			return
		}
		list, err = s.bookings.List(r.Context(), limit)
	}
	if err != nil {
		s.storeFailed(w, err, "listing bookings")
		return
	}
	writeJSON(w, http.StatusOK, bookingList{Bookings: nonNil(list)})
}

func (s *Server) apiGetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid booking id"})
		return
	}
	b, err := s.bookings.Get(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, apiError{Error: "booking not found"})
	case err != nil:
		s.storeFailed(w, err, "loading booking")
	default:
		writeJSON(w, http.StatusOK, b)
	}
}

func (s *Server) apiBookingStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.bookings.Stats(r.Context())
	if err != nil {
		s.storeFailed(w, err, "loading booking stats")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type bookingList struct {
	Bookings []store.Booking `json:"bookings"`
}

func nonNil(list []store.Booking) []store.Booking {
	if list == nil {
		return []store.Booking{}
	}
	return list
}
