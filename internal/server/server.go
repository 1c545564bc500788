package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/volunteerd/internal/events"
	"github.com/dukerupert/volunteerd/internal/handler"
	"github.com/dukerupert/volunteerd/internal/middleware"
	"github.com/dukerupert/volunteerd/internal/store"
	ws "github.com/dukerupert/volunteerd/internal/websocket"
)

// Config carries the dependencies and tunables the server does not build
// itself.
type Config struct {
	Tokens         middleware.TokenVerifier
	Mailer         handler.Mailer
	Publishers     []events.Publisher
	RSVPRateLimit  int
	RSVPRateWindow time.Duration
	OriginPatterns []string
	// VAPID is nil when push reminders are disabled.
	VAPID handler.VAPIDKeySource
}

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	events        events.Publisher
	notifier      *handler.Notifier
	opportunities *store.OpportunityStore
	opportunityH  *handler.OpportunityHandler
	rsvpH         *handler.RSVPHandler
	hoursH        *handler.HoursHandler
	skillH        *handler.CatalogHandler
	interestH     *handler.CatalogHandler
	volunteerH    *handler.VolunteerHandler
	pushStore     *store.PushStore
	pushH         *handler.PushHandler
	rateLimiter   *middleware.RateLimiter
	cfg           Config
	logger        *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	pub := events.NewFanout(logger.With("component", "events"), append([]events.Publisher{hub}, cfg.Publishers...)...)

	opportunityStore := store.NewOpportunityStore(db)
	rsvpStore := store.NewRSVPStore(db)
	hourStore := store.NewHourStore(db)
	volunteerStore := store.NewVolunteerStore(db)
	skillStore := store.NewSkillStore(db)
	interestStore := store.NewInterestStore(db)
	pushStore := store.NewPushStore(db)

	notifier := handler.NewNotifier(cfg.Mailer, volunteerStore, logger.With("component", "email"))

	if cfg.RSVPRateLimit <= 0 {
		cfg.RSVPRateLimit = 30
	}
	if cfg.RSVPRateWindow <= 0 {
		cfg.RSVPRateWindow = time.Minute
	}

	return &Server{
		db:            db,
		hub:           hub,
		events:        pub,
		notifier:      notifier,
		opportunities: opportunityStore,
		opportunityH:  handler.NewOpportunityHandler(opportunityStore, rsvpStore, skillStore, interestStore, pub, notifier, logger),
		rsvpH:         handler.NewRSVPHandler(rsvpStore, opportunityStore, pub, notifier, logger),
		hoursH:        handler.NewHoursHandler(hourStore, pub, logger),
		skillH:        handler.NewCatalogHandler(skillStore, "skills", logger),
		interestH:     handler.NewCatalogHandler(interestStore, "interests", logger),
		volunteerH:    handler.NewVolunteerHandler(volunteerStore, hourStore, logger),
		pushStore:     pushStore,
		pushH:         handler.NewPushHandler(pushStore, cfg.VAPID, logger),
		rateLimiter:   middleware.NewRateLimiter(),
		cfg:           cfg,
		logger:        logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Opportunities returns the opportunity store for the completion sweep.
func (s *Server) Opportunities() *store.OpportunityStore {
	return s.opportunities
}

// PushSubscriptions returns the push store for the reminder loop.
func (s *Server) PushSubscriptions() *store.PushStore {
	return s.pushStore
}

// Events returns the publisher every domain change goes through.
func (s *Server) Events() events.Publisher {
	return s.events
}

// Shutdown waits for background email to finish.
func (s *Server) Shutdown() {
	s.notifier.Wait()
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Browsers cannot set headers on a WebSocket, so /ws also takes ?access_token=.
	feed := ws.HandleWebSocket(s.hub, s.cfg.OriginPatterns, s.logger.With("component", "websocket"))
	outerMux.Handle("GET /ws", middleware.TokenFromQuery(middleware.RequireAuth(s.cfg.Tokens)(feed)))

	// Everything under /api/ requires a bearer token
	apiMux := http.NewServeMux()
	s.registerAPIRoutes(apiMux)
	outerMux.Handle("/api/", middleware.RequireAuth(s.cfg.Tokens)(apiMux))

	logger := s.logger.With("component", "http")
	return middleware.RequestLogger(logger)(middleware.Recoverer(logger)(outerMux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

func staff(h http.HandlerFunc) http.Handler {
	return middleware.RequireStaff(h)
}

func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.ByUser, s.cfg.RSVPRateLimit, s.cfg.RSVPRateWindow)(h)
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	// Opportunities
	mux.HandleFunc("GET /api/opportunities", s.opportunityH.List)
	mux.HandleFunc("GET /api/opportunities/{id}", s.opportunityH.Get)
	mux.Handle("POST /api/opportunities", staff(s.opportunityH.Create))
	mux.Handle("POST /api/opportunities/recurring", staff(s.opportunityH.CreateRecurring))
	mux.Handle("PUT /api/opportunities/{id}", staff(s.opportunityH.Update))
	mux.Handle("DELETE /api/opportunities/{id}", staff(s.opportunityH.Delete))
	mux.Handle("POST /api/opportunities/{id}/cancel", staff(s.opportunityH.Cancel))
	mux.Handle("DELETE /api/series/{series_id}", staff(s.opportunityH.DeleteSeries))
	mux.Handle("POST /api/recurrence/preview", staff(handler.PreviewRecurrence(s.logger)))

	// RSVPs
	mux.Handle("POST /api/opportunities/{id}/rsvp", s.rateLimited(s.rsvpH.Signup))
	mux.Handle("DELETE /api/opportunities/{id}/rsvp", s.rateLimited(s.rsvpH.Cancel))
	mux.Handle("GET /api/opportunities/{id}/rsvps", staff(s.rsvpH.ListForOpportunity))
	mux.Handle("PUT /api/opportunities/{id}/rsvps/{volunteer_id}", staff(s.rsvpH.MarkAttendance))
	mux.HandleFunc("GET /api/me/rsvps", s.rsvpH.ListMine)

	// Hours
	mux.HandleFunc("POST /api/hours", s.hoursH.Log)
	mux.HandleFunc("GET /api/me/hours", s.hoursH.ListMine)
	mux.Handle("POST /api/hours/{id}/verify", staff(s.hoursH.Verify))

	// Catalog
	mux.HandleFunc("GET /api/skills", s.skillH.List)
	mux.Handle("POST /api/skills", staff(s.skillH.Create))
	mux.Handle("DELETE /api/skills/{id}", staff(s.skillH.Delete))
	mux.HandleFunc("GET /api/interests", s.interestH.List)
	mux.Handle("POST /api/interests", staff(s.interestH.Create))
	mux.Handle("DELETE /api/interests/{id}", staff(s.interestH.Delete))

	// Volunteer profiles
	mux.Handle("GET /api/volunteers", staff(s.volunteerH.List))
	mux.Handle("POST /api/volunteers", staff(s.volunteerH.Create))
	mux.Handle("GET /api/volunteers/{id}", staff(s.volunteerH.Get))

	// Push reminders
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	mux.HandleFunc("GET /api/me/push-subscriptions", s.pushH.ListMine)
	mux.HandleFunc("POST /api/me/push-subscriptions", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/me/push-subscriptions", s.pushH.Unsubscribe)
}
