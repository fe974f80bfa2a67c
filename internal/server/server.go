package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/dukerupert/remind/internal/auth"
	"github.com/dukerupert/remind/internal/billing"
	"github.com/dukerupert/remind/internal/categorize"
	"github.com/dukerupert/remind/internal/config"
	"github.com/dukerupert/remind/internal/handler"
	"github.com/dukerupert/remind/internal/middleware"
	"github.com/dukerupert/remind/internal/notify"
	"github.com/dukerupert/remind/internal/notify/push"
	"github.com/dukerupert/remind/internal/realtime"
	"github.com/dukerupert/remind/internal/store"
	"github.com/dukerupert/remind/internal/voice"
	"github.com/dukerupert/remind/internal/web"
)

// Stores groups the persistence layer shared by the server and background
// workers.
type Stores struct {
	Users     *store.UserStore
	Events    *store.EventStore
	Reminders *store.ReminderStore
	Tasks     *store.TaskStore
	Push      *store.PushStore
	History   *store.NotificationLogStore
	Billing   *store.BillingStore
	Backups   *store.BackupStore
	RateLimit *store.RateLimitStore
}

func NewStores(db *sql.DB) Stores {
	return Stores{
		Users:     store.NewUserStore(db),
		Events:    store.NewEventStore(db),
		Reminders: store.NewReminderStore(db),
		Tasks:     store.NewTaskStore(db),
		Push:      store.NewPushStore(db),
		History:   store.NewNotificationLogStore(db),
		Billing:   store.NewBillingStore(db),
		Backups:   store.NewBackupStore(db),
		RateLimit: store.NewRateLimitStore(db),
	}
}

// Services are the long-lived collaborators built in main.
type Services struct {
	Tokens      *auth.Tokens
	Hub         *realtime.Hub
	Categorizer *categorize.Categorizer
	Push        *push.Service
	Dispatcher  *notify.Dispatcher
	Billing     *billing.Client
	Voice       *voice.Service
	Limiter     middleware.Limiter
}

type Server struct {
	cfg      config.Application
	stores   Stores
	services Services

	authH   *handler.AuthHandler
	eventH  *handler.EventHandler
	taskH   *handler.TaskHandler
	voiceH  *handler.VoiceHandler
	notifyH *handler.NotificationHandler
	billH   *handler.BillingHandler
	healthH *handler.HealthHandler
	webH    *web.Handler

	logger *slog.Logger
}

func New(cfg config.Application, db *sql.DB, stores Stores, svc Services, logger *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		stores:   stores,
		services: svc,
		authH:    handler.NewAuthHandler(stores.Users, svc.Tokens, cfg.Auth.CookieSecure, logger.With("component", "auth")),
		eventH: handler.NewEventHandler(stores.Events, stores.Reminders, stores.Users, svc.Categorizer, svc.Hub,
			logger.With("component", "event")),
		taskH:  handler.NewTaskHandler(stores.Tasks, svc.Hub, logger.With("component", "task")),
		voiceH: handler.NewVoiceHandler(svc.Voice, stores.Users, svc.Categorizer, logger.With("component", "voice")),
		notifyH: handler.NewNotificationHandler(svc.Dispatcher, svc.Push, stores.Push, stores.History, stores.Users,
			logger.With("component", "notify")),
		billH: handler.NewBillingHandler(svc.Billing, billing.NewProcessor(stores.Users, stores.Billing, logger.With("component", "stripe")),
			stores.Billing, stores.Users, logger.With("component", "billing")),
		healthH: handler.NewHealthHandler(db),
		webH:    web.NewHandler(svc.Push.VAPIDPublicKey(), logger.With("component", "web")),
		logger:  logger,
	}
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()
	rl := s.cfg.RateLimit

	// Public routes
	s.webH.Register(outerMux)
	outerMux.HandleFunc("GET /health", s.healthH.Health)
	outerMux.Handle("POST /api/auth/register", s.limit("register", middleware.ByIP, rl.LoginLimit, s.authH.Register))
	outerMux.Handle("POST /api/auth/login", s.limit("login", middleware.ByIP, rl.LoginLimit, s.authH.Login))
	outerMux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	outerMux.HandleFunc("POST /webhooks/stripe", s.billH.Webhook)

	// Protected routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.services.Tokens, s.stores.Users)
	outerMux.Handle("/api/", authMiddleware(protectedMux))
	outerMux.Handle("GET /ws", authMiddleware(protectedMux))

	h := middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
	if s.cfg.Server.TrustProxyHeaders {
		h = middleware.ProxyHeaders(h)
	}
	return h
}

// limit wraps h in a rate limit keyed by keyFunc(prefix).
func (s *Server) limit(prefix string, keyFunc func(string) func(*http.Request) string, n int, h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.services.Limiter, keyFunc(prefix), n, s.cfg.RateLimit.Window)(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	rl := s.cfg.RateLimit

	// Account
	mux.HandleFunc("GET /api/me", s.authH.Me)
	mux.HandleFunc("PUT /api/me/settings", s.authH.UpdateSettings)

	// Events and reminders
	mux.HandleFunc("GET /api/events", s.eventH.List)
	mux.HandleFunc("POST /api/events", s.eventH.Create)
	mux.HandleFunc("GET /api/events/occurrences", s.eventH.Occurrences)
	mux.HandleFunc("GET /api/events/{id}", s.eventH.Get)
	mux.HandleFunc("PUT /api/events/{id}", s.eventH.Update)
	mux.HandleFunc("DELETE /api/events/{id}", s.eventH.Delete)
	mux.HandleFunc("GET /api/events/{id}/reminders", s.eventH.ListReminders)
	mux.HandleFunc("POST /api/events/{id}/reminders", s.eventH.CreateReminder)
	mux.HandleFunc("DELETE /api/reminders/{id}", s.eventH.DeleteReminder)

	// Tasks
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("POST /api/tasks", s.taskH.Create)
	mux.HandleFunc("PUT /api/tasks/{id}", s.taskH.Update)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.taskH.Delete)

	// Voice capture and categorization
	mux.HandleFunc("POST /api/voice/parse", s.voiceH.Parse)
	mux.Handle("POST /api/voice/capture", s.limit("voice", middleware.ByUser, rl.VoiceLimit, s.voiceH.Capture))
	mux.HandleFunc("POST /api/categorize", s.voiceH.Categorize)

	// Notifications
	mux.Handle("POST /api/notifications/email", s.limit("notify", middleware.ByUser, rl.NotifyLimit, s.notifyH.SendEmail))
	mux.Handle("POST /api/notifications/push", s.limit("notify", middleware.ByUser, rl.NotifyLimit, s.notifyH.SendPush))
	mux.Handle("POST /api/notifications/sms", middleware.RequirePro(s.limit("notify", middleware.ByUser, rl.NotifyLimit, s.notifyH.SendSMS)))
	mux.HandleFunc("GET /api/notifications", s.notifyH.History)
	mux.HandleFunc("GET /api/push/vapid-key", s.notifyH.VAPIDKey)
	mux.HandleFunc("POST /api/push/subscribe", s.notifyH.Subscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.notifyH.ListSubscriptions)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.notifyH.DeleteSubscription)

	// Billing
	mux.HandleFunc("POST /api/billing/checkout", s.billH.Checkout)
	mux.HandleFunc("POST /api/billing/portal", s.billH.Portal)
	mux.HandleFunc("POST /api/billing/cancel", s.billH.Cancel)

	// WebSocket
	mux.HandleFunc("GET /ws", realtime.Handler(s.services.Hub, originPatterns(s.cfg.Server.BaseURL), s.logger.With("component", "websocket")))
}

// originPatterns allows the configured public host to open websockets in
// addition to same-origin requests.
func originPatterns(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
