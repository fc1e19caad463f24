package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bete/backend/internal/middleware"
	"github.com/bete/backend/internal/models"
)

// RouterConfig collects the handlers and options the API is served with.
// WS, UploadDir and Health are optional.
type RouterConfig struct {
	Tokens middleware.TokenParser

	Auth       *AuthHandler
	Users      *UserHandler
	Accounts   *AccountHandler
	Properties *PropertyHandler
	Favorites  *FavoriteHandler
	Images     *ImageHandler
	Chats      *ChatHandler
	Rentals    *RentalHandler
	Reminders  *ReminderHandler
	Devices    *DeviceHandler

	WS        http.HandlerFunc
	UploadDir string
	Health    func(ctx context.Context) error

	AllowedOrigins []string
	// AuthRateLimit is requests per minute per IP on signup and login. Zero disables it.
	AuthRateLimit  int
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Health(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, models.NewErrorResponse(models.ErrTagInternal))
				return
			}
		}
		writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]string{"status": "ok"}))
	})
	r.Handle("/metrics", promhttp.Handler())

	if cfg.UploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))
	}
	if cfg.WS != nil {
		r.Get("/ws", cfg.WS)
	}

	authLimit := rateLimit(cfg.AuthRateLimit)
	requireAuth := middleware.JWTAuth(cfg.Tokens)

	// Paths the first mobile release used.
	r.With(authLimit).Post("/signup", cfg.Auth.Register)
	r.With(authLimit).Post("/login", cfg.Auth.Login)
	r.With(requireAuth).Get("/me", cfg.Users.Me)

	r.Route("/api", func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
		}

		r.Group(func(r chi.Router) {
			r.Use(authLimit)
			r.Post("/auth/register", cfg.Auth.Register)
			r.Post("/auth/login", cfg.Auth.Login)
		})

		r.Get("/properties", cfg.Properties.List)
		r.Get("/properties/bounds", cfg.Properties.InBounds)
		r.Get("/properties/{id}", cfg.Properties.Get)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/users/me", cfg.Users.Me)
			r.Put("/users/me", cfg.Users.UpdateMe)
			if cfg.Accounts != nil {
				r.Delete("/users/me", cfg.Accounts.DeleteMe)
			}

			r.Post("/properties", cfg.Properties.Create)
			r.Put("/properties/{id}", cfg.Properties.Update)
			r.Delete("/properties/{id}", cfg.Properties.Delete)

			r.Route("/favorites", func(r chi.Router) {
				r.Get("/", cfg.Favorites.ListFavorites)
				r.Get("/properties", cfg.Favorites.ListFavoriteProperties)
				r.Post("/{propertyId}/toggle", cfg.Favorites.Toggle)
				r.Post("/{propertyId}", cfg.Favorites.AddFavorite)
				r.Delete("/{propertyId}", cfg.Favorites.RemoveFavorite)
			})

			r.Post("/upload", cfg.Images.UploadMany)
			r.Post("/upload/image", cfg.Images.Upload)
			r.Delete("/upload/{imageId}", cfg.Images.Delete)

			r.Route("/chats", func(r chi.Router) {
				r.Get("/", cfg.Chats.List)
				r.Post("/", cfg.Chats.Open)
				r.Get("/{id}/messages", cfg.Chats.Messages)
				r.Post("/{id}/messages", cfg.Chats.Send)
				r.Post("/{id}/read", cfg.Chats.MarkRead)
			})

			r.Route("/rentals", func(r chi.Router) {
				r.Post("/", cfg.Rentals.Create)
				r.Get("/mine", cfg.Rentals.Mine)
				r.Post("/invites/{code}/accept", cfg.Rentals.AcceptInvite)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", cfg.Rentals.Get)
					r.Post("/end", cfg.Rentals.End)
					r.Post("/pay", cfg.Rentals.Pay)
					r.Get("/payments", cfg.Rentals.Payments)
					r.Get("/reminders", cfg.Rentals.Reminders)
					r.Post("/reminders", cfg.Rentals.AddReminder)
					r.Post("/remind", cfg.Rentals.Remind)
					r.Get("/invites", cfg.Rentals.Invites)
					r.Post("/invites", cfg.Rentals.CreateInvite)
				})
			})

			r.Route("/reminders", func(r chi.Router) {
				r.Get("/", cfg.Reminders.List)
				r.Post("/", cfg.Reminders.Create)
				r.Post("/import", cfg.Reminders.Import)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", cfg.Reminders.Get)
					r.Put("/", cfg.Reminders.Update)
					r.Patch("/", cfg.Reminders.Update)
					r.Delete("/", cfg.Reminders.Delete)
					r.Post("/pay", cfg.Reminders.Pay)
				})
			})

			r.Post("/devices", cfg.Devices.Register)
			r.Delete("/devices/{token}", cfg.Devices.Delete)
		})
	})

	return r
}

func rateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, models.ErrTagRateLimited)
		}),
	)
}
