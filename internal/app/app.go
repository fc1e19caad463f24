// Package app builds the service graph from configuration and hands the
// binaries in cmd/ a ready router, chat hub and reminder sweeper.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"github.com/bete/backend/internal/config"
	"github.com/bete/backend/internal/handlers"
	"github.com/bete/backend/internal/logging"
	"github.com/bete/backend/internal/services"
	"github.com/bete/backend/internal/storage"
	"github.com/bete/backend/internal/websocket"
)

type App struct {
	Config *config.Config
	DB     *gorm.DB
	Mongo  *mongo.Client
	Cycle  services.Cycle

	Users      *services.UserService
	Tokens     *services.TokenIssuer
	Properties *services.PropertyService
	Favorites  services.FavoriteService
	Chats      services.ChatService
	Devices    *services.DeviceService
	Pusher     *services.Pusher
	Rentals    *services.RentalService
	Reminders  *services.ReminderService
	Images     *services.ImageService
	Moderation *services.ModerationService
	Strikes    *services.StrikeService
	Accounts   *services.AccountService

	Hub     *websocket.Hub
	Sweeper *services.ReminderSweeper

	closers []func() error
}

// New opens every backing store named in cfg. Optional backends (Mongo,
// AMQP, FCM, GCS, SendGrid, reCAPTCHA) are only dialed when configured.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	loc, err := cfg.Reminders.Location()
	if err != nil {
		return fmt.Errorf("reminders timezone: %w", err)
	}
	a.Cycle = services.Cycle{
		Rollover:  cfg.Reminders.Rollover,
		CycleDays: cfg.Reminders.CycleDays,
		Location:  loc,
	}

	db, err := storage.OpenDatabase(ctx, storage.DatabaseOptions{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
		Debug:  cfg.Database.Debug,
	})
	if err != nil {
		return err
	}
	a.DB = db
	a.closers = append(a.closers, func() error { return storage.Close(db) })

	var mongoDB *mongo.Database
	if cfg.Mongo.URI != "" {
		client, database, err := storage.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return err
		}
		a.Mongo, mongoDB = client, database
		a.closers = append(a.closers, func() error { return client.Disconnect(context.Background()) })
		logging.Info().Str("database", cfg.Mongo.Database).Msg("chats and favorites use mongo")
	}

	cache := services.NewPropertyCache(cfg.Cache.LocalSize, cfg.Cache.PropertyTTL, cfg.Cache.MemcachedAddrs)
	a.closers = append(a.closers, func() error { cache.Stop(); return nil })

	var events services.EventPublisher = services.NoopPublisher{}
	if cfg.Events.AMQPURL != "" {
		pub, err := services.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Queue)
		if err != nil {
			// Property writes must not depend on the broker being up.
			logging.Warn().Err(err).Msg("amqp unavailable, property events disabled")
		} else {
			events = pub
			a.closers = append(a.closers, pub.Close)
		}
	}

	a.Users = services.NewUserService(db)
	a.Tokens = services.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration)
	a.Properties = services.NewPropertyService(db, cache, events)

	if mongoDB != nil {
		a.Favorites = services.NewMongoFavoriteService(ctx, mongoDB, a.Properties)
		a.Chats = services.NewMongoChatService(ctx, mongoDB)
	} else {
		a.Favorites = services.NewGormFavoriteService(db, a.Properties)
		a.Chats = services.NewGormChatService(db)
	}

	a.Devices = services.NewDeviceService(db)
	var notifier services.Notifier
	if cfg.Firebase.Enabled() {
		fcm, err := services.NewFCMNotifier(ctx, services.FCMConfig{
			ProjectID:       cfg.Firebase.ProjectID,
			CredentialsJSON: cfg.Firebase.CredentialsJSON,
			CredentialsFile: cfg.Firebase.CredentialsFile,
		})
		if err != nil {
			logging.Warn().Err(err).Msg("fcm unavailable, push notifications are logged only")
		} else {
			notifier = fcm
		}
	}
	a.Pusher = services.NewPusher(a.Devices, notifier)

	a.Rentals = services.NewRentalService(db, a.Properties, a.Cycle, a.Pusher)
	a.Reminders = services.NewReminderService(db, a.Cycle)
	a.Sweeper = services.NewReminderSweeper(a.Rentals, a.Reminders, a.Pusher, a.Cycle, cfg.Reminders.SweepInterval)

	blobs, err := a.blobStore(ctx)
	if err != nil {
		return err
	}
	a.Images = services.NewImageService(db, blobs)
	a.Strikes = services.NewStrikeService(db)
	a.Accounts = services.NewAccountService(db, a.Favorites, a.Images, cache)

	a.Hub = websocket.NewHub(a.Chats, a.Tokens, cfg.Server.AllowedOrigins)
	return nil
}

func (a *App) blobStore(ctx context.Context) (services.BlobStore, error) {
	up := a.Config.Uploads
	if up.Backend != "gcs" {
		return services.NewLocalBlobStore(up.Dir, up.PublicBase)
	}
	gcs, err := services.NewGCSBlobStore(ctx, up.Bucket, up.Folder, up.SafeSearch)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, gcs.Close)
	a.Moderation = gcs.Moderation()
	return gcs, nil
}

// Router wires the HTTP handlers over the built services.
func (a *App) Router() http.Handler {
	cfg := a.Config

	var mailer services.InviteMailer
	if m := services.NewSendGridMailer(cfg.SendGrid.APIKey, cfg.SendGrid.FromEmail); m != nil {
		mailer = m
	}

	uploadDir := ""
	if cfg.Uploads.Backend != "gcs" {
		uploadDir = cfg.Uploads.Dir
	}

	return handlers.NewRouter(handlers.RouterConfig{
		Tokens:     a.Tokens,
		Auth:       handlers.NewAuthHandler(a.Users, a.Tokens, services.NewRecaptchaVerifier(cfg.Auth.RecaptchaSecret)),
		Users:      handlers.NewUserHandler(a.Users),
		Accounts:   handlers.NewAccountHandler(a.Accounts),
		Properties: handlers.NewPropertyHandler(a.Properties),
		Favorites:  handlers.NewFavoriteHandler(a.Favorites),
		Images:     handlers.NewImageHandler(a.Images, cfg.Uploads.MaxSizeMB, cfg.Uploads.MaxFiles),
		Chats:      handlers.NewChatHandler(a.Chats, a.Users, a.Hub),
		Rentals:    handlers.NewRentalHandler(a.Rentals, a.Users, a.Properties, mailer),
		Reminders:  handlers.NewReminderHandler(a.Reminders),
		Devices:    handlers.NewDeviceHandler(a.Devices),

		WS:        a.Hub.ServeWS,
		UploadDir: uploadDir,
		Health:    a.Health,

		AllowedOrigins: cfg.Server.AllowedOrigins,
		AuthRateLimit:  cfg.Server.AuthRateLimit,
		RequestTimeout: cfg.Server.RequestTimeout,
	})
}

// Migrate creates or updates the relational schema.
func (a *App) Migrate() error {
	return storage.AutoMigrate(a.DB)
}

// Health pings the relational store and, when used, mongo.
func (a *App) Health(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.Mongo != nil {
		if err := a.Mongo.Ping(ctx, nil); err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
	}
	return nil
}

// Close releases everything New opened, last opened first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
