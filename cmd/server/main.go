package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/resource-booking/internal/availability"
	"github.com/iliyamo/resource-booking/internal/config"
	"github.com/iliyamo/resource-booking/internal/database"
	"github.com/iliyamo/resource-booking/internal/handler"
	"github.com/iliyamo/resource-booking/internal/middleware"
	"github.com/iliyamo/resource-booking/internal/queue"
	"github.com/iliyamo/resource-booking/internal/repository"
	"github.com/iliyamo/resource-booking/internal/router"
	"github.com/iliyamo/resource-booking/internal/seed"
	"github.com/iliyamo/resource-booking/internal/service"
	"github.com/iliyamo/resource-booking/internal/validation"
)

func main() {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded")
	}
	cfg := config.Load()
	config.ConfigureLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		log.WithError(err).Fatal("database unavailable")
	}
	defer db.Close()

	if cfg.SeedDB {
		if err := seed.Run(ctx, db, cfg.BcryptCost, time.Now()); err != nil {
			log.WithError(err).Fatal("seeding failed")
		}
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}

	var pub service.Publisher = service.NopPublisher{}
	if cfg.EventsEnabled {
		pub = service.NewAMQPPublisher(cfg.AMQPURL)
	}
	if cfg.EventsConsumerEnabled {
		go func() {
			if err := queue.StartBookingConsumer(ctx, cfg.AMQPURL, cfg.BookingLogPath); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("booking consumer stopped")
			}
		}()
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	types := repository.NewResourceTypeRepo(db)
	resources := repository.NewResourceRepo(db)
	bookings := repository.NewBookingRepo(db)
	engine := availability.New(repository.NewAvailabilityStore(db))
	bookingSvc := service.NewBookingService(bookings, pub)

	e := echo.New()
	e.HideBanner = true
	e.Validator = validation.New()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger())
	e.Use(echomw.BodyLimit("1M"))

	auth := router.Auth{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}
	limit := middleware.NewRateLimiter(cfg.RateLimit, rdb)
	cache := middleware.NewRedisCache(cfg.Cache, rdb, "catalog")

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), auth, limit)
	router.RegisterUsers(e, handler.NewUserHandler(users, cfg.BcryptCost), auth, limit)
	router.RegisterCatalog(e, handler.NewResourceTypeHandler(types), handler.NewResourceHandler(resources), auth, limit, cache)
	router.RegisterBookings(e, handler.NewBookingHandler(bookingSvc, engine), auth, limit)

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(log.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	log.Info("server stopped")
}
