package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4" // Echo web framework
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/venue-booking/internal/clock"
	"github.com/iliyamo/venue-booking/internal/config" // Internal config loader
	"github.com/iliyamo/venue-booking/internal/database"
	"github.com/iliyamo/venue-booking/internal/handler"
	"github.com/iliyamo/venue-booking/internal/middleware"
	"github.com/iliyamo/venue-booking/internal/queue"
	"github.com/iliyamo/venue-booking/internal/router" // Internal router setup
	"github.com/iliyamo/venue-booking/internal/service"
	"github.com/iliyamo/venue-booking/internal/worker"
)

func main() {
	cfg := config.Load() // Load environment config
	setupLogging(cfg.LogLevel)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logrus.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			logrus.Fatalf("failed to run migrations: %v", err)
		}
		logrus.Info("schema up to date")
	}

	loc, _ := cfg.Booking.Location() // validated by config.Load
	clk := clock.Real()
	suppressor := service.NewDuplicateSuppressor(cfg.Booking.SuppressionTTL, clk)

	var notifier service.Notifier = service.LogNotifier{}
	if cfg.RabbitURL != "" {
		notifier = service.NewAMQPNotifier(cfg.RabbitURL)
		go func() {
			if err := queue.StartBookingConsumer(ctx, cfg.RabbitURL, queue.DefaultLogPath); err != nil && !errors.Is(err, context.Canceled) {
				logrus.WithError(err).Error("booking consumer stopped")
			}
		}()
		logrus.Info("booking events go to RabbitMQ")
	} else {
		logrus.Warn("RABBITMQ_URL not set, booking events are only logged")
	}
	if kc := config.LoadKafkaConfig(); kc.Enabled() {
		kn := service.NewKafkaNotifier(kc.Brokers, kc.Topic)
		defer kn.Close()
		notifier = service.MultiNotifier{notifier, kn}
		logrus.WithField("topic", kc.Topic).Info("booking events mirrored to Kafka")
	}

	svc := service.NewBookingService(db, suppressor, service.Options{
		SeatLock:       cfg.Booking.SeatLock,
		MaxLockMinutes: cfg.Booking.MaxLockMinutes,
		MaxTickets:     cfg.Booking.MaxTickets,
		Expiry:         service.ExpiryPolicy{Hold: cfg.Booking.OrderHold, Location: loc},
		Pricer:         service.FlatPricer(cfg.Booking.Prices()),
		Notifier:       notifier,
		Clock:          clk,
	})

	sweeper := worker.NewSweeper(db, svc, worker.Schedule{
		SeatLocks:   cfg.Sweep.SeatLockInterval,
		OrderExpiry: cfg.Sweep.OrderExpiryInterval,
		Health:      cfg.Sweep.HealthInterval,
		Deep:        cfg.Sweep.DeepInterval,
		Retention:   cfg.Sweep.Retention,
		BatchSize:   cfg.Sweep.BatchSize,
	}, clk)
	sweeper.Start(ctx)

	guards := router.Guards{JWTSecret: cfg.JWTSecret}
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		logrus.WithError(err).Warn("redis unavailable, rate limiting and caching disabled")
	} else {
		defer rdb.Close()
		guards.RateLimit = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
		guards.Cache = middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(middleware.RequestLogger())
	router.RegisterRoutes(e) // Register application routes
	router.RegisterBooking(e, handler.NewBookingHandler(svc, sweeper), guards)
	router.RegisterVenue(e, handler.NewVenueHandler(db, clk), guards)

	addr := ":" + cfg.Port // Address string with port
	go func() {
		logrus.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("http shutdown")
	}
	sweeper.Wait()
	logrus.WithField("entries", suppressor.Clear()).Info("duplicate suppressor cleared")
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}
