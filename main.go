package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	config "github.com/Keoroanthony/go-storefront/configs"
	"github.com/Keoroanthony/go-storefront/internal/auth"
	"github.com/Keoroanthony/go-storefront/internal/cart"
	"github.com/Keoroanthony/go-storefront/internal/catalog"
	"github.com/Keoroanthony/go-storefront/internal/db"
	"github.com/Keoroanthony/go-storefront/internal/events"
	"github.com/Keoroanthony/go-storefront/internal/handlers"
	"github.com/Keoroanthony/go-storefront/internal/jobs"
	"github.com/Keoroanthony/go-storefront/internal/logging"
	"github.com/Keoroanthony/go-storefront/internal/notifier"
	"github.com/Keoroanthony/go-storefront/internal/orders"
	"github.com/Keoroanthony/go-storefront/internal/reports"
	"github.com/Keoroanthony/go-storefront/internal/reviews"
	"github.com/Keoroanthony/go-storefront/internal/sales"
)

const (
	sweepWorkers    = 8
	notificationTTL = 30 * 24 * time.Hour
	guestCartTTL    = 14 * 24 * time.Hour
)

func main() {
	configPath := flag.String("config", os.Getenv("STOREFRONT_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log, err := logging.New(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("storefront stopped", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Open(cfg.Database, log)
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb); err != nil {
		return err
	}

	store := catalog.NewStore(gdb)
	holder, closeHolder, err := cartHolder(ctx, cfg, gdb, log)
	if err != nil {
		return err
	}
	defer closeHolder()
	carts := cart.NewService(holder, store).WithLogger(log)

	// ── events ──
	bus := events.NewBus(log)
	if cfg.AMQP.URL != "" {
		conn, ch, err := events.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := events.NewForwarder(ch, cfg.AMQP.Exchange, log).Attach(bus); err != nil {
			return err
		}
	}
	// drain handlers before the broker connection closes
	defer bus.Wait()

	// ── notifications ──
	var mailer notifier.Mailer
	if cfg.Email.SenderEmail != "" {
		if mailer, err = notifier.NewMailer(ctx, cfg.Email, log); err != nil {
			return err
		}
	} else {
		log.Warn("email disabled, no sender address configured")
	}
	var sms notifier.SMSSender
	if cfg.SMS.APIKey != "" {
		sms = notifier.NewAfricasTalking(cfg.SMS, log)
	} else {
		log.Warn("SMS disabled, no API key configured")
	}
	notify := notifier.New(notifier.NewStore(gdb), mailer, sms, cfg.Shop, log)
	if err := notify.Register(bus); err != nil {
		return err
	}
	sweeper, err := notifier.NewSweeper(notify, store, sweepWorkers, log)
	if err != nil {
		return err
	}
	defer sweeper.Close()

	// ── domain services ──
	orderSvc, err := orders.NewService(gdb, store, holder, cfg.Shop, bus, log)
	if err != nil {
		return err
	}

	authSvc := auth.New(gdb, cfg.Shop, carts, log)
	if cfg.OIDC.Issuer != "" {
		if err := authSvc.Connect(ctx, cfg.OIDC); err != nil {
			return err
		}
	} else {
		log.Warn("OIDC issuer not configured, login disabled")
	}

	h := &handlers.Handler{
		Catalog:           store,
		Carts:             carts,
		Orders:            orderSvc,
		Sales:             sales.NewStore(gdb),
		Reports:           reports.NewService(gdb),
		Reviews:           reviews.NewService(gdb, bus),
		Notifications:     notify.Store(),
		Sweeper:           sweeper,
		Auth:              authSvc,
		Log:               log,
		LowStockThreshold: cfg.Shop.LowStockThreshold,
	}
	if cfg.Server.CheckoutRate > 0 {
		if h.CheckoutLimit, err = handlers.NewRateLimiter(cfg.Server.CheckoutRate, cfg.Server.CheckoutBurst, 10000); err != nil {
			return err
		}
	}

	// ── background jobs ──
	scheduler := jobs.NewScheduler(log)
	if cfg.Shop.LowStockSchedule != "" {
		err := scheduler.Add("low-stock-sweep", cfg.Shop.LowStockSchedule, func(ctx context.Context) error {
			_, err := sweeper.Run(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}
	if err := scheduler.Add("prune-notifications", "@daily", jobs.PruneReadNotifications(gdb, notificationTTL)); err != nil {
		return err
	}
	if err := scheduler.Add("prune-guest-carts", "@daily", jobs.PruneGuestCarts(gdb, guestCartTTL)); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	// ── http ──
	if cfg.Logger.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(log))

	// ── session store ──
	sessionStore := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	sessionStore.Options(sessions.Options{Path: "/", MaxAge: 7 * 24 * 3600, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(auth.SessionName, sessionStore))

	h.Register(r)

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("storefront listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// cartHolder picks the cart backend named in the shop config.
func cartHolder(ctx context.Context, cfg *config.AppConfig, gdb *gorm.DB, log *zap.Logger) (cart.Holder, func(), error) {
	if cfg.Shop.CartBackend != "redis" {
		return cart.NewGormHolder(gdb), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	log.Info("cart backend: redis", zap.String("addr", cfg.Redis.Addr))
	return cart.NewRedisHolder(client), func() { _ = client.Close() }, nil
}
