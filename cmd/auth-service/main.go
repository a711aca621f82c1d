package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/axconkr/ai-marketplace/auth-service/internal/config"
	"github.com/axconkr/ai-marketplace/auth-service/internal/ratelimit"
	"github.com/axconkr/ai-marketplace/auth-service/internal/service"
	"github.com/axconkr/ai-marketplace/auth-service/internal/storage"
	"github.com/axconkr/ai-marketplace/auth-service/internal/storage/postgres"
	authhttp "github.com/axconkr/ai-marketplace/auth-service/internal/transport/http"
	"github.com/axconkr/ai-marketplace/auth-service/internal/transport/http/handlers"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// Подключение к БД c таймаутом.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, err := postgres.New(dbCtx, cfg.DB.DatabaseURL)
	dbCancel()
	if err != nil {
		log.Error("postgres_connect_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}
	log.Info("postgres_connected")

	// Сервис.
	srvc, err := service.New(str, cfg.Auth)
	if err != nil {
		log.Error("service_init_failed", slog.String("err", err.Error()))
		rootCancel()
		str.Close()
		os.Exit(1)
	}
	log.Info("service_initialized")

	// Rate-limit счётчики: Redis (общий для реплик) либо in-memory (dev).
	loginLimit, registerLimit, closeLimiter := setupLimiters(rootCtx, cfg, log)

	var ready int32 // 0 — not ready; 1 — ready
	opsAddr := cfg.Ops.Addr()

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.LoadInt32(&ready) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	mux.Handle("/metrics", promhttp.Handler())

	opsSrv := &http.Server{
		Addr:              opsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("ops_listen_start", "addr", opsAddr)
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops_serve_failed", slog.String("err", err.Error()))
		}
	}()

	// API-сервер.
	h := handlers.New(srvc, loginLimit, registerLimit, handlers.Options{
		RefreshTTL:   cfg.Auth.RefreshTokenTTL,
		SecureCookie: cfg.Env == envProd,
	})

	router := authhttp.NewRouter(h, srvc, authhttp.Options{
		Logger:  log,
		Timeout: cfg.Timeouts.Service,
	})

	apiAddr := cfg.HTTP.Addr()
	apiSrv := &http.Server{
		Addr:              apiAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Фоновая очистка просроченных refresh-токенов.
	startRefreshJanitor(rootCtx, str, log, 30*time.Minute)

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("http_listen_start", slog.String("addr", apiAddr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	// Graceful stop с таймаутом.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	// Грейсфул остановка служебного сервера.
	_ = opsSrv.Shutdown(context.Background())

	// Явная очистка перед выходом.
	shutdownCancel()
	rootCancel()
	closeLimiter()
	str.Close()

	log.Info("service_stopped")
	os.Exit(0)
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// setupLimiters собирает лимитеры логина/регистрации.
// При заданном REDIS_URL счётчики живут в Redis и разделяются между
// репликами; пустой URL — процесс-локальные счётчики (только dev).
func setupLimiters(ctx context.Context, cfg *config.Config, log *slog.Logger) (login, register ratelimit.Limiter, closeFn func()) {
	loginCfg := cfg.RateLimit.LoginLimit()
	registerCfg := cfg.RateLimit.RegisterLimit()

	if cfg.Redis.RedisURL == "" {
		log.Warn("rate_limit_in_memory: budgets are per-replica")

		loginMem := ratelimit.NewMemoryLimiter(loginCfg.MaxAttempts, loginCfg.Window)
		registerMem := ratelimit.NewMemoryLimiter(registerCfg.MaxAttempts, registerCfg.Window)
		startLimiterJanitor(ctx, 10*time.Minute, loginMem, registerMem)

		return loginMem, registerMem, func() {}
	}

	rdb, err := ratelimit.NewRedisClient(ctx, cfg.Redis.RedisURL)
	if err != nil {
		log.Error("redis_connect_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("redis_connected")

	// Ключи уже различаются префиксами login:/register: на стороне хендлеров.
	login = ratelimit.NewRedisLimiter(rdb, "auth:rl:", loginCfg.MaxAttempts, loginCfg.Window)
	register = ratelimit.NewRedisLimiter(rdb, "auth:rl:", registerCfg.MaxAttempts, registerCfg.Window)

	return login, register, func() { _ = rdb.Close() }
}

// startRefreshJanitor запускает фоновую задачу, которая периодически удаляет
// просроченные refresh-токены из хранилища с помощью storage.DeleteExpiredTokens.
func startRefreshJanitor(ctx context.Context, storage storage.Storage, log *slog.Logger, period time.Duration) {
	if period <= 0 {
		return
	}

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := storage.DeleteExpiredTokens(ctx, time.Now().UTC()); err != nil {
					log.Error("refresh_janitor_failed", slog.String("err", err.Error()))
				}
			}
		}
	}()
}

// startLimiterJanitor периодически выбрасывает истёкшие in-memory корзины.
func startLimiterJanitor(ctx context.Context, period time.Duration, limiters ...*ratelimit.MemoryLimiter) {
	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				for _, l := range limiters {
					l.Prune(time.Now().UTC())
				}
			}
		}
	}()
}
