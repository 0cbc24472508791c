package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"prism-todo/todo-api/api"
	"prism-todo/todo-api/storage"
)

const (
	defaultUpdatesChannel = "task-updates"
	requestBodyLimit      = 64 * 1024
)

func main() {
	logger := log.New()
	debug := envBool("DEBUG")
	if debug {
		logger.SetLevel(log.DebugLevel)
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tasksTableName := os.Getenv("TASKS_TABLE")
	eventsQueueName := os.Getenv("TASK_EVENTS_QUEUE")
	if connStr == "" || tasksTableName == "" || eventsQueueName == "" {
		log.Fatal("missing storage config")
	}
	base, err := storage.New(connStr, tasksTableName, eventsQueueName)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := storage.RedisOptions(redisConn)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	rc := redis.NewClient(redisOpts)
	defer rc.Close()

	store := storage.NewCache(base, rc, envDur("TASKS_CACHE_TTL", 10*time.Minute))
	deduper := api.NewRedisDeduper(rc, envDur("DEDUPER_TTL", 24*time.Hour))
	auth := newAuth()

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(envFloat("TRACE_SAMPLE_RATIO", 1)))),
	)
	otel.SetTracerProvider(tp)
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Errorf("tracer shutdown: %v", err)
		}
	}()

	events := api.NewEventPool(base, api.PoolConfig{
		Workers:         envInt("EVENT_WORKERS", api.DefaultPoolConfig().Workers),
		Buffer:          envInt("EVENT_BUFFER", api.DefaultPoolConfig().Buffer),
		PublishTimeout:  envDur("EVENT_PUBLISH_TIMEOUT", api.DefaultPoolConfig().PublishTimeout),
		HandoffTimeout:  envDur("EVENT_HANDOFF_TIMEOUT", api.DefaultPoolConfig().HandoffTimeout),
		PublishAttempts: envInt("EVENT_PUBLISH_ATTEMPTS", api.DefaultPoolConfig().PublishAttempts),
	}, logger)
	defer events.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := api.NewHub()
	updatesChannel := os.Getenv("TASK_UPDATES_CHANNEL")
	if updatesChannel == "" {
		updatesChannel = defaultUpdatesChannel
	}
	go api.SubscribeUpdates(ctx, logger, rc, updatesChannel, store, hub)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(api.RequestBodyMiddleware(requestBodyLimit))
	if debug {
		pprof.Register(e)
	}

	api.Register(e, api.Services{
		Store:   store,
		Auth:    auth,
		Events:  events,
		Deduper: deduper,
		Hub:     hub,
	}, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	go func() {
		if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

func newAuth() *api.Auth {
	if mode := strings.ToLower(os.Getenv("LOCAL_AUTH_MODE")); mode != "" {
		if mode != "hs256" {
			log.Fatalf("unsupported LOCAL_AUTH_MODE value %q", mode)
		}
		secret := os.Getenv("LOCAL_AUTH_SHARED_SECRET")
		if secret == "" {
			log.Fatal("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256")
		}
		return api.NewLocalAuth([]byte(secret), os.Getenv("AUTH0_AUDIENCE"), os.Getenv("LOCAL_AUTH_ISSUER"))
	}

	jwtAudience := os.Getenv("AUTH0_AUDIENCE")
	domain := os.Getenv("AUTH0_DOMAIN")
	if jwtAudience == "" || domain == "" {
		log.Fatal("missing Auth0 config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{RefreshInterval: time.Hour})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, jwtAudience, "https://"+domain+"/", envDur("JWKS_CACHE_TTL", api.DefaultJWKSCacheTTL))
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		log.Fatalf("invalid %s: %q", key, raw)
	}
	return v
}

func envDur(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		log.Fatalf("invalid %s: %q", key, raw)
	}
	return d
}

func envFloat(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		log.Fatalf("invalid %s: %q", key, raw)
	}
	return v
}
