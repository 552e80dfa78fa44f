package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"posyandu-logistics/config"
	"posyandu-logistics/internal/assignment"
	"posyandu-logistics/internal/auth"
	"posyandu-logistics/internal/dispatch"
	"posyandu-logistics/internal/driver"
	"posyandu-logistics/internal/events"
	"posyandu-logistics/internal/geo"
	"posyandu-logistics/internal/hub"
	"posyandu-logistics/internal/jwt"
	"posyandu-logistics/internal/maps"
	"posyandu-logistics/internal/metrics"
	"posyandu-logistics/internal/redis"
	"posyandu-logistics/internal/registry"
	"posyandu-logistics/internal/repo/postgres"
	"posyandu-logistics/internal/shipment"
)

type AppContext struct {
	DB     *sqlx.DB
	Config *config.Config
	Redis  *goredis.Client
	Router *gin.Engine

	// Infrastructure
	Metrics          *metrics.Metrics
	JWTService       *jwt.Service
	IdempotencyStore *redis.IdempotencyStore
	RateLimiter      *redis.RateLimiter
	Publisher        events.Publisher
	Resolver         *assignment.Resolver

	AuthHandler     *auth.Handler
	HubHandler      *hub.Handler
	RegistryHandler *registry.Handler
	DriverHandler   *driver.Handler
	ShipmentHandler *shipment.Handler
	DispatchHandler *dispatch.Handler
}

func wireApp(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	// ── Postgres ──
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := postgres.RunMigrationsUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	// ── Redis ──
	rdb, err := openRedis(ctx, cfg.Redis)
	if err != nil {
		db.Close()
		return nil, err
	}

	// ── Metrics ──
	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		db.Close()
		rdb.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if err := metrics.RegisterDBStats(prometheus.DefaultRegisterer, db, "logistics"); err != nil {
		slog.Warn("db stats collector not registered", slog.String("error", err.Error()))
	}

	// ── Infrastructure ──
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)
	idempotencyStore := redis.NewIdempotencyStore(rdb, cfg.Server.IdempotencyTTLSec)
	rateLimiter := redis.NewRateLimiter(rdb, cfg.RateLimiter.MaxRequests, cfg.RateLimiter.WindowSeconds)
	txManager := postgres.NewTxManager(db)
	publisher := newPublisher(cfg.Kafka)

	// ── Geo ──
	oracle, geocoder := newGeo(cfg, rdb, m)
	locator := geo.NewLocator(geocoder, cfg.Geocode.RequirePrecise)

	// ── Repositories ──
	hubRepo := hub.NewRepository()
	postRepo := registry.NewRepository()
	driverRepo := driver.NewRepository()
	shipmentRepo := shipment.NewRepository()

	// ── Assignment ──
	resolver := assignment.NewResolver(
		assignment.NewStore(db, postRepo, hubRepo),
		oracle,
		assignment.Config{
			CandidateLimit: cfg.Assignment.CandidateLimit,
			SweepRadiusKM:  cfg.Assignment.SweepRadiusKM,
			SweepTimeout:   time.Duration(cfg.Assignment.SweepTimeoutSec) * time.Second,
		},
		m,
	)

	// ── Services ──
	hubService := hub.NewService(hubRepo, db, txManager, locator, resolver)
	registryService := registry.NewService(postRepo, db, locator, resolver)
	shipmentService := shipment.NewService(shipmentRepo, db, registryService, resolver, publisher)
	driverService := driver.NewService(driverRepo, db)
	coordinator := dispatch.NewCoordinator(db, txManager, shipmentRepo, driverRepo, hubRepo, publisher, m)
	authService := auth.NewAuthService(hubService, jwtService)

	// ── Handlers ──
	return &AppContext{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Router: gin.New(),

		Metrics:          m,
		JWTService:       jwtService,
		IdempotencyStore: idempotencyStore,
		RateLimiter:      rateLimiter,
		Publisher:        publisher,
		Resolver:         resolver,

		AuthHandler:     auth.NewHandler(authService),
		HubHandler:      hub.NewHandler(hubService),
		RegistryHandler: registry.NewHandler(registryService),
		DriverHandler:   driver.NewHandler(driverService),
		ShipmentHandler: shipment.NewHandler(shipmentService),
		DispatchHandler: dispatch.NewHandler(coordinator),
	}, nil
}

func openDB(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := postgres.Connect(ctx, cfg.Postgres.DSN(), postgres.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	var rdb *goredis.Client
	if cfg.URL != "" {
		opts, err := goredis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis parse url: %w", err)
		}
		rdb = goredis.NewClient(opts)
	} else {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rdb, nil
}

// newGeo builds the travel-time oracle and the geocoder. Missing provider
// credentials leave the provider nil: the oracle then falls back to the
// synthetic estimate and geocoding rejects address-only registrations.
func newGeo(cfg *config.Config, rdb *goredis.Client, m *metrics.Metrics) (*geo.Oracle, *geo.Geocoder) {
	var travelShared, geocodeShared geo.SharedStore
	if cfg.Cache.SharedEnabled && rdb != nil {
		travelShared = redis.NewSharedCache(rdb, "traveltime")
		geocodeShared = redis.NewSharedCache(rdb, "geocode")
	}
	travelCache := geo.NewTieredCache[time.Duration](
		cfg.Cache.TravelTimeSize, time.Duration(cfg.Cache.TravelTimeTTLSec)*time.Second, travelShared)
	geocodeCache := geo.NewTieredCache[geo.GeocodeResult](
		cfg.Cache.GeocodeSize, time.Duration(cfg.Cache.GeocodeTTLSec)*time.Second, geocodeShared)

	cooldown := time.Duration(cfg.CircuitBreaker.CooldownSeconds) * time.Second

	var travel maps.TravelTimeProvider
	var geocoder maps.Geocoder
	if cfg.Maps.GoogleAPIKey != "" {
		google := maps.NewGoogleClient(cfg.Maps.GoogleBaseURL, cfg.Maps.GoogleAPIKey, cfg.Maps.Timeout())
		geocoder = google
		if cfg.Maps.Provider != "mapbox" {
			travel = maps.NewBreaker(google, cfg.CircuitBreaker.FailureThreshold, cooldown)
		}
	} else {
		slog.Warn("google maps api key not set, address-only registrations will be rejected")
	}
	if cfg.Maps.Provider == "mapbox" && cfg.Maps.MapboxToken != "" {
		mapbox := maps.NewMapboxClient(cfg.Maps.MapboxBaseURL, cfg.Maps.MapboxToken, cfg.Maps.Timeout())
		travel = maps.NewBreaker(mapbox, cfg.CircuitBreaker.FailureThreshold, cooldown)
	}
	if travel == nil {
		slog.Warn("no travel time provider configured, using synthetic estimates",
			slog.String("provider", cfg.Maps.Provider))
	}

	return geo.NewOracle(travel, travelCache, cfg.Maps.Timeout(), m),
		geo.NewGeocoder(geocoder, geocodeCache, cfg.Maps.Timeout(), m)
}

func newPublisher(cfg config.KafkaConfig) events.Publisher {
	if len(cfg.Brokers) == 0 {
		return events.NopPublisher{}
	}
	return events.NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}

// Close waits for in-flight reassignment sweeps before dropping the pools
// they use.
func (a *AppContext) Close() {
	a.Resolver.Wait()
	if err := a.Publisher.Close(); err != nil {
		slog.Warn("event publisher close", slog.String("error", err.Error()))
	}
	a.DB.Close()
	a.Redis.Close()
}

func (a *AppContext) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	checks := map[string]string{}
	healthy := true

	if err := a.DB.PingContext(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	if err := a.Redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": checks,
		"pool":   postgres.GetPoolMetrics(a.DB),
	})
}
