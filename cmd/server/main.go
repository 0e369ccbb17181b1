package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dispatch-engine/internal/config"
	"dispatch-engine/internal/database"
	"dispatch-engine/internal/handlers"
	"dispatch-engine/internal/kafka"
	"dispatch-engine/internal/logger"
	"dispatch-engine/internal/middleware"
	"dispatch-engine/internal/models"
	"dispatch-engine/internal/redis"
	"dispatch-engine/internal/services"

	"github.com/joho/godotenv"
)

func main() {
	// .env может отсутствовать в контейнере, тогда конфигурация из окружения
	_ = godotenv.Load()

	// Загрузка конфигурации
	cfg := config.Load()

	// Инициализация логгера
	log := logger.New(&cfg.Logger)
	log.Info("Starting dispatch engine server...")

	// Подключение к базе данных
	db, err := database.Connect(&cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(); err != nil {
		log.WithError(err).Fatal("Failed to initialize database schema")
	}

	// Подключение к Redis
	redisClient, err := redis.Connect(&cfg.Redis, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Создание Kafka producer
	producer, err := kafka.NewProducer(&cfg.Kafka, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create Kafka producer")
	}
	defer producer.Close()

	// Создание Kafka consumer
	consumer, err := kafka.NewConsumer(&cfg.Kafka, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create Kafka consumer")
	}
	defer consumer.Stop()

	// Инициализация сервисов
	cacheService := services.NewCacheService(redisClient, &cfg.Cache, log)
	rateLimiter := services.NewRateLimiterService(redisClient, &cfg.RateLimit, log)
	zoneService := services.NewZoneService(db, log)
	pricingService := services.NewPricingService(&cfg.Pricing, log)
	driverService := services.NewDriverService(db, log)
	deliveryService := services.NewDeliveryService(db, pricingService, zoneService, &cfg.Dispatch, log)
	dispatchService := services.NewDispatchService(db, deliveryService, driverService, zoneService, &cfg.Dispatch, log)
	trackingService := services.NewTrackingService(deliveryService, driverService, cacheService, log)

	// Инициализация handlers
	driverHandler := handlers.NewDriverHandler(driverService, deliveryService, producer, cacheService, &cfg.Dispatch, log)
	deliveryHandler := handlers.NewDeliveryHandler(deliveryService, dispatchService, trackingService, producer, cacheService, log)
	zoneHandler := handlers.NewZoneHandler(zoneService, cacheService, log)
	healthHandler := handlers.NewHealthHandler(db, redisClient)
	cacheHandler := handlers.NewCacheHandler(cacheService, log)
	rateLimitHandler := handlers.NewRateLimitHandler(rateLimiter, log)

	// Прогрев кеша списком активных зон, он нужен каждому назначению
	warmupCtx, warmupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	active := true
	cacheService.WarmupCache(warmupCtx, map[string]func() (interface{}, error){
		services.BuildListKey(redis.KeyPrefixZone, "", "true"): func() (interface{}, error) {
			return zoneService.ListZones(models.ZoneFilter{Active: &active})
		},
	})
	warmupCancel()

	// Регистрация обработчиков событий Kafka
	registerEventHandlers(consumer, log)

	// Запуск Kafka consumer
	if err := consumer.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start Kafka consumer")
	}

	// Настройка HTTP роутера
	mux := setupRoutes(driverHandler, deliveryHandler, zoneHandler, healthHandler, cacheHandler, rateLimitHandler)

	// Создание HTTP сервера
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      middleware.RateLimitMiddleware(rateLimiter, log)(mux),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запуск сервера в горутине
	go func() {
		log.WithField("address", server.Addr).Info("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server exited")
}

// setupRoutes настраивает маршруты HTTP сервера
func setupRoutes(driverHandler *handlers.DriverHandler, deliveryHandler *handlers.DeliveryHandler, zoneHandler *handlers.ZoneHandler, healthHandler *handlers.HealthHandler, cacheHandler *handlers.CacheHandler, rateLimitHandler *handlers.RateLimitHandler) *http.ServeMux {
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("/health", corsMiddleware(healthHandler.Health))
	mux.HandleFunc("/health/readiness", corsMiddleware(healthHandler.Readiness))
	mux.HandleFunc("/health/liveness", corsMiddleware(healthHandler.Liveness))

	// Driver endpoints
	mux.HandleFunc("/api/drivers", corsMiddleware(handleDriversRoute(driverHandler)))
	mux.HandleFunc("/api/drivers/nearby", corsMiddleware(driverHandler.GetNearbyDrivers))
	mux.HandleFunc("/api/drivers/", corsMiddleware(handleDriverRoute(driverHandler)))

	// Delivery endpoints
	mux.HandleFunc("/api/deliveries", corsMiddleware(handleDeliveriesRoute(deliveryHandler)))
	mux.HandleFunc("/api/deliveries/", corsMiddleware(handleDeliveryRoute(deliveryHandler)))

	// Zone endpoints
	mux.HandleFunc("/api/zones", corsMiddleware(handleZonesRoute(zoneHandler)))
	mux.HandleFunc("/api/zones/", corsMiddleware(handleZoneRoute(zoneHandler)))

	// Service endpoints
	mux.HandleFunc("/api/stats", corsMiddleware(deliveryHandler.GetStats))
	mux.HandleFunc("/api/cache/metrics", corsMiddleware(cacheHandler.GetMetrics))
	mux.HandleFunc("/api/rate-limit/status", corsMiddleware(rateLimitHandler.GetStatus))

	return mux
}

// handleDriversRoute обрабатывает маршруты для коллекции водителей
func handleDriversRoute(handler *handlers.DriverHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handler.GetDrivers(w, r)
		case http.MethodPost:
			handler.RegisterDriver(w, r)
		default:
			writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

// handleDriverRoute обрабатывает маршруты для отдельного водителя
func handleDriverRoute(handler *handlers.DriverHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/status"):
			handler.UpdateDriverStatus(w, r)
		case strings.HasSuffix(r.URL.Path, "/location"):
			handler.UpdateDriverLocation(w, r)
		default:
			handler.GetDriver(w, r)
		}
	}
}

// handleDeliveriesRoute обрабатывает маршруты для коллекции доставок
func handleDeliveriesRoute(handler *handlers.DeliveryHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handler.GetDeliveries(w, r)
		case http.MethodPost:
			handler.CreateDelivery(w, r)
		default:
			writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

// handleDeliveryRoute обрабатывает маршруты для отдельной доставки
func handleDeliveryRoute(handler *handlers.DeliveryHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/status"):
			handler.UpdateDeliveryStatus(w, r)
		case strings.HasSuffix(r.URL.Path, "/assign"):
			handler.AssignDelivery(w, r)
		case strings.HasSuffix(r.URL.Path, "/candidates"):
			handler.GetDispatchCandidates(w, r)
		case strings.HasSuffix(r.URL.Path, "/location"):
			handler.UpdateDeliveryLocation(w, r)
		case strings.HasSuffix(r.URL.Path, "/proof"):
			handler.SubmitProof(w, r)
		case strings.HasSuffix(r.URL.Path, "/tracking"):
			handler.TrackDelivery(w, r)
		default:
			handler.GetDelivery(w, r)
		}
	}
}

// handleZonesRoute обрабатывает маршруты для коллекции зон
func handleZonesRoute(handler *handlers.ZoneHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handler.GetZones(w, r)
		case http.MethodPost:
			handler.CreateZone(w, r)
		default:
			writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

// handleZoneRoute обрабатывает маршруты для отдельной зоны
func handleZoneRoute(handler *handlers.ZoneHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handler.GetZone(w, r)
		case http.MethodPut:
			handler.UpdateZone(w, r)
		case http.MethodDelete:
			handler.DeactivateZone(w, r)
		default:
			writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

// registerEventHandlers регистрирует обработчики событий Kafka
func registerEventHandlers(consumer *kafka.Consumer, log *logger.Logger) {
	consumer.RegisterHandler(models.EventTypeDeliveryCreated, func(ctx context.Context, event *models.Event) error {
		log.WithField("event_id", event.ID).Info("Processing delivery created event")
		return nil
	})

	consumer.RegisterHandler(models.EventTypeDeliveryStatusChanged, func(ctx context.Context, event *models.Event) error {
		log.WithField("event_id", event.ID).Info("Processing delivery status changed event")
		// Здесь можно добавить логику уведомлений, обновления статистики и т.д.
		return nil
	})

	consumer.RegisterHandler(models.EventTypeDriverAssigned, func(ctx context.Context, event *models.Event) error {
		log.WithField("event_id", event.ID).Info("Processing driver assigned event")
		return nil
	})

	consumer.RegisterHandler(models.EventTypeLocationUpdated, func(ctx context.Context, event *models.Event) error {
		log.WithField("event_id", event.ID).Debug("Processing driver location updated event")
		return nil
	})
}

// corsMiddleware и другие helper функции
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	fmt.Fprintf(w, `{"error": "%s", "message": "%s"}`, http.StatusText(statusCode), message)
}
