package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	alertsapp "homeclimate/internal/alerts/application"
	alerts "homeclimate/internal/alerts/domain"
	alertnotify "homeclimate/internal/alerts/notify"
	apihttp "homeclimate/internal/api/http"
	"homeclimate/internal/audit"
	"homeclimate/internal/auth"
	automation "homeclimate/internal/automation/application"
	"homeclimate/internal/config"
	controlapp "homeclimate/internal/control/application"
	detectionapp "homeclimate/internal/detection/application"
	detectionevents "homeclimate/internal/detection/application/events"
	detection "homeclimate/internal/detection/domain"
	detectionrepo "homeclimate/internal/detection/infrastructure/postgres"
	"homeclimate/internal/devices"
	"homeclimate/internal/devices/homeassistant"
	"homeclimate/internal/devices/homey"
	energyapp "homeclimate/internal/energy/application"
	"homeclimate/internal/eventing"
	learningapp "homeclimate/internal/learning/application"
	learningrepo "homeclimate/internal/learning/infrastructure/postgres"
	"homeclimate/internal/observability/metrics"
	patterns "homeclimate/internal/patterns/application"
	samplingapp "homeclimate/internal/sampling/application"
	samplingrepo "homeclimate/internal/sampling/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config load error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config validate error: %v", err)
	}

	databaseURL := getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", ""))
	if databaseURL == "" {
		logger.Fatal("DATABASE_URL or PG_DSN is required")
	}
	jwtSecret := getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", ""))
	if jwtSecret == "" {
		logger.Fatal("AUTH_JWT_SECRET is required")
	}
	httpAddr := getenvDefault("HTTP_ADDR", ":8080")

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init()

	client, err := buildDeviceClient(cfg)
	if err != nil {
		logger.Fatalf("device client error: %v", err)
	}

	sampleRepo := samplingrepo.NewSampleRepository(db)
	eventRepo := detectionrepo.NewEventRepository(db)
	paramRepo := learningrepo.NewParameterRepository(db)
	auditRepo := audit.NewRepository(db)

	ingestor, err := samplingapp.NewIngestor(client, cfg.Devices)
	if err != nil {
		logger.Fatalf("ingestor error: %v", err)
	}
	detector, err := detectionapp.NewDetector(cfg.RiseRatePerMinute, cfg.RiseRateSamples, cfg.MaxSampleGap)
	if err != nil {
		logger.Fatalf("detector error: %v", err)
	}
	thresholds, err := detectionapp.NewThresholdStore(detection.ThresholdSet{
		HumidityHigh: cfg.Thresholds.HumidityHigh,
		HumidityLow:  cfg.Thresholds.HumidityLow,
		DelayMinutes: cfg.Thresholds.DelayMinutes,
	})
	if err != nil {
		logger.Fatalf("threshold store error: %v", err)
	}
	controller, err := controlapp.NewController(client, cfg.Devices, cfg.HeatingBoost, cfg.CommandTimeout)
	if err != nil {
		logger.Fatalf("controller error: %v", err)
	}
	recorder, err := detectionapp.NewManualRecorder(eventRepo)
	if err != nil {
		logger.Fatalf("manual recorder error: %v", err)
	}
	bus := eventing.NewInMemoryBus()
	learner, err := learningapp.NewLearner(eventRepo, sampleRepo, paramRepo, thresholds, learningapp.WithBus(bus))
	if err != nil {
		logger.Fatalf("learner error: %v", err)
	}
	if err := learner.Restore(context.Background()); err != nil {
		logger.Fatalf("restore learned thresholds error: %v", err)
	}
	if restored := thresholds.Load(); restored.Learned {
		logger.Printf("thresholds restored: high=%.1f low=%.1f delay_min=%.1f",
			restored.HumidityHigh, restored.HumidityLow, restored.DelayMinutes)
	}
	estimator, err := energyapp.NewEstimator(cfg.DehumidifierWatts, cfg.TariffEURPerKWh)
	if err != nil {
		logger.Fatalf("estimator error: %v", err)
	}
	alertEngine, err := alertsapp.NewEngine(eventRepo, sampleRepo)
	if err != nil {
		logger.Fatalf("alert engine error: %v", err)
	}
	analyzer := patterns.NewAnalyzer()

	bus.Subscribe(eventing.EventTypeOf[detectionevents.UsageEventFinalized](), func(ctx context.Context, event any) error {
		evt, ok := event.(detectionevents.UsageEventFinalized)
		if !ok {
			return eventing.ErrInvalidEventType
		}
		logger.Printf("event finalized: id=%s start=%s duration_min=%.1f peak=%.1f",
			evt.Event.ID, evt.Event.StartTime.Format(time.RFC3339), evt.Event.DurationMinutes, evt.Event.PeakHumidity)
		return nil
	})
	bus.Subscribe(eventing.EventTypeOf[detectionevents.ThresholdsUpdated](), func(ctx context.Context, event any) error {
		evt, ok := event.(detectionevents.ThresholdsUpdated)
		if !ok {
			return eventing.ErrInvalidEventType
		}
		logger.Printf("thresholds updated: high=%.1f low=%.1f delay_min=%.1f",
			evt.HumidityHigh, evt.HumidityLow, evt.DelayMinutes)
		return nil
	})

	var notifier *alertnotify.Notifier
	if cfg.AlertWebhookURL != "" {
		channel, err := alertnotify.NewWebhookChannel(cfg.AlertWebhookURL)
		if err != nil {
			logger.Fatalf("alert webhook error: %v", err)
		}
		notifier, err = alertnotify.NewNotifier(channel, alerts.SeverityMedium)
		if err != nil {
			logger.Fatalf("alert notifier error: %v", err)
		}
		bus.Subscribe(eventing.EventTypeOf[detectionevents.SampleGapDetected](), func(ctx context.Context, event any) error {
			evt, ok := event.(detectionevents.SampleGapDetected)
			if !ok {
				return eventing.ErrInvalidEventType
			}
			notifier.Notify(ctx, alerts.Alert{
				Severity: alerts.SeverityMedium,
				Title:    "Humidity sensor offline",
				Message: fmt.Sprintf("no humidity reading since %s (gap %s); open event was force-closed",
					evt.LastGoodSample.Format(time.RFC3339), evt.Gap.Round(time.Second)),
			})
			metrics.IncAlertEmitted(alerts.SeverityMedium)
			return nil
		})
	}

	engine, err := automation.NewEngine(cfg, ingestor, sampleRepo, detector, thresholds, eventRepo, controller, bus, logger)
	if err != nil {
		logger.Fatalf("automation engine error: %v", err)
	}
	go engine.Run(context.Background())

	scheduler := learningapp.NewScheduler(learner, cfg.DailyOptimizeAt, cfg.LookbackDays, cfg.MinConfidence, logger)
	go scheduler.Start(context.Background())

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(jwtSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/status", apihttp.NewStatusHandler(engine))
	mux.Handle("/api/v1/sensors", apihttp.NewSensorsHandler(engine))
	mux.Handle("/api/v1/preview", apihttp.NewPreviewHandler(engine))
	mux.Handle("/api/v1/events", apihttp.NewEventsHandler(eventRepo))
	mux.Handle("/api/v1/events/manual", apihttp.NewManualEventHandler(recorder, auditRepo))
	mux.Handle("/api/v1/analytics", apihttp.NewAnalyticsHandler(eventRepo, analyzer, thresholds))
	mux.Handle("/api/v1/optimize", apihttp.NewOptimizeHandler(learner, auditRepo))
	mux.Handle("/api/v1/learned", apihttp.NewLearnedHandler(paramRepo, thresholds))
	mux.Handle("/api/v1/learned/reset", apihttp.NewLearnedResetHandler(learner, auditRepo))
	mux.Handle("/api/v1/energy", apihttp.NewEnergyHandler(eventRepo, estimator))
	mux.Handle("/api/v1/exports/", apihttp.NewEnergyExportHandler(eventRepo, estimator))
	mux.Handle("/api/v1/alerts", apihttp.NewAlertsHandler(alertEngine, thresholds))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: httpAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", httpAddr)
	logger.Fatal(server.ListenAndServe())
}

func buildDeviceClient(cfg config.Config) (devices.Client, error) {
	switch cfg.Platform {
	case "homey":
		return homey.NewClient(cfg.PlatformURL, cfg.PlatformAuth)
	default:
		return homeassistant.NewClient(cfg.PlatformURL, cfg.PlatformAuth)
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
