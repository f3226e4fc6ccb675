package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	acquisition "plantwatch/internal/acquisition/application"
	alertapp "plantwatch/internal/alerts/application"
	alerts "plantwatch/internal/alerts/domain"
	alerthttp "plantwatch/internal/alerts/interfaces/http"
	alertnotify "plantwatch/internal/alerts/notify"
	apihttp "plantwatch/internal/api/http"
	"plantwatch/internal/audit"
	"plantwatch/internal/auth"
	"plantwatch/internal/config"
	"plantwatch/internal/datasource/infrastructure/memory"
	datasourcepg "plantwatch/internal/datasource/infrastructure/postgres"
	historyapp "plantwatch/internal/history/application"
	history "plantwatch/internal/history/domain"
	historyfile "plantwatch/internal/history/infrastructure/file"
	historypg "plantwatch/internal/history/infrastructure/postgres"
	"plantwatch/internal/observability/metrics"
	rotationapp "plantwatch/internal/rotation/application"
	rotation "plantwatch/internal/rotation/domain"
	scheduleapp "plantwatch/internal/schedule/application"
	schedulefile "plantwatch/internal/schedule/infrastructure/file"
	"plantwatch/internal/ticker"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("open db: %v", err)
		}
		defer db.Close()
	}
	metrics.Init(db, logger)

	source, err := buildDataSource(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatalf("data source error: %v", err)
	}

	ledgerStore, err := buildLedgerStore(ctx, cfg, db)
	if err != nil {
		logger.Fatalf("history store error: %v", err)
	}
	ledger, err := historyapp.NewLedger(ctx, ledgerStore, logger)
	if err != nil {
		logger.Fatalf("history ledger error: %v", err)
	}

	timeStore, err := schedulefile.NewTimeStore(cfg.AlarmsPath)
	if err != nil {
		logger.Fatalf("schedule store error: %v", err)
	}
	scheduler, err := scheduleapp.NewScheduler(ctx, timeStore, logger)
	if err != nil {
		logger.Fatalf("scheduler error: %v", err)
	}

	rotator := rotationapp.NewRotator(source, logger,
		rotationapp.WithInterval(cfg.RotationInterval),
		rotationapp.WithFetchTimeout(cfg.FetchTimeout),
	)

	engine, err := alerts.NewEngine(cfg.ThresholdRules())
	if err != nil {
		logger.Fatalf("alert rules error: %v", err)
	}

	alertBroker := alerthttp.NewSSEBroker()
	notifier, closeNotifier := buildNotifier(cfg, alertBroker, logger)
	defer closeNotifier()
	dispatcher := alertapp.NewDispatcher(notifier, alertapp.DefaultQueueSize, logger)
	defer dispatcher.Close()
	sink := alertapp.NewMemorySink(logger, alertapp.WithNotifier(dispatcher))

	coordinator, err := acquisition.NewCoordinator(acquisition.Deps{
		Rotator:   rotator,
		Ledger:    ledger,
		Scheduler: scheduler,
		Engine:    engine,
		Sink:      sink,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalf("coordinator error: %v", err)
	}

	driver := ticker.NewDriver(logger, ticker.WithSecondAlignment(cfg.AlignTicks))
	if err := coordinator.Register(driver); err != nil {
		logger.Fatalf("ticker error: %v", err)
	}

	auditLogger := buildAuditLogger(ctx, db, logger)
	apiHandler, err := apihttp.NewHandler(apihttp.Deps{
		Rotator:   rotator,
		Scheduler: scheduler,
		Ledger:    ledger,
		Capturer:  coordinator,
		Audit:     auditLogger,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalf("api handler error: %v", err)
	}
	alertHandler, err := alerthttp.NewHandler(sink, auditLogger, logger)
	if err != nil {
		logger.Fatalf("alerts handler error: %v", err)
	}

	mux := http.NewServeMux()
	apiHandler.Register(mux)
	mux.Handle("/api/v1/alerts", alertHandler)
	mux.Handle("/api/v1/alerts/count", alertHandler)
	mux.Handle("/api/v1/alerts/clear", alertHandler)
	mux.Handle("/api/v1/alerts/stream", alerthttp.NewStreamHandler(alertBroker, 0))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	if cfg.JWTSecret != "" {
		authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), auth.NewPolicy("/healthz", "/metrics"))
		authMiddleware.Logger = logger
		handler = authMiddleware.Wrap(mux)
	} else {
		logger.Printf("auth disabled: AUTH_JWT_SECRET not set")
	}

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(handler, logger)}

	driverDone := make(chan struct{})
	go func() {
		defer close(driverDone)
		if err := driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("ticker driver error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown error: %v", err)
		}
	}()

	logger.Printf("http listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server error: %v", err)
	}
	<-driverDone
	logger.Printf("shutdown complete")
}

func buildDataSource(ctx context.Context, cfg config.Config, db *sql.DB, logger *log.Logger) (rotation.DataSource, error) {
	if cfg.DataSource != config.BackendPostgres {
		seed := cfg.Seed()
		logger.Printf("data source: memory rows=%d", len(seed))
		return memory.NewSource(seed...), nil
	}
	source, err := datasourcepg.NewSource(db)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
	defer cancel()
	if err := source.Connect(pingCtx); err != nil {
		// The rotator reports "disconnected" until the database answers.
		logger.Printf("data source connect error: %v", err)
	}
	return source, nil
}

func buildLedgerStore(ctx context.Context, cfg config.Config, db *sql.DB) (history.Store, error) {
	if cfg.HistoryBackend != config.BackendPostgres {
		return historyfile.NewLedgerStore(cfg.HistoryPath)
	}
	store := historypg.NewLedgerStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func buildAuditLogger(ctx context.Context, db *sql.DB, logger *log.Logger) audit.Logger {
	if db == nil {
		return audit.NewStdLogger(logger)
	}
	repo := audit.NewRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Printf("audit schema error: %v", err)
		return audit.NewStdLogger(logger)
	}
	return repo
}

func buildNotifier(cfg config.Config, broker *alerthttp.SSEBroker, logger *log.Logger) (alertapp.Notifier, func()) {
	multi := alertnotify.NewMultiNotifier(broker)
	closeFn := func() {}

	tpl, err := alertnotify.NewTemplate(cfg.Notify.Template)
	if err != nil {
		logger.Printf("alert template error: %v", err)
		tpl = nil
	}

	if cfg.Notify.WebhookURL != "" {
		channel, err := alertnotify.NewWebhookChannel(cfg.Notify.WebhookURL)
		if err == nil {
			var notifier *alertnotify.ChannelNotifier
			notifier, err = alertnotify.NewChannelNotifier(channel, tpl, logger)
			if err == nil {
				multi.Add(notifier)
			}
		}
		if err != nil {
			logger.Printf("alert webhook error: %v", err)
		}
	}

	if cfg.Notify.MQTT.Broker != "" {
		mqttCfg := alertnotify.MQTTConfig{
			Broker:   cfg.Notify.MQTT.Broker,
			ClientID: cfg.Notify.MQTT.ClientID,
			Username: cfg.Notify.MQTT.Username,
			Password: cfg.Notify.MQTT.Password,
			Topic:    cfg.Notify.MQTT.Topic,
			QoS:      byte(cfg.Notify.MQTT.QoS),
		}
		client, err := alertnotify.ConnectMQTT(mqttCfg, logger)
		if err != nil {
			logger.Printf("alert mqtt error: %v", err)
			return multi, closeFn
		}
		closeFn = func() { client.Disconnect(250) }
		notifier, err := alertnotify.NewMQTTNotifier(client, mqttCfg, tpl, logger)
		if err != nil {
			logger.Printf("alert mqtt error: %v", err)
			return multi, closeFn
		}
		multi.Add(notifier)
		logger.Printf("alert mqtt publishing to %s", cfg.Notify.MQTT.Broker)
	}
	return multi, closeFn
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

// Flush keeps the alert stream working behind the logging wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
