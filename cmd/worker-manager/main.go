package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"genieops-engine/internal/api"
	commonaws "genieops-engine/internal/common/aws"
	"genieops-engine/internal/common/camunda"
	"genieops-engine/internal/common/config"
	"genieops-engine/internal/common/database"
	"genieops-engine/internal/common/genai"
	"genieops-engine/internal/common/logger"
	"genieops-engine/internal/common/observability"
	"genieops-engine/internal/funnel"
	"genieops-engine/internal/store"
	emailsend "genieops-engine/internal/workers/communication/email-send"
	buildfunnelcontent "genieops-engine/internal/workers/funnel/build-funnel-content"
	fetchimages "genieops-engine/internal/workers/funnel/fetch-images"
	generatestrategy "genieops-engine/internal/workers/funnel/generate-strategy"
	interpretbrief "genieops-engine/internal/workers/funnel/interpret-brief"
	renderassets "genieops-engine/internal/workers/funnel/render-assets"
	schedulenurture "genieops-engine/internal/workers/nurture/schedule-nurture"
	"genieops-engine/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting genieops engine...", zap.String("environment", cfg.App.Environment))

	shutdownTracer, err := observability.InitTracer(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint)
	if err != nil {
		zapLog.Fatal("tracer init failed", zap.Error(err))
	}
	obs := observability.New(cfg.Observability.ServiceName)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		zapLog.Fatal("postgres migration failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	// --- Redis ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Elasticsearch (optional: without it topic lookup and search are off) ---
	var topics funnel.TopicIndex
	if cfg.Database.Elasticsearch.GetURL() != "" {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		index := cfg.Database.Elasticsearch.FunnelIndex
		if err := esClient.EnsureIndex(ctx, index, store.FunnelIndexMapping); err != nil {
			zapLog.Fatal("elasticsearch index setup failed", zap.Error(err))
		}
		topics = store.NewTopicIndex(esClient.Client, index)
		zapLog.Info("Elasticsearch connected successfully", zap.String("index", index))
	}

	// --- Email transport ---
	mailCfg := emailConfig(cfg)
	var sesClient emailsend.SESAPI
	if mailCfg.Provider == emailsend.ProviderSES {
		sesClient, err = commonaws.NewSESClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client init failed", zap.Error(err))
		}
	}
	emailHandler, err := emailsend.NewHandler(emailsend.HandlerOptions{
		CustomConfig: mailCfg,
		Logger:       log,
		SES:          sesClient,
	})
	if err != nil {
		zapLog.Fatal("failed to create email-send handler", zap.Error(err))
	}
	mailer := emailHandler.Transport()

	// --- SNS notifier ---
	var notifier *funnel.Notifier
	if cfg.Integrations.AWS.SNS.Enabled {
		snsClient, err := commonaws.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		notifier = funnel.NewNotifier(snsClient, cfg.Integrations.AWS.SNS.TopicARN, log)
	}

	// --- Agents ---
	completer := genai.NewClient(&genai.Config{
		BaseURL:     cfg.APIs.GenAI.BaseURL,
		APIKey:      cfg.APIs.GenAI.APIKey,
		Timeout:     config.GetDuration(cfg.APIs.GenAI.Timeout),
		Temperature: cfg.APIs.GenAI.Temperature,
		MaxTokens:   cfg.APIs.GenAI.MaxTokens,
		ContextSize: cfg.APIs.GenAI.ContextSize,
	}, log)
	agentTimeout := config.GetDuration(cfg.APIs.GenAI.Timeout)

	intake := interpretbrief.NewHandler(&interpretbrief.Config{
		Model:   cfg.Agents.Intake.Model,
		Timeout: agentTimeout,
	}, completer, log)
	director := generatestrategy.NewHandler(&generatestrategy.Config{
		Model:   cfg.Agents.Director.Model,
		Timeout: agentTimeout,
	}, completer, log)
	mastermind := buildfunnelcontent.NewHandler(&buildfunnelcontent.Config{
		Model:   cfg.Agents.Mastermind.Model,
		Timeout: agentTimeout,
	}, completer, log)
	pipeline := funnel.NewPipeline(intake, director, mastermind, log).Instrument(obs)

	imageCfg := fetchimages.DefaultConfig()
	if cfg.APIs.ImageSearch.BaseURL != "" {
		imageCfg.SearchAPIBaseURL = cfg.APIs.ImageSearch.BaseURL
	}
	if cfg.APIs.ImageSearch.Timeout > 0 {
		imageCfg.Timeout = config.GetDuration(cfg.APIs.ImageSearch.Timeout)
	}
	if cfg.APIs.ImageSearch.MaxPage > 0 {
		imageCfg.MaxPage = cfg.APIs.ImageSearch.MaxPage
	}
	imageCfg.SearchAPIKey = cfg.APIs.ImageSearch.APIKey
	imageCfg.FallbackURL = cfg.APIs.ImageSearch.Fallback
	searcher := fetchimages.NewSearcher(imageCfg, &http.Client{Timeout: imageCfg.Timeout}, log, time.Now().UnixNano())
	imagesHandler := fetchimages.NewHandler(imageCfg, searcher, log)

	// --- Stores and nurture ---
	pgStore := store.NewPostgresStore(pg.DB)

	nurtureCfg := schedulenurture.DefaultConfig()
	nurtureCfg.Delay = config.GetDuration(cfg.Nurture.Delay)
	nurtureCfg.PollInterval = config.GetDuration(cfg.Nurture.PollInterval)
	nurtureCfg.MaxAttempts = cfg.Nurture.MaxAttempts
	nurtureCfg.RetryBackoff = config.GetDuration(cfg.Nurture.RetryBackoff)
	scheduler := schedulenurture.NewScheduler(nurtureCfg, rdb.Client, pgStore, pgStore, mailer, log)

	captureURL := cfg.Server.PublicBaseURL + "/api/v1/capture-lead"
	upgradeURL := cfg.Server.PublicBaseURL + "/?view=pricing"

	service := funnel.NewService(funnel.Config{
		PublicBaseURL: cfg.Server.PublicBaseURL,
		CaptureURL:    captureURL,
		UpgradeURL:    upgradeURL,
		LockTTL:       config.GetDuration(cfg.Nurture.LockTTL),
	}, funnel.Deps{
		Pipeline: pipeline,
		Funnels:  pgStore,
		Leads:    pgStore,
		Topics:   topics,
		Images:   searcher,
		Mailer:   mailer,
		Nurture:  scheduler,
		Locker:   database.NewLocker(rdb.Client, "lock:"),
		Notifier: notifier,
	}, log)

	// --- Zeebe workers ---
	var workers []worker.JobWorker
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.NewClientWithConfig(ctx, &camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
			RetryConfig: &camunda.RetryConfig{
				MaxRetries: 10,
				BaseDelay:  2 * time.Second,
				MaxDelay:   30 * time.Second,
			},
		})
		if err != nil {
			zapLog.Fatal("zeebe client failed", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")

		render := renderassets.NewHandler(&renderassets.Config{
			CaptureURL: captureURL,
			UpgradeURL: upgradeURL,
			Timeout:    config.GetDuration(config.GetWorkerConfig(cfg, renderassets.TaskType).Timeout),
		}, log)
		nurtureHandler := schedulenurture.NewHandler(nurtureCfg, scheduler, log)

		handlers := map[string]camunda.HandlerFunc{
			interpretbrief.TaskType:     intake.Handle,
			generatestrategy.TaskType:   director.Handle,
			buildfunnelcontent.TaskType: mastermind.Handle,
			fetchimages.TaskType:        imagesHandler.Handle,
			renderassets.TaskType:       render.Handle,
			schedulenurture.TaskType:    nurtureHandler.Handle,
			emailsend.TaskType:          emailHandler.Handle,
		}
		for _, activity := range registry.Default().Activities {
			handle, ok := handlers[activity.TaskType]
			if !ok {
				zapLog.Warn("no handler for activity", zap.String("taskType", activity.TaskType))
				continue
			}
			wcfg := config.GetWorkerConfig(cfg, activity.TaskType)
			if w := camunda.StartWorker(zeebe.GetClient(), activity.TaskType, wcfg, handle, obs, log); w != nil {
				workers = append(workers, w)
			}
		}
		zapLog.Info("Zeebe workers registered", zap.Int("count", len(workers)))
	}

	// --- Nurture poller ---
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		if err := scheduler.Run(ctx); err != nil {
			zapLog.Error("nurture poller stopped", zap.Error(err))
		}
	}()

	// --- HTTP: API, health and metrics ---
	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(service, log)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Format(time.RFC3339)})
	})
	router.GET("/ready", func(c *gin.Context) {
		if err := pg.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "postgres unavailable"})
			return
		}
		if err := rdb.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
		if zeebe != nil {
			if err := zeebe.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "zeebe unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "time": time.Now().Format(time.RFC3339)})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: cfg.Server.Address, Handler: router}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	for _, w := range workers {
		w.Close()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	<-pollerDone
	if err := shutdownTracer(shutdownCtx); err != nil {
		zapLog.Error("tracer shutdown failed", zap.Error(err))
	}

	zapLog.Info("genieops engine stopped gracefully")
}

func emailConfig(cfg *config.Config) *emailsend.Config {
	wcfg := config.GetWorkerConfig(cfg, emailsend.TaskType)
	mail := emailsend.DefaultConfig()
	mail.Enabled = wcfg.Enabled
	mail.MaxJobsActive = wcfg.MaxJobsActive
	mail.Timeout = config.GetDuration(wcfg.Timeout)
	mail.Provider = cfg.Integrations.EmailProvider
	mail.SMTPHost = cfg.Integrations.SMTP.Host
	mail.SMTPPort = cfg.Integrations.SMTP.Port
	mail.SMTPUsername = cfg.Integrations.SMTP.Username
	mail.SMTPPassword = cfg.Integrations.SMTP.Password
	mail.UseTLS = cfg.Integrations.SMTP.UseTLS
	mail.FromName = cfg.Integrations.SMTP.FromName
	mail.SESFromEmail = cfg.Integrations.AWS.SES.FromEmail
	return mail
}
