package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fraud-detection-service/internal/client"
	"fraud-detection-service/internal/config"
	"fraud-detection-service/internal/handler"
	"fraud-detection-service/internal/realtime"
	"fraud-detection-service/internal/repository/clickhouse"
	redisrepo "fraud-detection-service/internal/repository/redis"
	"fraud-detection-service/internal/repository/scylla"
	"fraud-detection-service/internal/scheduler"
	"fraud-detection-service/internal/service"
	"fraud-detection-service/internal/tls"
	"fraud-detection-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.Manager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	kafkaConsumer    *client.KafkaConsumer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Repositories
	employeeRepository *scylla.EmployeeRepository
	sessionRepository  *scylla.SessionRepository
	activityRepository *clickhouse.ActivityRepository
	alertRepository    *clickhouse.AlertRepository
	presenceCache      *redisrepo.PresenceCache
	ingestLimiter      *redisrepo.IngestLimiter

	// Realtime
	hub         *realtime.Hub
	distributor *realtime.Distributor

	// Services
	detectionService *service.DetectionService
	telemetryService *service.TelemetryService
	reportingService *service.ReportingService
	ingestWorker     *service.IngestWorker
	fraudScheduler   *scheduler.Scheduler

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewManager(tls.Options{
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		})
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if c, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = c
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB
	if c, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = c
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka
	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - processing telemetry inline", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}
	if consumer, err := client.NewKafkaConsumer(f.config, f.config.Kafka.ActivityTopic,
		f.config.Kafka.ConsumerGroup, util.Get()); err != nil {
		util.Warn("Kafka consumer initialization failed - processing telemetry inline", util.ErrorField(err))
	} else {
		f.kafkaConsumer = consumer
		util.Info("Kafka consumer initialized")
	}

	// Elasticsearch
	if c, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
	} else {
		f.esClient = c
		if err := f.esClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
		} else {
			util.Info("Elasticsearch client initialized and healthy")
		}
	}

	// ClickHouse
	if c, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = c
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// ==============================
// Repository Initialization
// ==============================

func (f *Factory) EmployeeRepository() *scylla.EmployeeRepository {
	if f.employeeRepository == nil {
		f.employeeRepository = scylla.NewEmployeeRepository(f.ScyllaClient(), util.Get())
	}
	return f.employeeRepository
}

func (f *Factory) SessionRepository() *scylla.SessionRepository {
	if f.sessionRepository == nil {
		f.sessionRepository = scylla.NewSessionRepository(f.ScyllaClient(), util.Get())
	}
	return f.sessionRepository
}

func (f *Factory) ActivityRepository() *clickhouse.ActivityRepository {
	if f.activityRepository == nil {
		f.activityRepository = clickhouse.NewActivityRepository(f.clickhouseClient, util.Get())
	}
	return f.activityRepository
}

func (f *Factory) AlertRepository() *clickhouse.AlertRepository {
	if f.alertRepository == nil {
		f.alertRepository = clickhouse.NewAlertRepository(f.clickhouseClient, util.Get())
	}
	return f.alertRepository
}

func (f *Factory) PresenceCache() *redisrepo.PresenceCache {
	if f.presenceCache == nil {
		f.presenceCache = redisrepo.NewPresenceCache(f.redisClient)
	}
	return f.presenceCache
}

func (f *Factory) IngestLimiter() *redisrepo.IngestLimiter {
	if f.ingestLimiter == nil {
		f.ingestLimiter = redisrepo.NewIngestLimiter(f.redisClient, f.config.Detection.IngestRatePerMinute)
	}
	return f.ingestLimiter
}

// ==============================
// Realtime
// ==============================

func (f *Factory) Hub() *realtime.Hub {
	if f.hub == nil {
		f.hub = realtime.NewHub()
	}
	return f.hub
}

func (f *Factory) Distributor() *realtime.Distributor {
	if f.distributor == nil {
		f.distributor = realtime.NewDistributor(f.Hub())
	}
	return f.distributor
}

// ==============================
// Services
// ==============================

func (f *Factory) DetectionService() *service.DetectionService {
	if f.detectionService == nil {
		var producer service.AlertNotifier
		if f.kafkaProducer != nil {
			producer = f.kafkaProducer
		}
		f.detectionService = service.NewDetectionService(
			f.ActivityRepository(),
			f.AlertRepository(),
			producer,
			f.esClient,
			f.config.Detection,
		)
	}
	return f.detectionService
}

func (f *Factory) TelemetryService() *service.TelemetryService {
	if f.telemetryService == nil {
		var producer service.AlertNotifier
		// Only enqueue when a consumer exists to drain the topic.
		if f.kafkaProducer != nil && f.kafkaConsumer != nil {
			producer = f.kafkaProducer
		}
		f.telemetryService = service.NewTelemetryService(
			f.ActivityRepository(),
			f.SessionRepository(),
			f.PresenceCache(),
			f.IngestLimiter(),
			f.DetectionService(),
			f.ReportingService(),
			producer,
			f.Distributor(),
		)
	}
	return f.telemetryService
}

func (f *Factory) ReportingService() *service.ReportingService {
	if f.reportingService == nil {
		f.reportingService = service.NewReportingService(
			f.EmployeeRepository(),
			f.SessionRepository(),
			f.AlertRepository(),
			f.ActivityRepository(),
		)
	}
	return f.reportingService
}

// IngestWorker returns the Kafka drain loop, or nil when Kafka is absent and
// telemetry is processed inline.
func (f *Factory) IngestWorker() *service.IngestWorker {
	if f.kafkaConsumer == nil {
		return nil
	}
	if f.ingestWorker == nil {
		f.ingestWorker = service.NewIngestWorker(f.kafkaConsumer, f.TelemetryService())
	}
	return f.ingestWorker
}

func (f *Factory) Scheduler() *scheduler.Scheduler {
	if f.fraudScheduler == nil {
		f.fraudScheduler = scheduler.New(
			f.EmployeeRepository(),
			f.DetectionService(),
			f.Distributor(),
			f.config.Detection.EvaluationInterval,
		)
	}
	return f.fraudScheduler
}

// ==============================
// Handlers
// ==============================

func (f *Factory) TelemetryHandler() *handler.TelemetryHandler {
	return handler.NewTelemetryHandler(f.TelemetryService(), f.DetectionService(), util.Get())
}

func (f *Factory) AdminHandler() *handler.AdminHandler {
	return handler.NewAdminHandler(f.ReportingService(), util.Get())
}

func (f *Factory) WSHandler() *handler.WSHandler {
	return handler.NewWSHandler(f.Hub(), f.TelemetryService(), util.Get())
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	} else {
		healthErrors["elasticsearch"] = fmt.Errorf("elasticsearch client not initialized")
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	} else {
		healthErrors["clickhouse"] = fmt.Errorf("clickhouse client not initialized")
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaConsumer != nil {
			if err := f.kafkaConsumer.Close(); err != nil {
				util.Error("Failed to close Kafka consumer", util.ErrorField(err))
			} else {
				util.Info("Kafka consumer closed")
			}
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.Manager {
	return f.tlsManager
}

func (f *Factory) ScyllaClient() *scylla.ScyllaClient {
	return f.scyllaClient
}
