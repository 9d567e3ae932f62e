package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-vitals/internal/aggregator"
	"wisefido-vitals/internal/config"
	"wisefido-vitals/internal/consumer"
	"wisefido-vitals/internal/discovery"
	"wisefido-vitals/internal/journal"
	"wisefido-vitals/internal/repository"
	"wisefido-vitals/internal/scheduler"
	"wisefido-vitals/internal/state"
	"wisefido-vitals/owl-common/database"
	mqttcommon "wisefido-vitals/owl-common/mqtt"
	rediscommon "wisefido-vitals/owl-common/redis"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VitalsService 体征汇聚服务
type VitalsService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
	consumer    *consumer.MQTTConsumer
	scheduler   *scheduler.WindowScheduler
}

// NewVitalsService 创建体征汇聚服务
func NewVitalsService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*VitalsService, error) {
	// 初始化数据库
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 初始化 Redis（住户缓存与跌倒事件流；不可用时住户查询直接走数据库）
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		logger.Warn("Redis not reachable, patient cache and fall events degraded", zap.Error(err))
	}

	// 初始化 MQTT（同一 broker 上可能运行多个实例，client id 加随机后缀）
	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = fmt.Sprintf("%s-%s", cfg.MQTT.ClientID, uuid.NewString()[:8])
	mqttClient, err := mqttcommon.NewClient(&mqttCfg, logger)
	if err != nil {
		database.Close(db)
		rediscommon.Close(redisClient)
		return nil, fmt.Errorf("failed to create MQTT client: %w", err)
	}

	j, err := journal.New(cfg.Vitals.DataDir, logger)
	if err != nil {
		mqttClient.Disconnect()
		database.Close(db)
		rediscommon.Close(redisClient)
		return nil, err
	}

	// 内存表
	rooms := state.NewRoomStateStore()
	falls := state.NewFallTracker(nil)
	devices := state.NewDeviceRegistry()
	window := state.NewWindowAccumulator()

	// Repository
	vitalsRepo := repository.NewVitalsRepository(db, logger)
	resolver := repository.NewPatientResolver(
		vitalsRepo,
		repository.NewRedisKVStore(redisClient, "vitals:"),
		cfg.Vitals.PatientCacheTTL,
		cfg.Vitals.FallbackPatientID,
		logger,
	)

	announcer := discovery.NewAnnouncer(
		mqttClient,
		devices,
		cfg.Vitals.Discovery.Prefix,
		cfg.Vitals.Discovery.StatePrefix,
		cfg.MQTT.QoS,
		logger,
	)

	mqttConsumer := consumer.NewMQTTConsumer(
		consumer.Topics{Vitals: cfg.Vitals.Topics.Vitals, Status: cfg.Vitals.Topics.Status},
		mqttClient,
		rooms,
		falls,
		devices,
		announcer,
		j,
		consumer.Options{QoS: cfg.MQTT.QoS, DuplicateSamples: cfg.Vitals.DuplicateSamples},
		logger,
	)

	fallEvents := aggregator.NewRedisFallEventPublisher(redisClient, cfg.Vitals.FallStream, cfg.Vitals.FallStreamMaxLen)
	persister := aggregator.NewPersister(window, resolver, vitalsRepo, nil, logger)
	fallAggregator := aggregator.NewFallAggregator(rooms, falls, resolver, vitalsRepo, fallEvents, nil, logger)

	windowScheduler := scheduler.NewWindowScheduler(
		rooms,
		window,
		j,
		announcer,
		persister,
		fallAggregator,
		scheduler.Options{RetentionDays: cfg.Vitals.RetentionDays},
		logger,
	)

	return &VitalsService{
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		mqttClient:  mqttClient,
		consumer:    mqttConsumer,
		scheduler:   windowScheduler,
	}, nil
}

// Start 启动服务（阻塞直到 ctx 取消）
func (s *VitalsService) Start(ctx context.Context) error {
	s.logger.Info("Starting vitals service",
		zap.Strings("topics", s.config.Topics()),
		zap.String("data_dir", s.config.Vitals.DataDir),
		zap.Bool("duplicate_samples", s.config.Vitals.DuplicateSamples),
	)

	if err := s.consumer.Start(); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	<-ctx.Done()
	return nil
}

// Stop 停止服务：先停调度（等待运行中的周期结束），再断开消息与存储连接
func (s *VitalsService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping vitals service")

	stopCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.scheduler.Stop(stopCtx); err != nil {
		s.logger.Error("Error stopping scheduler", zap.Error(err))
	}

	if err := s.consumer.Stop(); err != nil {
		s.logger.Error("Error stopping consumer", zap.Error(err))
	}
	s.mqttClient.Disconnect()

	// 关闭 Redis
	if s.redisClient != nil {
		if err := rediscommon.Close(s.redisClient); err != nil {
			s.logger.Error("Error closing redis connection", zap.Error(err))
		}
	}

	// 关闭数据库
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}

	s.logger.Info("Vitals service stopped")
	return nil
}
