package app

import (
	"gnest/internal/config"
	"gnest/internal/domain/user"
	"gnest/internal/infra/gnest"
	"gnest/internal/infra/kafka"
	"gnest/internal/infra/logger"
	"gnest/internal/infra/minio"
	"gnest/internal/infra/pgsql"
	"gnest/internal/infra/redis"
	"gnest/internal/interfaces/filters"
	"gnest/internal/interfaces/guards"
	"gnest/internal/interfaces/interceptors"
	"gnest/internal/interfaces/middlewares"
	"gnest/internal/pkg/token"
	"gnest/internal/router"
)

func Setup(cfg *config.Config) (*gnest.App, error) {
	logSvc, err := logger.NewLoggerService(logger.Config{
		Dir:   cfg.Log.Dir,
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
		Env:   cfg.App.Env,
	})
	if err != nil {
		return nil, err
	}

	app := gnest.New(
		gnest.WithLogger(logSvc.Log),
		gnest.WithDevMode(cfg.App.Dev),
		gnest.WithDenialStatus(cfg.App.DenialStatus),
		gnest.WithShutdownTimeout(cfg.App.ShutdownTimeout),
	)
	app.Use(middlewares.RequestIDMiddleware(), middlewares.Recovery(logSvc.Log))

	if err := provideInfra(app, cfg); err != nil {
		return nil, err
	}
	app.Provide(
		user.NewUserRepository,
		user.NewUserService,
		throttlerStorage(cfg),
		&interceptors.LoggingInterceptor{},
		// last, so buffered entries are flushed after every other shutdown hook
		logSvc,
	)

	router.Setup(app)
	registerEnhancers(app, cfg)
	return app, nil
}

// 1. 提供底层依赖 (注入到容器); connections are checked in OnModuleInit.
func provideInfra(app *gnest.App, cfg *config.Config) error {
	tokens, err := token.NewService(token.Config{
		Secret:    cfg.Jwt.Secret,
		AccessTTL: cfg.Jwt.AccessTTL,
		Issuer:    cfg.Jwt.Issuer,
	})
	if err != nil {
		return err
	}
	pg, err := pgsql.NewPGSQL(loadPgsqlConfig(cfg))
	if err != nil {
		return err
	}
	store, err := minio.NewClient(minio.Config{
		Endpoint:        cfg.Minio.Endpoint,
		AccessKeyID:     cfg.Minio.AccessKeyID,
		SecretAccessKey: cfg.Minio.SecretAccessKey,
		UseSSL:          cfg.Minio.UseSSL,
		Bucket:          cfg.Minio.Bucket,
		Region:          cfg.Minio.Region,
	})
	if err != nil {
		return err
	}

	app.Provide(
		cfg,
		tokens,
		pg,
		redis.NewClient(redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}),
		store,
		kafka.NewProducer(kafka.Config{Brokers: cfg.Kafka.Brokers}, app.Logger()),
	)
	return nil
}

func loadPgsqlConfig(cfg *config.Config) pgsql.Config {
	return pgsql.Config{
		Host:     cfg.PgSQL.Host,
		Port:     cfg.PgSQL.Port,
		User:     cfg.PgSQL.User,
		Password: cfg.PgSQL.Password,
		DBName:   cfg.PgSQL.DBName,
		SSLMode:  cfg.PgSQL.SSLMode,
		MaxIdle:  cfg.PgSQL.MaxIdle,
		MaxOpen:  cfg.PgSQL.MaxOpen,
		LogLevel: cfg.PgSQL.LogLevel,
	}
}

func throttlerStorage(cfg *config.Config) func(*redis.Client) guards.ThrottlerStorage {
	return func(rdb *redis.Client) guards.ThrottlerStorage {
		if cfg.Throttle.Storage == "redis" {
			return guards.NewRedisThrottlerStorage(rdb)
		}
		return guards.NewMemoryThrottlerStorage()
	}
}

// Guards run throttle → jwt → roles; interceptors wrap audit inside logging.
func registerEnhancers(app *gnest.App, cfg *config.Config) {
	app.UseGlobal(
		gnest.Ref(func(s guards.ThrottlerStorage) *guards.ThrottlerGuard {
			return guards.NewThrottlerGuard(cfg.Throttle.Limit, cfg.Throttle.TTL, s)
		}),
		gnest.Ref(guards.NewJwtAuthGuard),
		guards.RolesGuard{},
	)
	app.UseGlobal(
		gnest.Ref(func(p *kafka.Producer) *interceptors.AuditInterceptor {
			return interceptors.NewAuditInterceptor(p, cfg.Kafka.AuditTopic, app.Logger())
		}),
		gnest.Ref(func(l *interceptors.LoggingInterceptor) gnest.Interceptor { return l }),
	)
	app.UseGlobalPipes(gnest.NewValidationPipe())
	app.UseGlobalFilters(
		filters.LogAll(app.Logger()),
		filters.Validation(),
		filters.RecordNotFound(),
		filters.HttpException(),
	)
}
