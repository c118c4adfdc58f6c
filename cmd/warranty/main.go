package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bitfantasy/nimo-warranty/internal/config"
	"github.com/bitfantasy/nimo-warranty/internal/middleware"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/events"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/handler"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/repository"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/repository/memory"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting nimo-warranty service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("storage", cfg.Storage.Driver),
	)

	deps := service.Deps{Logger: zapLogger}
	var ready []func(ctx context.Context) error

	switch cfg.Storage.Driver {
	case "memory":
		store := memory.NewStore()
		if err := seedDemo(context.Background(), store); err != nil {
			zapLogger.Fatal("Failed to seed demo data", zap.Error(err))
		}
		deps.Store = store
		deps.Reader = store
		zapLogger.Warn("Using in-memory storage, data is lost on restart")
	default:
		db, err := initDatabase(cfg.Database)
		if err != nil {
			zapLogger.Fatal("Failed to connect to database", zap.Error(err))
		}
		if err := entity.AutoMigrate(db); err != nil {
			zapLogger.Fatal("Failed to auto-migrate warranty tables", zap.Error(err))
		}
		zapLogger.Info("Warranty database migration completed")

		sqlDB, err := db.DB()
		if err != nil {
			zapLogger.Fatal("Failed to get database instance", zap.Error(err))
		}
		deps.Store = repository.NewRepositories(db)
		deps.Reader = repository.NewSQLStockReader(sqlx.NewDb(sqlDB, "pgx"))
		ready = append(ready, sqlDB.PingContext)
	}

	// Redis 只做库存快照缓存，不可用时直接读库
	if addr := cfg.Redis.Addr(); addr != "" {
		rdb := initRedis(cfg.Redis)
		defer rdb.Close()
		deps.Redis = rdb
		ready = append(ready, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name("nimo-warranty"),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				zapLogger.Warn("NATS disconnected", zap.Error(err))
			}),
		)
		if err != nil {
			zapLogger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer nc.Drain()
		deps.Publisher = events.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix)

		// 账本异常告警落日志，便于值班检索
		if _, err := events.Subscribe(nc, cfg.NATS.SubjectPrefix+events.SubjectLedgerCorruption, func(_ context.Context, e events.Event) {
			zapLogger.Error("ledger corruption event",
				zap.Bool("alert", true),
				zap.String("warehouse_id", e.EntityID),
				zap.String("reason", e.Attributes["reason"]),
			)
		}); err != nil {
			zapLogger.Warn("Failed to subscribe ledger alerts", zap.Error(err))
		}
		zapLogger.Info("NATS event publisher initialized", zap.String("url", cfg.NATS.URL))
	}

	if cfg.MinIO.Endpoint != "" {
		mc, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			zapLogger.Warn("Failed to init MinIO client, attachments disabled", zap.Error(err))
		} else {
			deps.Objects = mc
		}
	}

	services := service.NewServices(deps, service.Options{
		StaleReservationAge: cfg.Warranty.StaleReservationAge,
		SweepInterval:       cfg.Warranty.SweepInterval,
		SweepBatchSize:      cfg.Warranty.SweepBatchSize,
		SnapshotTTL:         cfg.Warranty.SnapshotTTL,
		AttachmentBucket:    cfg.MinIO.Bucket,
	})
	handlers := handler.NewHandlers(services)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if services.Sweeper.Enabled() {
		go services.Sweeper.Start(workerCtx)
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "nimo-warranty"})
	})
	router.GET("/health/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		for _, check := range ready {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "nimo-warranty"})
	})
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":    "nimo-warranty",
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	v1 := router.Group("/api/v1/warranty")
	v1.Use(middleware.JWTAuth(cfg.JWT.Secret))
	if cfg.RateLimit.Enabled {
		v1.Use(middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst).Middleware())
	}
	handler.RegisterRoutes(v1, handlers)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")
	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}
	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// seedDemo 内存模式下的演示主数据：一个车型、一台车、两个仓库与两名技师
func seedDemo(ctx context.Context, store repository.Store) error {
	purchased := time.Now().AddDate(-2, 0, 0)
	steps := []func() error{
		func() error {
			return store.Catalog().CreateModel(ctx, &entity.VehicleModel{ID: "demo-model", Name: "Nimo S", GeneralWarrantyDuration: 36, GeneralWarrantyMileage: 100000})
		},
		func() error {
			return store.Catalog().CreateVehicle(ctx, &entity.Vehicle{VIN: "LNBSCU3H5JR000001", ModelID: "demo-model", OwnerName: "演示车主", PurchaseDate: &purchased})
		},
		func() error {
			return store.Catalog().CreateTypeComponent(ctx, &entity.TypeComponent{ID: "demo-battery", SKU: "BAT-75", Name: "动力电池模组", Category: "battery"})
		},
		func() error {
			return store.Catalog().CreateWarrantyComponent(ctx, &entity.WarrantyComponent{
				ID: "demo-wc-battery", VehicleModelID: "demo-model", TypeComponentID: "demo-battery", Quantity: 2, DurationMonth: 96, MileageLimit: 160000,
			})
		},
		func() error {
			return store.Warehouses().Create(ctx, &entity.Warehouse{ID: "demo-sc", Name: "演示服务中心", Context: entity.WarehouseContextServiceCenter, Priority: 10})
		},
		func() error {
			return store.Warehouses().Create(ctx, &entity.Warehouse{ID: "demo-hq", Name: "总部中心仓", Context: entity.WarehouseContextCompany, Priority: 100})
		},
		func() error {
			return store.Technicians().Create(ctx, &entity.Technician{ID: "demo-tech-1", Name: "李工", WarehouseID: "demo-sc", Active: true})
		},
		func() error {
			return store.Technicians().Create(ctx, &entity.Technician{ID: "demo-tech-2", Name: "王工", WarehouseID: "demo-sc", Active: true})
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
