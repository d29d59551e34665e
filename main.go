package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/deepfake-detect/internal/classifier"
	"github.com/example/deepfake-detect/internal/grpcclient"
	"github.com/example/deepfake-detect/internal/handlers"
	"github.com/example/deepfake-detect/internal/logging"
	"github.com/example/deepfake-detect/internal/repository"
	"github.com/example/deepfake-detect/internal/upload"
	"github.com/example/deepfake-detect/internal/usecase"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger, err := logging.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	store, err := upload.NewStore(getEnv("UPLOAD_DIR", "uploads"), getEnvBool("KEEP_UPLOADS", false), logger)
	if err != nil {
		logger.Fatal("failed to prepare upload directory", zap.Error(err))
	}

	clf, closeClassifier := initClassifier(ctx, logger)
	defer closeClassifier()

	var repo usecase.DetectionRepository
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		detectionRepo := repository.NewDetectionRepository(initDatabase(ctx, dsn, logger), logger)
		if err := detectionRepo.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		repo = detectionRepo
	}

	var cache usecase.Cache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cache = usecase.NewRedisCache(initRedis(ctx, addr, logger))
	}

	uc := usecase.NewDetectionUseCase(clf, repo, cache, logger)

	maxUpload := getEnvInt64("MAX_UPLOAD_BYTES", handlers.DefaultMaxUploadSize)
	r := gin.Default()
	r.MaxMultipartMemory = maxUpload
	r.Use(handlers.CORSMiddleware(strings.Split(getEnv("CORS_ORIGINS", "*"), ",")))
	handlers.RegisterRoutes(r, handlers.NewHandler(uc, store, logger, maxUpload))

	addr := getEnv("HTTP_ADDR", ":5000")
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("deepfake detection API listening",
		zap.String("addr", addr),
		zap.String("upload_dir", store.Dir()),
		zap.Bool("database", repo != nil),
		zap.Bool("cache", cache != nil))
	if err := serveHTTPServer(server, nil, 15*time.Second, logger, nil); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// initClassifier loads the model once for the whole process. With
// INFERENCE_ADDR set, inference is delegated to a remote service instead.
func initClassifier(ctx context.Context, logger *zap.Logger) (classifier.Client, func()) {
	if addr := os.Getenv("INFERENCE_ADDR"); addr != "" {
		client, conn, err := grpcclient.DialClassifier(ctx, addr, logger)
		if err != nil {
			logger.Fatal("failed to connect to inference service", zap.Error(err))
		}
		logger.Info("using remote classifier", zap.String("addr", addr))
		return client, func() { conn.Close() }
	}

	model, err := classifier.NewONNXClassifier(classifier.ONNXConfig{
		ModelPath:   getEnv("MODEL_PATH", "models/meso4_df.onnx"),
		LibraryPath: os.Getenv("ONNXRUNTIME_LIB"),
		InputName:   getEnv("MODEL_INPUT_NAME", "input_1"),
		OutputName:  getEnv("MODEL_OUTPUT_NAME", "dense_2"),
	}, logger)
	if err != nil {
		logger.Fatal("failed to load model", zap.Error(err))
	}
	return model, model.Close
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}
	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(pingCtx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

// serveHTTPServer runs server until it fails or a shutdown signal arrives,
// then drains in-flight requests for up to shutdownTimeout. A nil listener
// means ListenAndServe; a nil signalCh means SIGINT/SIGTERM.
func serveHTTPServer(server *http.Server, listener net.Listener, shutdownTimeout time.Duration, logger *zap.Logger, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	if signalCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signalCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-signalCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvInt64(key string, fallback int64) int64 {
	value, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
