package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gustavolhonda/Backend-Liven/config"
	"github.com/gustavolhonda/Backend-Liven/constant"
	jobHandler "github.com/gustavolhonda/Backend-Liven/handler"
	"github.com/gustavolhonda/Backend-Liven/pkg/rabbitmq"
	"github.com/gustavolhonda/Backend-Liven/quota"
	"github.com/gustavolhonda/Backend-Liven/repository"
	"github.com/gustavolhonda/Backend-Liven/service"
	"github.com/gustavolhonda/Backend-Liven/storage"
	"github.com/gustavolhonda/Backend-Liven/transcribe"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	repo := repository.NewRepo(cfg.DB)
	gate := quota.NewGate(repo, cfg.Quota.DailyLimit)
	transcriber := transcribe.NewOpenAITranscriber(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.Pipeline.CallTimeout)

	var store storage.MediaStore
	var opts []service.Option

	switch constant.DispatchMode(cfg.Pipeline.DispatchMode) {
	case constant.DispatchModeAMQP:
		conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
		if err != nil {
			zerolog.Ctx(ctx).Fatal().Err(err).Msg("NewRabbitMQConn")
		}
		publisher, err := rabbitmq.NewPublisher(conn, cfg.Queue)
		if err != nil {
			zerolog.Ctx(ctx).Fatal().Err(err).Msg("NewPublisher")
		}
		opts = append(opts, service.WithDispatcher(publisher))
		store = storage.NewMinioStore(cfg.Storage, cfg.MinIOBucket)

		svc := service.NewService(repo, gate, store, transcriber, cfg, opts...)

		consumer := rabbitmq.NewConsumer(conn, cfg.Queue, cfg.Server.Workers, jobHandler.TranscriptionJobHandler)
		go func() {
			err := consumer.Consume(ctx, jobHandler.ServiceDependencies{TranscriptionService: svc})
			if err != nil && !errors.Is(err, context.Canceled) {
				zerolog.Ctx(ctx).Error().Err(err).Msg("transcription consumer error")
			}
		}()

		serve(ctx, cfg, svc, gate, repo)
	default:
		localStore, err := storage.NewLocalStore(cfg.Uploads.Dir)
		if err != nil {
			zerolog.Ctx(ctx).Fatal().Err(err).Msg("NewLocalStore")
		}
		store = localStore

		svc := service.NewService(repo, gate, store, transcriber, cfg, opts...)
		serve(ctx, cfg, svc, gate, repo)

		// Let in-flight inline jobs reach a terminal state before exiting.
		svc.Wait()
	}
}

func serve(ctx context.Context, cfg *config.Config, svc service.Service, gate *quota.Gate, repo repository.JobRepository) {
	r := gin.Default()
	r.Use(loggerContext(ctx))
	addHealth(r)

	h := jobHandler.NewHandler(svc, gate, repo, cfg.Uploads)
	h.Register(r, jobHandler.StaticIdentity(cfg.Auth.Tokens))

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

// loggerContext carries the process logger into every request context, so
// handlers and the pipeline can use zerolog.Ctx.
func loggerContext(base context.Context) gin.HandlerFunc {
	logger := zerolog.Ctx(base)
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Next()
	}
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
