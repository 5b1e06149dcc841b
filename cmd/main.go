package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"

	"sheetchat-backend/config"
	"sheetchat-backend/database"
	_ "sheetchat-backend/docs" // This will be created by swag
	"sheetchat-backend/internal/controller"
	"sheetchat-backend/internal/elasticsearch"
	"sheetchat-backend/internal/filestate"
	"sheetchat-backend/internal/ingest"
	"sheetchat-backend/internal/kafka"
	"sheetchat-backend/internal/postgres"
	"sheetchat-backend/internal/scheduler"
	"sheetchat-backend/internal/service"
	"sheetchat-backend/internal/store"
)

// @title           SheetChat API
// @version         1.0
// @description     Ask natural-language questions about uploaded tabular datasets. The pipeline resolves vague vocabulary to real columns, routes the query deterministically and computes exact aggregates with explicit guardrails.

// @contact.name   API Support Team
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /
// @schemes   http https

// @tag.name         query
// @tag.description  Natural-language query operations

// @tag.name         datasets
// @tag.description  Dataset metadata operations

func main() {
	var wg sync.WaitGroup

	app := fx.New(
		// Core Dependencies
		fx.Provide(
			NewConfig,
		),
		// Infrastructure Dependencies
		fx.Provide(
			database.NewDB,
			NewGinEngine,
			postgres.ProvidePostgresPool,
			postgres.NewDatasetRepository,
			elasticsearch.NewElasticRowStore,
			elasticsearch.NewSnippetRepository,
			kafka.NewKafkaRowProducer,
			kafka.NewKafkaRowConsumer,
			NewFileStateManager,
			ingest.NewCSVParser,
			store.NewInMemoryClarificationStore,
			service.NewIntentService,
			service.NewHistoryService,
			service.NewQueryService,
			service.NewUploadScanService,
			service.NewRowConsumerService,
			controller.NewQueryController,
		),
		fx.Invoke(
			RegisterAPIRoutes,
			RegisterScheduler,
			func(lc fx.Lifecycle, consumerService service.RowConsumerService) {
				startRowConsumer(lc, &wg, consumerService)
			},
		),
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}
	<-app.Done()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStop()
	log.Info().Msg("Shutting down application...")
	if err := app.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("Forced shutdown due to error or timeout")
	}

	log.Info().Msg("Waiting for background goroutines to finish...")
	wg.Wait()
	log.Info().Msg("All background processes finished. Exiting.")
}

func NewConfig() (*config.Config, error) {
	return config.NewConfig()
}

func NewGinEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

func RegisterAPIRoutes(
	lifecycle fx.Lifecycle,
	router *gin.Engine,
	cfg *config.Config,
	queryController *controller.QueryController,
) {
	if queryController != nil {
		controller.RegisterQueryRoutes(router, queryController)
	} else {
		log.Warn().Msg("QueryController not provided, skipping query API routes.")
	}

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msgf("Starting HTTP server on port %s", cfg.Server.Port)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("HTTP server ListenAndServe error")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Shutting down HTTP server...")
			return server.Shutdown(ctx)
		},
	})
}

// --- Factory Functions ---

func NewFileStateManager(cfg *config.Config) filestate.Manager {
	return filestate.NewManager(cfg.FileState.FilePath)
}

// --- Invoker Functions ---

func RegisterScheduler(lc fx.Lifecycle, cfg *config.Config, uploadScanSvc service.UploadScanService) {
	scheduler.NewScheduler(lc, cfg, uploadScanSvc)
}

// startRowConsumer runs the RowConsumerService in a goroutine tied to the fx
// lifecycle.
func startRowConsumer(lc fx.Lifecycle, wg *sync.WaitGroup, consumerService service.RowConsumerService) {
	wg.Add(1)
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info().Msg("Starting Row Consumer goroutine")
			go consumerService.Run(ctx, wg)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			log.Info().Msg("Signaling Row Consumer goroutine to stop...")
			cancel()
			return nil
		},
	})
}
