package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lshigami/cbtengine/config"
	"github.com/lshigami/cbtengine/database"
	adminctrl "github.com/lshigami/cbtengine/internal/controller/admin"
	userctrl "github.com/lshigami/cbtengine/internal/controller/user"
	"github.com/lshigami/cbtengine/internal/logger"
	"github.com/lshigami/cbtengine/internal/middleware"
	"github.com/lshigami/cbtengine/internal/model"
	"github.com/lshigami/cbtengine/internal/repository"
	"github.com/lshigami/cbtengine/internal/service"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// @title CBT Engine API
// @version 1.0
// @description Computer-based tests: definitions, timed attempts, objective and AI-assisted essay scoring, result publication.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger.Init()

	app := fx.New(
		fx.Provide(
			config.NewConfig,
			database.NewDatabase,
			NewGinEngine,
			middleware.NewAuthenticator,
			service.NewSystemClock,
		),

		// Repositories Layer
		fx.Provide(
			repository.NewTestRepository,
			repository.NewAttemptRepository,
			repository.NewGradebookRepository,
		),

		// Services Layer
		fx.Provide(
			service.NewEssayEvaluator,
			func(evaluator service.EssayEvaluator, cfg *config.Config) service.ScoringEngine {
				return service.NewScoringEngine(evaluator, cfg.Evaluator.Concurrency)
			},
			service.NewGradebookMerger,
			service.NewTestDefinitionService,
			service.NewAttemptService,
			service.NewResultsService,
			service.NewDeadlineSweeper,
		),

		// API Controllers Layer
		fx.Provide(
			adminctrl.NewAdminTestController,
			userctrl.NewUserTestController,
		),

		fx.Invoke(AutoMigrateDB),
		fx.Invoke(RegisterRoutesAndStartServer),
		fx.Invoke(StartDeadlineSweeper),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	<-app.Done()
	log.Info().Msg("Application shutting down gracefully...")
	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown did not complete cleanly")
	}
}

func NewGinEngine(cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.GinMode)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		requestID := ""
		if param.Keys != nil {
			requestID, _ = param.Keys["request_id"].(string)
		}
		log.Info().
			Str("request_id", requestID).
			Str("client_ip", param.ClientIP).
			Str("method", param.Method).
			Str("path", param.Path).
			Int("status_code", param.StatusCode).
			Dur("latency", param.Latency).
			Str("error_message", param.ErrorMessage).
			Msg("gin_request")
		return ""
	}))
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// URL: http://localhost:PORT/swagger/index.html
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// RegisterRoutes mounts the admin and student APIs behind bearer authentication.
func RegisterRoutes(
	router *gin.Engine,
	auth *middleware.Authenticator,
	adminTestCtrl *adminctrl.AdminTestController,
	userTestCtrl *userctrl.UserTestController,
) {
	adminAPIGroup := router.Group("/api/v1/admin", auth.RequireAuth(), middleware.RequireRole(model.RoleAdmin, model.RoleStaff))
	{
		tests := adminAPIGroup.Group("/tests")
		tests.POST("", adminTestCtrl.CreateTest)
		tests.GET("", adminTestCtrl.ListTests)
		tests.GET("/:test_id", adminTestCtrl.GetTest)
		tests.PATCH("/:test_id", adminTestCtrl.UpdateTest)
		tests.PUT("/:test_id/status", adminTestCtrl.SetStatus)
		tests.PUT("/:test_id/publication", adminTestCtrl.SetPublication)
		tests.PUT("/:test_id/restrictions", adminTestCtrl.SetRestrictions)
		tests.GET("/:test_id/attempts", adminTestCtrl.ListAttempts)
	}

	userAPIGroup := router.Group("/api/v1", auth.RequireAuth(), middleware.RequireRole(model.RoleStudent))
	{
		userAPIGroup.GET("/tests", userTestCtrl.ListAvailableTests)
		userAPIGroup.POST("/tests/:test_id/attempt", userTestCtrl.BeginAttempt)
		userAPIGroup.GET("/tests/:test_id/attempt", userTestCtrl.ResumeAttempt)
		userAPIGroup.PUT("/tests/:test_id/attempt/progress", userTestCtrl.SaveProgress)
		userAPIGroup.POST("/tests/:test_id/attempt/submit", userTestCtrl.SubmitAttempt)
		userAPIGroup.GET("/tests/:test_id/results", userTestCtrl.GetResults)
	}
}

// RegisterRoutesAndStartServer configures API routes and manages server lifecycle.
func RegisterRoutesAndStartServer(
	lc fx.Lifecycle,
	router *gin.Engine,
	cfg *config.Config,
	auth *middleware.Authenticator,
	adminTestCtrl *adminctrl.AdminTestController,
	userTestCtrl *userctrl.UserTestController,
) {
	RegisterRoutes(router, auth, adminTestCtrl, userTestCtrl)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msgf("CBT engine API starting on port %s", cfg.Server.Port)
			log.Info().Msgf("Swagger UI available at http://localhost:%s/swagger/index.html", cfg.Server.Port)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("Server ListenAndServe failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Server shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	})
}

// StartDeadlineSweeper runs the sweeper for the lifetime of the application.
func StartDeadlineSweeper(lc fx.Lifecycle, sweeper *service.DeadlineSweeper) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				sweeper.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

func AutoMigrateDB(db *gorm.DB) error {
	log.Info().Msg("Running database migrations...")
	err := db.AutoMigrate(
		&model.Test{},
		&model.ObjectiveQuestion{},
		&model.EssayQuestion{},
		&model.Attempt{},
		&model.GradebookEntry{},
	)
	if err != nil {
		log.Error().Err(err).Msg("Database migration failed")
		return err
	}
	log.Info().Msg("Database migration completed successfully.")
	return nil
}
