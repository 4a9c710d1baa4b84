package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mwork_attachments/database"
	"mwork_attachments/internal/attachment"
	"mwork_attachments/internal/config"
	"mwork_attachments/internal/handlers"
	"mwork_attachments/internal/imageprocessor"
	"mwork_attachments/internal/logger"
	"mwork_attachments/internal/middleware"
	"mwork_attachments/internal/repositories"
	"mwork_attachments/internal/routes"
	"mwork_attachments/internal/services"
	"mwork_attachments/internal/storage"
	"mwork_attachments/internal/validator"
	"mwork_attachments/pkg/apperrors"
)

func Run() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger.Init(cfg.Server.Env)
	logger.Info("Logger initialized", "env", cfg.Server.Env)

	logger.Info("Connecting to database...", "driver", cfg.Database.Driver)
	gormDB, err := database.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		logger.Fatal("Failed to get *sql.DB from GORM", "error", err)
	}
	if err = sqlDB.Ping(); err != nil {
		logger.Fatal("Database unavailable", "error", err)
	}
	if err := database.AutoMigrate(gormDB); err != nil {
		logger.Fatal("Migration failed", "error", err)
	}

	storageInstance, err := storage.NewStorage(cfg.StorageConfig())
	if err != nil {
		logger.Fatal("Failed to initialize storage", "error", err)
	}
	logger.Info("Storage initialized", "type", cfg.Storage.Type)

	ginRouter, err := SetupRouter(cfg, gormDB, storageInstance)
	if err != nil {
		logger.Fatal("Failed to set up router", "error", err)
	}

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           ginRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("Server starting", "address", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Server startup error", "error", err)
	}
}

// SetupRouter wires services and handlers onto a new gin engine.
func SetupRouter(cfg *config.Config, gormDB *gorm.DB, storageInstance storage.Storage) (*gin.Engine, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	apperrors.Debug = !cfg.IsProduction()

	serviceContainer, err := initializeServices(cfg, storageInstance)
	if err != nil {
		return nil, err
	}
	appHandlers := initializeHandlers(serviceContainer)

	ginRouter := initializeGinRouter(gormDB, cfg.Attachments.MaxUploadSize)
	routes.RegisterRoutes(ginRouter, appHandlers)
	return ginRouter, nil
}

func initializeServices(cfg *config.Config, storageInstance storage.Storage) (*services.ServiceContainer, error) {
	coordinator, err := attachment.NewCoordinator(attachment.Config{
		Factory:        attachment.NewStorageFactory(storageInstance, imageprocessor.NewProcessor(cfg.Attachments.ImageQuality)),
		Files:          attachment.NewFileFactory(&http.Client{Timeout: 30 * time.Second}, cfg.Attachments.MaxDownloadSize),
		DeleteSentinel: cfg.Attachments.DeleteSentinel,
	})
	if err != nil {
		return nil, err
	}

	kinds, err := services.DeclarationsFromConfig(cfg.Attachments.Kinds)
	if err != nil {
		return nil, fmt.Errorf("attachment declarations: %w", err)
	}
	for kind, decls := range kinds {
		logger.Info("Entity kind declared", "kind", kind, "attachments", len(decls))
	}

	entityRepo := repositories.NewEntityRepository()
	entityService := services.NewEntityService(entityRepo, coordinator, kinds)

	return services.NewServiceContainer(entityService, storageInstance), nil
}

func initializeHandlers(services *services.ServiceContainer) *handlers.AppHandlers {
	customValidator := validator.New()
	baseHandler := handlers.NewBaseHandler(customValidator)

	return &handlers.AppHandlers{
		EntityHandler: handlers.NewEntityHandler(baseHandler, services.EntityService),
		FileHandler:   handlers.NewFileHandler(baseHandler, services.Storage),
	}
}

func initializeGinRouter(db *gorm.DB, maxBody int64) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.BodyLimitMiddleware(maxBody))
	router.Use(middleware.DBMiddleware(db))
	return router
}
