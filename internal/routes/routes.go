// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"servo-commissioning/internal/config"
	"servo-commissioning/internal/database"
	"servo-commissioning/internal/handler"
	"servo-commissioning/internal/middleware"
	"servo-commissioning/internal/service"
	"servo-commissioning/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config               *config.Config
	logger               *zap.Logger
	db                   *database.DB
	ports                handler.PortLister
	eventBus             *handler.EventBus
	commissioningService *service.CommissioningService
}

// NewRouter creates a new router instance. db may be nil.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db *database.DB,
	ports handler.PortLister,
	eventBus *handler.EventBus,
	commissioningService *service.CommissioningService,
) *Router {
	return &Router{
		config:               config,
		logger:               logger,
		db:                   db,
		ports:                ports,
		eventBus:             eventBus,
		commissioningService: commissioningService,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.db, r.ports, r.config, r.logger)
	commissioningHandler := handler.NewCommissioningHandler(r.commissioningService, r.logger)
	wsHandler := handler.NewWebSocketHandler(r.eventBus, r.logger)

	healthHandler.RegisterRoutes(router.Group(""))

	apiV1 := router.Group("/api/v1")
	commissioningHandler.RegisterRoutes(apiV1)

	r.addWebSocketRoutes(router, wsHandler)
	r.addDocumentationRoutes(router)

	r.logger.Info("All routes configured successfully")
}

// addWebSocketRoutes sets up WebSocket routes
func (r *Router) addWebSocketRoutes(router *gin.Engine, handler *handler.WebSocketHandler) {
	ws := router.Group("/ws")
	{
		ws.GET("/progress", handler.HandleProgressConnection)
	}
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
