package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/ratebench-backend/internal/http"
	httpH "github.com/yungbote/ratebench-backend/internal/http/handlers"
	httpMW "github.com/yungbote/ratebench-backend/internal/http/middleware"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health        *httpH.HealthHandler
	Configuration *httpH.ConfigurationHandler
	Run           *httpH.RunHandler
	Rating        *httpH.RatingHandler
}

func wireHandlers(log *logger.Logger, clients Clients, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:        httpH.NewHealthHandler(clients.DB),
		Configuration: httpH.NewConfigurationHandler(services.Configuration),
		Run:           httpH.NewRunHandler(services.GenerationRun),
		Rating:        httpH.NewRatingHandler(services.Rating),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey),
	}
}

func wireRouter(log *logger.Logger, cfg Config, clients Clients, handlers Handlers, middleware Middleware) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:                  log,
		ServiceName:          serviceName,
		AllowedOrigins:       cfg.AllowedOrigins,
		Metrics:              clients.Metrics,
		AuthMiddleware:       middleware.Auth,
		ConfigurationHandler: handlers.Configuration,
		RunHandler:           handlers.Run,
		RatingHandler:        handlers.Rating,
		HealthHandler:        handlers.Health,
	})
}
