package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/framelink/internal/api/middleware"
)

// ConsoleRoutes 返回控制台路由注册函数，供 httpserver.New 挂载
func ConsoleRoutes(h *ConsoleHandler, apiKeys []string, logger *zap.Logger) func(*gin.Engine) {
	return func(r *gin.Engine) {
		v1 := r.Group("/api/v1")
		v1.Use(middleware.APIKeyAuth(apiKeys, logger))

		v1.GET("/schemas", h.ListSchemas)
		v1.GET("/schemas/:name", h.GetSchema)
		v1.POST("/schemas/:name/encode", h.Encode)
		v1.POST("/schemas/:name/decode", h.Decode)

		v1.GET("/channels", h.ListChannels)
		v1.POST("/channels/:name/send", h.Send)
	}
}
