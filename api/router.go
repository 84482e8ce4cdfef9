package api

import (
	"net/http"

	"github.com/fyerfyer/pdf-chat/api/handler"
	"github.com/fyerfyer/pdf-chat/api/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(sessionHandler *handler.SessionHandler) *gin.Engine {
	router := gin.New()

	// 应用全局中间件，追踪ID需要最先设置
	router.Use(middleware.SetTraceID())
	router.Use(Cors())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())

	// 在调试模式下记录请求体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
	}

	api := router.Group("/api")
	{
		// 健康检查API
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})

		// 可选模型 - GET /api/models
		api.GET("/models", sessionHandler.ListModels)

		sessions := api.Group("/sessions")
		{
			// 创建会话 - POST /api/sessions
			sessions.POST("", sessionHandler.CreateSession)

			// 会话状态 - GET /api/sessions/:id
			sessions.GET("/:id", sessionHandler.GetSession)

			// 删除会话 - DELETE /api/sessions/:id
			sessions.DELETE("/:id", sessionHandler.DeleteSession)

			// 设置API密钥 - PUT /api/sessions/:id/credential
			sessions.PUT("/:id/credential", sessionHandler.SetCredential)

			// 选择模型 - PUT /api/sessions/:id/model
			sessions.PUT("/:id/model", sessionHandler.SelectModel)

			// 上传文档 - POST /api/sessions/:id/document
			sessions.POST("/:id/document", sessionHandler.UploadDocument)

			// 清除文档 - DELETE /api/sessions/:id/document
			sessions.DELETE("/:id/document", sessionHandler.ResetDocument)

			// 提问 - POST /api/sessions/:id/questions
			sessions.POST("/:id/questions", sessionHandler.AskQuestion)

			// 会话历史 - GET /api/sessions/:id/messages
			sessions.GET("/:id/messages", sessionHandler.ListMessages)
		}
	}

	return router
}

// Cors 跨域资源共享中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
