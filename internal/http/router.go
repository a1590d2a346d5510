package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenwu/saas-platform/provisioning-service/internal/config"
	"github.com/wenwu/saas-platform/provisioning-service/internal/service"
)

type Server struct {
	router  *gin.Engine
	handler *Handler
	cfg     *config.Config
	db      *pgxpool.Pool
}

// 全局速率限制器: 每用户每分钟最多 30 次请求
var userRateLimiter = NewRateLimiter(30, time.Minute)

// 配置渲染速率限制器: 每用户每分钟最多 10 次（防止订阅轮询滥用）
var artifactRateLimiter = NewRateLimiter(10, time.Minute)

func NewServer(cfg *config.Config, db *pgxpool.Pool, provisionService *service.ProvisionService, accountService *service.AccountService) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	handler := NewHandler(provisionService, accountService)

	s := &Server{
		router:  router,
		handler: handler,
		cfg:     cfg,
		db:      db,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "provisioning-service",
		})
	})

	// Internal API - called by the order service and operator tooling
	internal := s.router.Group("/api/internal")
	internal.Use(InternalAuthMiddleware(s.cfg.InternalSecret))
	{
		// Fulfillment
		internal.POST("/provision", s.handler.ProvisionOrder)
		internal.POST("/deprovision", s.handler.Deprovision)

		// Provision status and audit trail
		internal.GET("/provisions/:id", s.handler.GetProvision)
		internal.GET("/provisions/:id/logs", s.handler.ListProvisionLogs)
		internal.GET("/order-lines/:order_line_id/provisions", s.handler.ListOrderLineProvisions)

		// Operator actions
		internal.POST("/provisions/:id/retry", s.handler.RetryProvision)
		internal.POST("/provisions/:id/qa", s.handler.RecordQA)
		internal.POST("/inbounds/sync", s.handler.SyncInbounds)
	}

	// User API - requires JWT authentication
	user := s.router.Group("/api/v1")
	user.Use(JWTAuthMiddleware(s.cfg.JWT.SecretKey))
	user.Use(RateLimitMiddleware(userRateLimiter)) // 用户 API 速率限制
	{
		user.GET("/my/accounts", s.handler.GetMyAccounts)
		user.POST("/my/accounts/:id/traffic/sync", s.handler.SyncMyAccountTraffic)

		// 配置渲染使用更严格的速率限制
		artifacts := user.Group("/my/accounts/:id")
		artifacts.Use(RateLimitMiddleware(artifactRateLimiter))
		{
			artifacts.GET("/share-link", s.handler.GetShareLink)
			artifacts.GET("/config", s.handler.GetJSONConfig)
			artifacts.GET("/clash", s.handler.GetClashConfig)
		}
	}
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
