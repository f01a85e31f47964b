package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/supportbot/storebot-go/internal/config"
	"github.com/supportbot/storebot-go/internal/middleware"
	"go.uber.org/zap"
)

// Handlers 路由用到的全部处理器
type Handlers struct {
	API       *APIHandler
	Chat      *ChatHandler
	WebSocket *WebSocketHandler
}

// NewRouter 注册中间件与路由
func NewRouter(cfg config.ServerConfig, h Handlers, identity middleware.IdentityResolver, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Tracing(cfg.Name))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.AccessLog(logger))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/api/health", h.API.Health)
	r.POST("/api/auth/login", h.API.Login)

	// WebSocket 端点，鉴权在握手时完成
	r.GET("/ws", h.WebSocket.HandleWebSocket)

	chat := r.Group("/api/chat", middleware.Auth(identity, logger))
	h.Chat.Register(chat)

	return r
}

// Server HTTP 服务
type Server struct {
	cfg    config.ServerConfig
	addr   string
	engine http.Handler
	logger *zap.Logger
}

// NewServer 创建 HTTP 服务
func NewServer(cfg config.ServerConfig, addr string, engine http.Handler, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, addr: addr, engine: engine, logger: logger}
}

// Run 启动服务并阻塞到 ctx 取消，随后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP 服务启动", zap.String("addr", s.addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("正在关闭 HTTP 服务")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
