package server

import (
	"context"
	"fmt"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"marketplace-api/internal/auth"
	"marketplace-api/internal/conversation"
	"marketplace-api/internal/product"
	"marketplace-api/internal/realtime"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Services groups the components served over HTTP
type Services struct {
	Auth          *auth.Service
	Conversations *conversation.Service
	Products      *product.Service
	// Registry receives chats appended over HTTP
	Registry realtime.Registry
	// Realtime serves the websocket endpoint
	Realtime http.Handler
}

// Server defines fields used in HTTP processing
type Server struct {
	logger          *zap.SugaredLogger
	httpServer      *http.Server
	shutdownTimeout time.Duration
	afterShutdown   []func()
}

// NewServer returns new Server struct with provided zap.SugaredLogger and Services
func NewServer(logger *zap.SugaredLogger, services Services, opts ...Option) *Server {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	registerRules()

	h := &handler{
		logger:        logger,
		auth:          services.Auth,
		conversations: services.Conversations,
		products:      services.Products,
		registry:      services.Registry,
	}

	cfg.httpServer.Handler = newEngine(logger, h, services, cfg)

	return &Server{
		logger:          logger,
		httpServer:      cfg.httpServer,
		shutdownTimeout: cfg.shutdownTimeout,
		afterShutdown:   cfg.afterShutdown,
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// newEngine registers every route of the API
func newEngine(logger *zap.SugaredLogger, h *handler, services Services, cfg config) *gin.Engine {
	engine := gin.New()
	engine.Use(recoverer(logger), log(logger.Desugar()), cors.New(corsConfig(cfg.allowedOrigins)))
	engine.NoRoute(func(c *gin.Context) {
		abort(c, http.StatusNotFound, "Not found!")
	})

	isAuth := authenticate(services.Auth, logger)
	jsonBody := enforceJSON()
	upload := limitBody(cfg.maxUploadSize)

	a := engine.Group("/auth")
	a.POST("/sign-up", jsonBody, h.signUp)
	a.POST("/verify", jsonBody, h.verifyEmail)
	a.POST("/verify-token", isAuth, h.resendVerification)
	a.POST("/sign-in", jsonBody, h.signIn)
	a.POST("/refresh-token", jsonBody, h.refreshToken)
	a.POST("/sign-out", isAuth, jsonBody, h.signOut)
	a.GET("/profile", isAuth, h.profile)
	a.POST("/forget-password", jsonBody, h.forgetPassword)
	a.POST("/verify-password-reset-token", jsonBody, h.grantValid)
	a.POST("/reset-password", jsonBody, h.resetPassword)
	a.PATCH("/update-profile", isAuth, jsonBody, h.updateProfile)
	a.PATCH("/update-avatar", isAuth, upload, h.updateAvatar)
	a.GET("/profile/:profileId", isAuth, h.publicProfile)

	p := engine.Group("/product")
	p.POST("/list", isAuth, upload, h.listProduct)
	p.PATCH("/:productId", isAuth, upload, h.updateProduct)
	p.DELETE("/:productId", isAuth, h.deleteProduct)
	p.DELETE("/image/:productId/:imageId", isAuth, h.deleteProductImage)
	p.GET("/detail/:productId", isAuth, h.productDetail)
	p.GET("/by-category/:category", isAuth, h.productsByCategory)
	p.GET("/latest", h.latestProducts)
	p.GET("/listings", isAuth, h.listings)

	c := engine.Group("/conversation", isAuth)
	c.GET("/with/:peerId", h.getOrCreateConversation)
	c.GET("/chats/:conversationId", h.conversation)
	c.POST("/chats/:conversationId", jsonBody, h.appendChat)
	c.GET("/last-chats", h.lastChats)
	c.PATCH("/seen/:conversationId/:peerId", h.markSeen)

	if services.Realtime != nil {
		engine.GET("/socket-message", gin.WrapH(services.Realtime))
	}

	return engine
}

// Handler returns the http.Handler serving the API
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and implements graceful shutdown via goroutine waiting for signals
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		s.logger.Info("Shutting down HTTP server")

		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	for _, f := range s.afterShutdown {
		f()
	}

	return nil
}
