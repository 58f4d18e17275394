package apiserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/postline/postline/pkg/apiserver/handlers"
	"github.com/postline/postline/pkg/apiserver/middleware"
	"github.com/postline/postline/pkg/auth"
	"github.com/postline/postline/pkg/config"
	"github.com/postline/postline/pkg/eventbus"
	"github.com/postline/postline/pkg/gateway"
	"github.com/postline/postline/pkg/intake"
	"github.com/postline/postline/pkg/lifecycle"
	"github.com/postline/postline/pkg/publisher"
	"github.com/postline/postline/pkg/scheduler"
	"github.com/postline/postline/pkg/store/postgres"
)

type Server struct {
	router *gin.Engine
	db     *postgres.Store
	cfg    *config.Config
	logger *zap.Logger
	tokens *auth.TokenManager

	lifecycle *lifecycle.Service
	intake    *intake.Service
	sched     *scheduler.Scheduler
}

// NewServer wires the HTTP surface over the lifecycle, intake and
// scheduling services. The scheduler instance here serves requeue and
// queue-listing requests only; the background loop runs in its own
// binary.
func NewServer(db *postgres.Store, gw gateway.Gateway, cfg *config.Config, logger *zap.Logger, notifier *eventbus.PostNotifier) *Server {
	var gdb *gorm.DB
	if db != nil {
		gdb = db.DB()
	}

	pub := publisher.New(gdb, gw, cfg.Publish, notifier, logger)

	s := &Server{
		db:        db,
		cfg:       cfg,
		logger:    logger,
		tokens:    auth.NewTokenManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL),
		lifecycle: lifecycle.NewService(gdb, pub, gw, notifier, cfg.Telegram.FeatureViews, logger),
		intake:    intake.NewService(gdb, notifier, logger),
		sched:     scheduler.New(gdb, pub, cfg.Scheduler, notifier, logger),
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		api.Use(middleware.Auth(s.tokens))

		channelHandler := handlers.NewChannelHandler(postgres.NewChannelRepository(s.gormDB()), s.logger)
		api.POST("/channels", middleware.RequireReviewer(), channelHandler.Create)
		api.GET("/channels", channelHandler.List)
		api.GET("/channels/:id", channelHandler.Get)

		postHandler := handlers.NewPostHandler(s.lifecycle, s.logger)
		api.POST("/channels/:id/posts", middleware.RequireWriter(), postHandler.Create)
		api.GET("/channels/:id/posts", postHandler.List)
		api.GET("/posts/:id", postHandler.Get)
		api.PATCH("/posts/:id", middleware.RequireWriter(), postHandler.Update)
		api.DELETE("/posts/:id", middleware.RequireReviewer(), postHandler.Delete)
		api.POST("/posts/:id/submit", middleware.RequireWriter(), postHandler.Submit)
		api.POST("/posts/:id/approve", middleware.RequireReviewer(), postHandler.Approve)
		api.POST("/posts/:id/reject", middleware.RequireReviewer(), postHandler.Reject)
		api.POST("/posts/:id/schedule", middleware.RequireReviewer(), postHandler.Schedule)
		api.POST("/posts/:id/publish", middleware.RequireReviewer(), postHandler.Publish)
		api.GET("/posts/:id/comments", postHandler.ListComments)

		suggestionHandler := handlers.NewSuggestionHandler(s.intake, s.logger)
		api.POST("/channels/:id/suggestions", suggestionHandler.Submit)
		api.GET("/channels/:id/suggestions", suggestionHandler.List)
		api.POST("/suggestions/:id/accept", middleware.RequireReviewer(), suggestionHandler.Accept)
		api.POST("/suggestions/:id/reject", middleware.RequireReviewer(), suggestionHandler.Reject)

		scheduleHandler := handlers.NewScheduleHandler(s.sched, s.logger)
		api.GET("/schedule", scheduleHandler.ListScheduled)
		api.POST("/posts/:id/requeue", middleware.RequireReviewer(), scheduleHandler.Requeue)
	}

	s.router = r
}

func (s *Server) gormDB() *gorm.DB {
	if s.db == nil {
		return nil
	}
	return s.db.DB()
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
