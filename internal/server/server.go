package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/donara/internal/audit"
	auditdomain "github.com/smallbiznis/donara/internal/audit/domain"
	"github.com/smallbiznis/donara/internal/auth"
	authdomain "github.com/smallbiznis/donara/internal/auth/domain"
	"github.com/smallbiznis/donara/internal/auth/session"
	"github.com/smallbiznis/donara/internal/authorization"
	"github.com/smallbiznis/donara/internal/config"
	"github.com/smallbiznis/donara/internal/donation"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/smallbiznis/donara/internal/identity"
	"github.com/smallbiznis/donara/internal/notification"
	"github.com/smallbiznis/donara/internal/observability"
	obsmiddleware "github.com/smallbiznis/donara/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/donara/internal/observability/metrics"
	obstracing "github.com/smallbiznis/donara/internal/observability/tracing"
	"github.com/smallbiznis/donara/internal/orphanage"
	orphanagedomain "github.com/smallbiznis/donara/internal/orphanage/domain"
	"github.com/smallbiznis/donara/internal/payment"
	paymentdomain "github.com/smallbiznis/donara/internal/payment/domain"
	"github.com/smallbiznis/donara/internal/payment/reconcile"
	"github.com/smallbiznis/donara/internal/providers"
	"github.com/smallbiznis/donara/internal/providers/pdf"
	"github.com/smallbiznis/donara/internal/providers/storage"
	"github.com/smallbiznis/donara/internal/ratelimit"
	"github.com/smallbiznis/donara/internal/user"
	userdomain "github.com/smallbiznis/donara/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	providers.Module,
	identity.Module,
	authorization.Module,
	audit.Module,
	auth.Module,
	user.Module,
	orphanage.Module,
	donation.Module,
	payment.Module,
	notification.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// paymentCoordinator is the part of reconcile.Coordinator the transport uses.
type paymentCoordinator interface {
	Create(ctx context.Context, req reconcile.CreateRequest) (reconcile.CreateResult, error)
	HandleInbound(ctx context.Context, kind paymentdomain.ProviderKind, channel paymentdomain.Channel, n paymentdomain.InboundNotification) reconcile.Ack
	HandleRedirect(ctx context.Context, kind paymentdomain.ProviderKind, reference string) reconcile.LandingResult
	RequeryReference(ctx context.Context, kind paymentdomain.ProviderKind, reference string) (reconcile.LandingResult, error)
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	ledger        donationdomain.Service
	payments      paymentCoordinator
	notifications paymentdomain.NotificationRepository
	users         userdomain.Service
	orphanages    orphanagedomain.Service
	adminAuth     authdomain.Service
	sessions      *session.Manager
	authzSvc      authorization.Service
	verifier      identity.Verifier
	limiter       *ratelimit.Limiter
	receipts      pdf.Provider
	receiptStore  storage.ObjectStore
	audit         auditdomain.Service
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Ledger        donationdomain.Service
	Coordinator   *reconcile.Coordinator
	Notifications paymentdomain.NotificationRepository
	UserSvc       userdomain.Service
	OrphanageSvc  orphanagedomain.Service
	AdminAuth     authdomain.Service
	Sessions      *session.Manager
	AuthzSvc      authorization.Service
	Verifier      identity.Verifier
	Receipts      pdf.Provider
	ReceiptStore  storage.ObjectStore
	Audit         auditdomain.Service
	Limiter       *ratelimit.Limiter  `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		log:           p.Log.Named("http"),
		genID:         p.GenID,
		ledger:        p.Ledger,
		payments:      p.Coordinator,
		notifications: p.Notifications,
		users:         p.UserSvc,
		orphanages:    p.OrphanageSvc,
		adminAuth:     p.AdminAuth,
		sessions:      p.Sessions,
		authzSvc:      p.AuthzSvc,
		verifier:      p.Verifier,
		limiter:       p.Limiter,
		receipts:      p.Receipts,
		receiptStore:  p.ReceiptStore,
		audit:         p.Audit,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.registerDonorRoutes()
	s.registerProviderRoutes()
	s.registerPublicRoutes()
	s.registerAdminRoutes()
}

func (s *Server) registerDonorRoutes() {
	donorAuth := s.engine.Group("/auth", s.DonorAuthRequired())
	donorAuth.POST("/login", s.DonorLogin)
	donorAuth.GET("/me", s.DonorMe)

	donors := s.engine.Group("/donors", s.DonorAuthRequired())
	donors.POST("/register", s.RegisterDonor)
	donors.PUT("/device-token", s.UpdateDeviceToken)

	donations := s.engine.Group("/donations")
	donations.POST("", s.DonorAuthRequired(), s.DonationCreateRateLimit(), s.CreateDonation)
	donations.GET("/me", s.DonorAuthRequired(), s.ListMyDonations)
	donations.GET("/:id", s.DonorAuthRequired(), s.GetMyDonation)
	donations.GET("/:id/receipt", s.DonorAuthRequired(), s.GetDonationReceipt)
}

// registerProviderRoutes exposes the unauthenticated provider surfaces. Their
// authenticity is established by the adapters, never by the transport.
func (s *Server) registerProviderRoutes() {
	donations := s.engine.Group("/donations")
	donations.POST("/razorpay/webhook", s.InboundAckBudget(paymentdomain.ProviderRazorpay), s.RazorpayWebhook)
	donations.POST("/phonepe/callback", s.InboundAckBudget(paymentdomain.ProviderPhonePe), s.PhonePeCallback)
	donations.GET("/phonepe/redirect", s.InboundRateLimit(paymentdomain.ProviderPhonePe), s.PhonePeRedirect)
}

func (s *Server) registerPublicRoutes() {
	s.engine.GET("/orphanages", s.ListOrphanages)
	s.engine.GET("/orphanages/:id", s.GetOrphanage)
}

func (s *Server) registerAdminRoutes() {
	s.engine.POST("/admin/setup", s.AdminSetup)
	s.engine.POST("/admin/login", s.AdminLogin)
	s.engine.POST("/admin/logout", s.AdminLogout)

	admin := s.engine.Group("/admin", s.AdminAuthRequired())
	admin.GET("/me", s.AdminMe)

	admin.GET("/orphanages", s.authorizeAdmin(authorization.ObjectOrphanage, authorization.ActionOrphanageUpdate), s.AdminListOrphanages)
	admin.POST("/orphanages", s.authorizeAdmin(authorization.ObjectOrphanage, authorization.ActionOrphanageCreate), s.CreateOrphanage)
	admin.PATCH("/orphanages/:id", s.authorizeAdmin(authorization.ObjectOrphanage, authorization.ActionOrphanageUpdate), s.UpdateOrphanage)
	admin.DELETE("/orphanages/:id", s.authorizeAdmin(authorization.ObjectOrphanage, authorization.ActionOrphanageDelete), s.DeleteOrphanage)
	admin.POST("/orphanages/verify", s.authorizeAdmin(authorization.ObjectOrphanage, authorization.ActionOrphanageVerify), s.VerifyOrphanage)

	admin.GET("/donations", s.authorizeAdmin(authorization.ObjectDonation, authorization.ActionDonationView), s.AdminListDonations)
	admin.GET("/donations/:id", s.authorizeAdmin(authorization.ObjectDonation, authorization.ActionDonationView), s.AdminGetDonation)
	admin.POST("/donations/:id/requery", s.authorizeAdmin(authorization.ObjectDonation, authorization.ActionDonationRequery), s.AdminRequeryDonation)
	admin.GET("/donations/:id/notifications", s.authorizeAdmin(authorization.ObjectNotification, authorization.ActionNotificationView), s.AdminListDonationNotifications)

	admin.GET("/donors", s.authorizeAdmin(authorization.ObjectDonor, authorization.ActionDonorView), s.AdminListDonors)

	admin.GET("/audit-logs", s.authorizeAdmin(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.AdminListAuditLogs)
}
