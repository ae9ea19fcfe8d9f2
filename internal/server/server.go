// Package server exposes the rent core over a thin gin HTTP API.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	auditdomain "github.com/cityofhelsinki/mvj/internal/audit/domain"
	"github.com/cityofhelsinki/mvj/internal/clock"
	"github.com/cityofhelsinki/mvj/internal/config"
	filescandomain "github.com/cityofhelsinki/mvj/internal/filescan/domain"
	invoicedomain "github.com/cityofhelsinki/mvj/internal/invoice/domain"
	invoiceservice "github.com/cityofhelsinki/mvj/internal/invoice/service"
	leasedomain "github.com/cityofhelsinki/mvj/internal/lease/domain"
	"github.com/cityofhelsinki/mvj/internal/observability"
	rentdomain "github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/cityofhelsinki/mvj/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("server",
	fx.Provide(New),
	fx.Invoke(Start),
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Config       config.Config
	Clock        clock.Clock
	Rents        rentdomain.Service
	Leases       leasedomain.Service
	Invoices     invoicedomain.Service
	Explanations *invoiceservice.ExplanationService
	Files        filescandomain.Service
	Audit        auditdomain.Service
	AuditExport  auditdomain.ExportService
	Queue        worker.Queue
	Metrics      *observability.Metrics `optional:"true"`
}

type Server struct {
	db             *gorm.DB
	log            *zap.Logger
	cfg            config.Config
	clock          clock.Clock
	rentSvc        rentdomain.Service
	leaseSvc       leasedomain.Service
	invoiceSvc     invoicedomain.Service
	explanationSvc *invoiceservice.ExplanationService
	fileSvc        filescandomain.Service
	auditSvc       auditdomain.Service
	auditExportSvc auditdomain.ExportService
	queue          worker.Queue
	metrics        *observability.Metrics
	engine         *gin.Engine
}

func New(p Params) *Server {
	if !p.Config.App.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		db:             p.DB,
		log:            p.Log.Named("server"),
		cfg:            p.Config,
		clock:          p.Clock,
		rentSvc:        p.Rents,
		leaseSvc:       p.Leases,
		invoiceSvc:     p.Invoices,
		explanationSvc: p.Explanations,
		fileSvc:        p.Files,
		auditSvc:       p.Audit,
		auditExportSvc: p.AuditExport,
		queue:          p.Queue,
		metrics:        p.Metrics,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.Health)
	r.GET("/readyz", s.Readiness)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}
	r.GET("/swagger/doc.json", s.SwaggerDoc)

	api := r.Group("/api/v1", s.ActorFromHeaders())

	api.GET("/rents/:id/amount", s.GetRentAmount)
	api.POST("/rents/:id/payable_rent", s.CalculatePayableRent)

	api.GET("/leases/:id/rent_amount", s.GetLeaseRentAmount)
	api.GET("/leases/:id/tenant_shares", s.GetTenantShares)
	api.POST("/leases/:id/invoices/calculate", s.CalculateInvoices)
	api.POST("/leases/:id/invoices/generate", s.GenerateInvoices)
	api.POST("/leases/:id/attachments", s.UploadAttachment)

	api.POST("/invoices", s.CreateInvoice)
	api.GET("/invoices/:id", s.GetInvoice)
	api.GET("/invoices/:id/explanation", s.ExplainInvoice)
	api.POST("/invoices/:id/payments", s.AddPayment)

	api.GET("/files/:kind/:id", s.OpenFile)
	api.POST("/files/:kind/:id/scan", s.RequestFileScan)

	api.DELETE("/entities/:kind/:id", s.DeleteEntity)
	api.POST("/jobs/:name", s.EnqueueJob)
	api.GET("/audit/export", s.ExportAuditLogs)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.String()))
			s.log.Error("request failed", fields...)
			return
		}
		s.log.Debug("request", fields...)
	}
}

// Health handles GET /healthz
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start serves HTTP on app.http_addr for the lifetime of the fx app.
func Start(lc fx.Lifecycle, s *Server, cfg config.Config) {
	srv := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			s.log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
