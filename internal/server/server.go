package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/bizledger/internal/audit"
	auditdomain "github.com/smallbiznis/bizledger/internal/audit/domain"
	"github.com/smallbiznis/bizledger/internal/config"
	"github.com/smallbiznis/bizledger/internal/customer"
	customerdomain "github.com/smallbiznis/bizledger/internal/customer/domain"
	"github.com/smallbiznis/bizledger/internal/dashboard"
	dashboarddomain "github.com/smallbiznis/bizledger/internal/dashboard/domain"
	"github.com/smallbiznis/bizledger/internal/document"
	documentdomain "github.com/smallbiznis/bizledger/internal/document/domain"
	"github.com/smallbiznis/bizledger/internal/events"
	"github.com/smallbiznis/bizledger/internal/invoice"
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
	"github.com/smallbiznis/bizledger/internal/observability"
	obsmiddleware "github.com/smallbiznis/bizledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/bizledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/bizledger/internal/observability/tracing"
	"github.com/smallbiznis/bizledger/internal/payment"
	paymentdomain "github.com/smallbiznis/bizledger/internal/payment/domain"
	"github.com/smallbiznis/bizledger/internal/product"
	productdomain "github.com/smallbiznis/bizledger/internal/product/domain"
	"github.com/smallbiznis/bizledger/internal/providers"
	"github.com/smallbiznis/bizledger/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	audit.Module,
	events.Module,
	customer.Module,
	product.Module,
	invoice.Module,
	payment.Module,
	dashboard.Module,
	providers.Module,
	document.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Amounts are bound into `any`; numbers must reach money.Coerce as
	// json.Number rather than float64.
	binding.EnableDecoderUseNumber = true

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(classifyErrorForLog))
	r.Use(httpMetrics.Middleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	log          *zap.Logger
	invoiceSvc   invoicedomain.Service
	paymentSvc   paymentdomain.Service
	customerSvc  customerdomain.Service
	productSvc   productdomain.Service
	auditSvc     auditdomain.Service
	dashboardSvc dashboarddomain.Service
	documentSvc  documentdomain.Service
	writeLimiter *ratelimit.WriteLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Log          *zap.Logger
	InvoiceSvc   invoicedomain.Service
	PaymentSvc   paymentdomain.Service
	CustomerSvc  customerdomain.Service
	ProductSvc   productdomain.Service
	AuditSvc     auditdomain.Service
	DashboardSvc dashboarddomain.Service
	DocumentSvc  documentdomain.Service
	WriteLimiter *ratelimit.WriteLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		log:          p.Log.Named("http.server"),
		invoiceSvc:   p.InvoiceSvc,
		paymentSvc:   p.PaymentSvc,
		customerSvc:  p.CustomerSvc,
		productSvc:   p.ProductSvc,
		auditSvc:     p.AuditSvc,
		dashboardSvc: p.DashboardSvc,
		documentSvc:  p.DocumentSvc,
		writeLimiter: p.WriteLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.WriteRateLimit())

	// -------- Invoices --------
	api.GET("/invoices", s.ListInvoices)
	api.POST("/invoices", s.CreateInvoice)
	api.GET("/invoices/overdue", s.ListOverdueInvoices)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.PATCH("/invoices/:id", s.UpdateInvoice)
	api.DELETE("/invoices/:id", s.DeleteInvoice)
	api.POST("/invoices/:id/approve", s.ApproveInvoice)
	api.POST("/invoices/:id/cancel", s.CancelInvoice)
	api.GET("/invoices/:id/view", s.GetInvoiceView)
	api.GET("/invoices/:id/pdf", s.DownloadInvoicePDF)

	// -------- Invoice Items --------
	api.POST("/invoices/:id/items", s.AddInvoiceItem)
	api.PATCH("/invoices/:id/items/:itemId", s.UpdateInvoiceItem)
	api.DELETE("/invoices/:id/items/:itemId", s.DeleteInvoiceItem)

	// -------- Payments --------
	api.POST("/invoices/:id/payments", s.AddPayment)
	api.GET("/invoices/:id/payments", s.ListInvoicePayments)
	api.GET("/payments/:id", s.GetPaymentByID)
	api.GET("/payments/:id/receipt", s.DownloadPaymentReceipt)

	// -------- Customers --------
	api.GET("/customers", s.ListCustomers)
	api.POST("/customers", s.CreateCustomer)
	api.GET("/customers/:id", s.GetCustomerByID)

	// -------- Products --------
	api.GET("/products", s.ListProducts)
	api.POST("/products", s.CreateProduct)
	api.GET("/products/:id", s.GetProductByID)

	// -------- Dashboard --------
	api.GET("/dashboard/summary", s.GetDashboardSummary)
	api.GET("/dashboard/customers", s.ListCustomerBalances)
	api.GET("/dashboard/activity", s.ListDashboardActivity)

	// -------- Audit --------
	api.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
