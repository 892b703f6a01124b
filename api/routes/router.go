package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stockroomhq/stockroom-backend/api/controllers"
	"github.com/stockroomhq/stockroom-backend/api/middleware"
	"github.com/stockroomhq/stockroom-backend/internal/assignments"
	"github.com/stockroomhq/stockroom-backend/internal/auth"
	"github.com/stockroomhq/stockroom-backend/internal/categories"
	"github.com/stockroomhq/stockroom-backend/internal/employees"
	"github.com/stockroomhq/stockroom-backend/internal/history"
	"github.com/stockroomhq/stockroom-backend/internal/products"
	"github.com/stockroomhq/stockroom-backend/internal/sales"
	"github.com/stockroomhq/stockroom-backend/internal/scan"
	zohowebhook "github.com/stockroomhq/stockroom-backend/internal/webhooks/zoho"
	"github.com/stockroomhq/stockroom-backend/pkg/config"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	pkgredis "github.com/stockroomhq/stockroom-backend/pkg/redis"
	"github.com/stockroomhq/stockroom-backend/pkg/zoho"
)

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	DBPinger    controllers.Pinger
	RedisClient *pkgredis.Client

	AuthService       auth.Service
	ProductService    products.Service
	ScanService       scan.Service
	AssignmentService assignments.Service
	SalesService      sales.Service
	CategoryService   categories.Service
	EmployeeService   employees.Service
	HistoryRecorder   *history.Recorder

	ZohoClient       *zoho.Client
	WebhookProcessor *zohowebhook.Processor

	// MetricsHandler serves the scrape endpoint; nil disables it.
	MetricsHandler http.Handler
	// UploadsDir serves stored photos and QR images when non-empty.
	UploadsDir string
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DBPinger, redisPinger(deps.RedisClient)))
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	if deps.UploadsDir != "" {
		fileServer := http.StripPrefix("/uploads/", http.FileServer(http.Dir(deps.UploadsDir)))
		r.Get("/uploads/*", fileServer.ServeHTTP)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/zoho/invoice", controllers.ZohoInvoiceWebhook(deps.WebhookProcessor, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/login", controllers.AuthLogin(deps.AuthService, logg))
	})

	// Zoho OAuth handshake happens in a browser, outside the SPA session.
	r.Route("/api/zoho", func(r chi.Router) {
		r.Get("/login", controllers.ZohoLogin(deps.ZohoClient, logg))
		r.Get("/callback", controllers.ZohoCallback(deps.ZohoClient, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore(deps.RedisClient), logg))

		r.With(middleware.RequireRole(string(enums.UserRoleAdmin), logg)).
			Post("/auth/register", controllers.AuthRegister(deps.AuthService, logg))

		r.Route("/products", func(r chi.Router) {
			r.Post("/", controllers.ProductCreate(deps.ProductService, logg))
			r.Get("/", controllers.ProductList(deps.ProductService, logg))
			r.Get("/today", controllers.ProductListToday(deps.ProductService, logg))
			r.Get("/lookup/{uniqueId}", controllers.ProductGetByUniqueID(deps.ProductService, logg))
			r.Patch("/{productId}", controllers.ProductUpdate(deps.ProductService, logg))
			r.With(middleware.RequireRole(string(enums.UserRoleAdmin), logg)).
				Delete("/{productId}", controllers.ProductDelete(deps.ProductService, logg))
		})

		r.Route("/scan", func(r chi.Router) {
			r.Post("/out", controllers.ScanOut(deps.ScanService, logg))
			r.Post("/in", controllers.ScanIn(deps.ScanService, logg))
			r.Get("/history", controllers.ScanHistory(deps.ScanService, logg))
		})

		r.Route("/assignments", func(r chi.Router) {
			r.Post("/", controllers.AssignmentCreate(deps.AssignmentService, logg))
			r.Get("/", controllers.AssignmentList(deps.AssignmentService, logg))
			r.Get("/{assignmentId}", controllers.AssignmentGet(deps.AssignmentService, logg))
			r.Post("/{assignmentId}/release", controllers.AssignmentRelease(deps.AssignmentService, logg))
		})

		r.Route("/sales", func(r chi.Router) {
			r.Post("/", controllers.SaleCreate(deps.SalesService, logg))
			r.Get("/", controllers.SaleList(deps.SalesService, logg))
			r.Get("/payment-status/{invoiceId}", controllers.SaleInvoicePaymentStatus(deps.SalesService, logg))
			r.Get("/{saleId}", controllers.SaleGet(deps.SalesService, logg))
			r.Get("/{saleId}/payment-status", controllers.SalePaymentStatus(deps.SalesService, logg))
		})

		r.Route("/categories", func(r chi.Router) {
			r.Post("/", controllers.CategoryCreate(deps.CategoryService, logg))
			r.Get("/", controllers.CategoryList(deps.CategoryService, logg))
			r.Delete("/{categoryId}", controllers.CategoryDelete(deps.CategoryService, logg))
			r.Post("/{categoryId}/subcategories", controllers.SubcategoryCreate(deps.CategoryService, logg))
		})
		r.Get("/subcategories", controllers.SubcategoryList(deps.CategoryService, logg))

		r.Route("/employees", func(r chi.Router) {
			r.Post("/", controllers.EmployeeCreate(deps.EmployeeService, logg))
			r.Get("/", controllers.EmployeeList(deps.EmployeeService, logg))
			r.Get("/{employeeId}", controllers.EmployeeGet(deps.EmployeeService, logg))
			r.Patch("/{employeeId}", controllers.EmployeeUpdate(deps.EmployeeService, logg))
			r.Post("/{employeeId}/deactivate", controllers.EmployeeDeactivate(deps.EmployeeService, logg))
		})

		r.Get("/history", controllers.ProductHistoryList(deps.HistoryRecorder, logg))
		r.Get("/reports/valuation", controllers.StockValuation(deps.ProductService, logg))
		r.Get("/zoho/customers", controllers.ZohoCustomers(deps.ZohoClient, logg))
	})

	return r
}

func redisPinger(client *pkgredis.Client) controllers.Pinger {
	if client == nil {
		return nil
	}
	return client
}

func idempotencyStore(client *pkgredis.Client) pkgredis.IdempotencyStore {
	if client == nil {
		return nil
	}
	return client
}
