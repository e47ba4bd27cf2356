package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	auditrepo "github.com/bimatrack/bimatrack-backend/internal/audit/repository"
	auditsvc "github.com/bimatrack/bimatrack-backend/internal/audit/service"
	compliancehandler "github.com/bimatrack/bimatrack-backend/internal/compliance/handler"
	compliancerepo "github.com/bimatrack/bimatrack-backend/internal/compliance/repository"
	compliancesvc "github.com/bimatrack/bimatrack-backend/internal/compliance/service"
	coveragehandler "github.com/bimatrack/bimatrack-backend/internal/coverage/handler"
	coveragerepo "github.com/bimatrack/bimatrack-backend/internal/coverage/repository"
	coveragesvc "github.com/bimatrack/bimatrack-backend/internal/coverage/service"
	dfhandler "github.com/bimatrack/bimatrack-backend/internal/dynamicfields/handler"
	dfrepo "github.com/bimatrack/bimatrack-backend/internal/dynamicfields/repository"
	dfsvc "github.com/bimatrack/bimatrack-backend/internal/dynamicfields/service"
	fleethandler "github.com/bimatrack/bimatrack-backend/internal/fleet/handler"
	fleetrepo "github.com/bimatrack/bimatrack-backend/internal/fleet/repository"
	fleetsvc "github.com/bimatrack/bimatrack-backend/internal/fleet/service"
	identityhandler "github.com/bimatrack/bimatrack-backend/internal/identity/handler"
	identityrepo "github.com/bimatrack/bimatrack-backend/internal/identity/repository"
	identitysvc "github.com/bimatrack/bimatrack-backend/internal/identity/service"
	notificationhandler "github.com/bimatrack/bimatrack-backend/internal/notifications/handler"
	notificationrepo "github.com/bimatrack/bimatrack-backend/internal/notifications/repository"
	notificationsvc "github.com/bimatrack/bimatrack-backend/internal/notifications/service"
	reporthandler "github.com/bimatrack/bimatrack-backend/internal/reports/handler"
	reportrepo "github.com/bimatrack/bimatrack-backend/internal/reports/repository"
	reportsvc "github.com/bimatrack/bimatrack-backend/internal/reports/service"
	tenanthandler "github.com/bimatrack/bimatrack-backend/internal/tenants/handler"
	tenantrepo "github.com/bimatrack/bimatrack-backend/internal/tenants/repository"
	tenantsvc "github.com/bimatrack/bimatrack-backend/internal/tenants/service"
	"github.com/bimatrack/bimatrack-backend/pkg/actor"
	"github.com/bimatrack/bimatrack-backend/pkg/config"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/httputil"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
	"github.com/bimatrack/bimatrack-backend/pkg/messaging"
	"github.com/bimatrack/bimatrack-backend/pkg/session"
)

func main() {
	cfg, err := config.LoadWithValidation("server")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("server", cfg.Server.Environment)
	log.Info().Msg("starting BimaTrack server")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid redis url")
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	// The broker is optional in development. Without it, lifecycle events
	// are dropped and everything else keeps working.
	var publisher coveragesvc.EventPublisher = messaging.NoopPublisher{}
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq unavailable, events disabled")
	} else {
		defer rmq.Close()
		p, err := messaging.NewPublisher(rmq, messaging.ExchangeComplianceEvents, "server", log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		publisher = p
	}

	sessions := session.NewStore(rdb, cfg.Session.TTL)
	csrf := session.NewCSRFIssuer(cfg.Session.Secret, cfg.Session.TTL)

	auditRepo := auditrepo.NewAuditRepository(db)
	historyRepo := auditrepo.NewHistoryRepository(db)
	recorder := auditsvc.NewRecorder(auditRepo, historyRepo, log)

	authority := identitysvc.NewAuthority(recorder, log)

	userRepo := identityrepo.NewUserRepository(db)
	tenantRepo := tenantrepo.NewTenantRepository(db)
	customerRepo := fleetrepo.NewCustomerRepository(db)
	vehicleRepo := fleetrepo.NewVehicleRepository(db)
	ownershipRepo := fleetrepo.NewOwnershipRepository(db)
	policyRepo := coveragerepo.NewPolicyRepository(db)
	permitRepo := coveragerepo.NewPermitRepository(db)
	paymentRepo := coveragerepo.NewPaymentRepository(db)
	definitionRepo := dfrepo.NewDefinitionRepository(db)
	valueRepo := dfrepo.NewValueRepository(db)
	notificationRepo := notificationrepo.NewNotificationRepository(db)
	summaryRepo := compliancerepo.NewSummaryRepository(db)
	reportRepo := reportrepo.NewReportRepository(db)

	authService := identitysvc.NewAuthService(userRepo, sessions, csrf, rdb, recorder, cfg.Auth, log)
	userService := identitysvc.NewUserService(userRepo, sessions, authority, db, recorder, log)
	tenantService := tenantsvc.NewTenantService(tenantRepo, db, recorder, log)
	fleetService := fleetsvc.NewFleetService(customerRepo, vehicleRepo, ownershipRepo, authority, db, recorder, publisher, log)
	notificationService := notificationsvc.NewNotificationService(notificationRepo, userRepo, publisher, log)
	coverageService := coveragesvc.NewCoverageService(policyRepo, permitRepo, paymentRepo, vehicleRepo, authority, db, recorder, publisher, notificationService, log)
	dynamicFieldService := dfsvc.NewDynamicFieldService(definitionRepo, valueRepo, authority, db, recorder, log)
	complianceService := compliancesvc.NewComplianceService(policyRepo, permitRepo, vehicleRepo, summaryRepo, authority, cfg.Compliance, log)
	reportService := reportsvc.NewReportService(reportRepo, authority, log)

	authHandler := identityhandler.NewAuthHandler(authService, cfg.Session, cfg.Server.Environment, log)
	userHandler := identityhandler.NewUserHandler(userService, log)
	tenantHandler := tenanthandler.NewTenantHandler(tenantService, log)
	customerHandler := fleethandler.NewCustomerHandler(fleetService, log)
	vehicleHandler := fleethandler.NewVehicleHandler(fleetService, log)
	policyHandler := coveragehandler.NewPolicyHandler(coverageService, recorder, log)
	permitHandler := coveragehandler.NewPermitHandler(coverageService, recorder, log)
	paymentHandler := coveragehandler.NewPaymentHandler(coverageService, log)
	dynamicFieldHandler := dfhandler.NewDynamicFieldHandler(dynamicFieldService, log)
	notificationHandler := notificationhandler.NewNotificationHandler(notificationService, log)
	complianceHandler := compliancehandler.NewComplianceHandler(complianceService, log)
	reportHandler := reporthandler.NewReportHandler(reportService, log)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", httputil.CSRFHeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		health := map[string]interface{}{
			"status":   "healthy",
			"service":  "server",
			"database": db.Health(req.Context()),
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/auth", authHandler.PublicRoutes())

		r.Group(func(r chi.Router) {
			r.Use(httputil.SessionAuth(sessions))
			r.Use(httputil.CSRF(csrf))

			r.Mount("/auth/session", authHandler.ProtectedRoutes())

			// Platform administration. Super admins only; no tenant bound.
			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRoles(actor.RoleSuperAdmin))
				r.Mount("/admin/tenants", tenantHandler.Routes())
			})

			// Users: tenant admins manage their own staff, super admins
			// provision anyone, so no tenant binding here either.
			r.Mount("/users", userHandler.Routes())

			// Tenant business surface.
			r.Group(func(r chi.Router) {
				r.Use(httputil.TenantBinding(tenantService))

				r.Mount("/customers", customerHandler.Routes())
				r.Mount("/vehicles", vehicleHandler.Routes())
				r.Mount("/policies", policyHandler.Routes())
				r.Mount("/permits", permitHandler.Routes())
				r.Mount("/payments", paymentHandler.Routes())
				r.Mount("/field-definitions", dynamicFieldHandler.Routes())
				r.Mount("/fields", dynamicFieldHandler.ValueRoutes())
				r.Mount("/notifications", notificationHandler.Routes())
				r.Mount("/compliance", complianceHandler.Routes())
				r.Mount("/reports", reportHandler.Routes())
			})
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
