package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	auditrepo "github.com/bimatrack/bimatrack-backend/internal/audit/repository"
	auditsvc "github.com/bimatrack/bimatrack-backend/internal/audit/service"
	coveragerepo "github.com/bimatrack/bimatrack-backend/internal/coverage/repository"
	coveragesvc "github.com/bimatrack/bimatrack-backend/internal/coverage/service"
	fleetrepo "github.com/bimatrack/bimatrack-backend/internal/fleet/repository"
	identityrepo "github.com/bimatrack/bimatrack-backend/internal/identity/repository"
	identitysvc "github.com/bimatrack/bimatrack-backend/internal/identity/service"
	notificationrepo "github.com/bimatrack/bimatrack-backend/internal/notifications/repository"
	notificationsvc "github.com/bimatrack/bimatrack-backend/internal/notifications/service"
	reconcilersvc "github.com/bimatrack/bimatrack-backend/internal/reconciler/service"
	tenantrepo "github.com/bimatrack/bimatrack-backend/internal/tenants/repository"
	"github.com/bimatrack/bimatrack-backend/pkg/config"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
	"github.com/bimatrack/bimatrack-backend/pkg/messaging"
)

func main() {
	cfg, err := config.LoadWithValidation("reconciler")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("reconciler", cfg.Server.Environment)
	log.Info().Msg("starting BimaTrack reconciler")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	var publisher coveragesvc.EventPublisher = messaging.NoopPublisher{}
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq unavailable, events disabled")
	} else {
		defer rmq.Close()
		p, err := messaging.NewPublisher(rmq, messaging.ExchangeComplianceEvents, "reconciler", log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		publisher = p
	}

	auditRepo := auditrepo.NewAuditRepository(db)
	historyRepo := auditrepo.NewHistoryRepository(db)
	recorder := auditsvc.NewRecorder(auditRepo, historyRepo, log)

	authority := identitysvc.NewAuthority(recorder, log)

	tenantRepo := tenantrepo.NewTenantRepository(db)
	userRepo := identityrepo.NewUserRepository(db)
	vehicleRepo := fleetrepo.NewVehicleRepository(db)
	policyRepo := coveragerepo.NewPolicyRepository(db)
	permitRepo := coveragerepo.NewPermitRepository(db)
	paymentRepo := coveragerepo.NewPaymentRepository(db)
	notificationRepo := notificationrepo.NewNotificationRepository(db)

	notificationService := notificationsvc.NewNotificationService(notificationRepo, userRepo, publisher, log)
	coverageService := coveragesvc.NewCoverageService(policyRepo, permitRepo, paymentRepo, vehicleRepo, authority, db, recorder, publisher, notificationService, log)

	reconciler := reconcilersvc.NewReconciler(
		tenantRepo, policyRepo, permitRepo,
		coverageService, notificationService,
		cfg.Reconciler, cfg.Compliance, log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reconciler.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down reconciler")
	cancel()
	log.Info().Msg("reconciler stopped")
}
