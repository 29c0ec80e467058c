package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/jhoicas/emissor-fiscal/docs"
	"github.com/jhoicas/emissor-fiscal/internal/application/emission"
	"github.com/jhoicas/emissor-fiscal/internal/application/usecase"
	inframetrics "github.com/jhoicas/emissor-fiscal/internal/infrastructure/metrics"
	infrapdf "github.com/jhoicas/emissor-fiscal/internal/infrastructure/pdf"
	"github.com/jhoicas/emissor-fiscal/internal/infrastructure/postgres"
	"github.com/jhoicas/emissor-fiscal/internal/infrastructure/sefaz"
	"github.com/jhoicas/emissor-fiscal/internal/infrastructure/storage"
	httpRouter "github.com/jhoicas/emissor-fiscal/internal/interfaces/http"
	"github.com/jhoicas/emissor-fiscal/pkg/config"
	"github.com/jhoicas/emissor-fiscal/pkg/logger"
	"github.com/jhoicas/emissor-fiscal/pkg/secret"
)

// certificateWarnWindow antecedência do aviso de vencimento do certificado A1.
const certificateWarnWindow = 30 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("carregar configuração: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicação")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexão com PostgreSQL")
	}
	defer pool.Close()

	if cfg.DB.Migrate {
		if err := postgres.RunMigrations(pool); err != nil {
			log.Fatal().Err(err).Msg("migrações")
		}
		log.Info().Msg("migrações aplicadas")
	}

	box, err := secret.New(cfg.Secrets.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("chave FISCAL_SECRET_KEY")
	}
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("armazenamento de artefatos")
	}
	client, err := sefaz.NewClient(cfg.SEFAZ, log.Component("sefaz"))
	if err != nil {
		log.Fatal().Err(err).Msg("cliente SEFAZ")
	}
	metrics := inframetrics.New(nil)

	profileRepo := postgres.NewFiscalProfileRepository(pool)
	sequenceRepo := postgres.NewNumberSequenceRepository(pool)
	reservationRepo := postgres.NewNumberReservationRepository(pool)
	documentRepo := postgres.NewTaxDocumentRepository(pool)
	saleRepo := postgres.NewSaleRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	municipalityRepo := postgres.NewMunicipalityRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	credentials := emission.NewCredentials(profileRepo, store, box, client)
	allocator := emission.NewNumberAllocator(txRunner, metrics, log.Component("allocator"))
	recorder := emission.NewRecorder(txRunner, documentRepo, store, metrics, log.Component("recorder"))
	orchestrator := emission.NewOrchestrator(
		credentials, saleRepo, customerRepo, documentRepo, txRunner,
		allocator, recorder, client, metrics, cfg.SEFAZ.VerProc, log.Component("orchestrator"),
	)
	cancelUC := emission.NewCancelUseCase(documentRepo, txRunner, credentials, client, allocator, recorder, store, log.Component("cancel"))
	voidUC := emission.NewVoidUseCase(reservationRepo, credentials, client, metrics, log.Component("void"))
	profileUC := usecase.NewProfileUseCase(profileRepo, sequenceRepo, municipalityRepo, store, box, client, log.Component("profile"))
	historyUC := usecase.NewHistoryUseCase(documentRepo, store, infrapdf.NewMarotoPDFGenerator(), log.Component("history"))

	poller := emission.NewPoller(documentRepo, credentials, client, recorder, metrics, emission.PollerConfig{
		Interval:    cfg.Worker.PollInterval,
		Batch:       cfg.Worker.PollBatch,
		Concurrency: cfg.Worker.PollConcurrency,
		Lease:       cfg.Worker.PollLease,
	}, log.Component("poller"))
	reconciler := emission.NewReconciler(documentRepo, credentials, client, allocator, recorder, metrics, emission.ReconcilerConfig{
		Interval:   cfg.Worker.ReconcileInterval,
		StaleAfter: cfg.Worker.StaleAfter,
		Batch:      cfg.Worker.PollBatch,
	}, log.Component("reconciler"))

	var workers sync.WaitGroup
	workers.Add(2)
	go func() { defer workers.Done(); poller.Run(ctx) }()
	go func() { defer workers.Done(); reconciler.Run(ctx) }()

	expiring, err := profileRepo.ListExpiringCertificates(ctx, time.Now().Add(certificateWarnWindow))
	if err != nil {
		log.Warn().Err(err).Msg("consulta de certificados a vencer")
	}
	for issuerID, notAfter := range expiring {
		log.Warn().Str("issuer_id", issuerID).Time("not_after", notAfter).Msg("certificado A1 vence em breve")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.SEFAZ.TransmitBudget() + 10*time.Second,
		IdleTimeout:  time.Second * 60,
		BodyLimit:    1 << 20,
	})
	app.Use(recover.New())

	// Swagger UI em http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Emissor Fiscal API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	httpRouter.Router(app, httpRouter.RouterDeps{
		Profile:   profileUC,
		Emission:  orchestrator,
		History:   historyUC,
		Cancel:    cancelUC,
		Numbers:   voidUC,
		JWTSecret: cfg.JWT.Secret,
		JWTIssuer: cfg.JWT.Issuer,
		Log:       log.Component("http"),
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("sinal de desligamento recebido, encerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.SEFAZ.TransmitBudget()+5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("desligamento do servidor")
	}
	stop()
	workers.Wait()

	log.Info().Msg("aplicação encerrada")
}
