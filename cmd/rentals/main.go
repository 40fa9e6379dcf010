package main

import (
	directoryrepo "rentro/internal/directory/repository"
	"rentro/internal/events"
	fleethandler "rentro/internal/fleet/handler"
	fleetrepo "rentro/internal/fleet/repository"
	fleetservice "rentro/internal/fleet/service"
	ledgerrepo "rentro/internal/ledger/repository"
	ledgerservice "rentro/internal/ledger/service"
	rentalhandler "rentro/internal/rentals/handler"
	rentalrepo "rentro/internal/rentals/repository"
	rentalservice "rentro/internal/rentals/service"
	rentalvalidator "rentro/internal/rentals/validator"
	"rentro/pkg/app"
	"rentro/pkg/clock"
	"rentro/pkg/config"
	kafka_config "rentro/pkg/kafka/config"
)

const ServiceName = "rentals"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Rentals service")

	serverApp := app.NewApplication(cfg)

	publisher := initPublisher(cfg, serverApp)
	rentalSvc, vehicleSvc, ledgerSvc := initServices(cfg, publisher)

	serverApp.SetApp(
		rentalhandler.NewRentalHandler(rentalSvc, ledgerSvc, cfg.Log),
		fleethandler.NewVehicleHandler(vehicleSvc, cfg.Log),
	)
	serverApp.Run()
}

func initPublisher(cfg *config.Config, serverApp *app.Application) events.Publisher {
	if !cfg.EventsEnabled {
		cfg.Log.Info("Event publishing disabled")
		return events.NewNopPublisher()
	}

	kafkaCfg := kafka_config.Load()
	if err := kafkaCfg.Validate(); err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}

	publisher, err := events.NewKafkaPublisher(kafkaCfg)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize Kafka publisher", "error", err)
	}
	serverApp.OnShutdown(publisher.Close)

	cfg.Log.Info("Event publishing enabled", "topic", events.Topic)
	return publisher
}

func initServices(cfg *config.Config, publisher events.Publisher) (rentalservice.RentalService, fleetservice.VehicleService, ledgerservice.LedgerService) {
	clk := clock.System()

	rentalRepo := rentalrepo.NewMongoRentalRepository(cfg)
	lockRepo := rentalrepo.NewRentalLockRepository(cfg)
	vehicleRepo := fleetrepo.NewMongoVehicleRepository(cfg)
	directoryRepo := directoryrepo.NewMongoDirectoryRepository(cfg)
	paymentRepo := ledgerrepo.NewMongoPaymentRepository(cfg)

	ledgerSvc := ledgerservice.NewLedgerService(paymentRepo, clk, cfg)
	rentalSvc := rentalservice.NewRentalService(
		rentalRepo,
		lockRepo,
		vehicleRepo,
		directoryRepo,
		ledgerSvc,
		publisher,
		rentalvalidator.NewRentalValidator(cfg.Log),
		clk,
		cfg,
	)
	vehicleSvc := fleetservice.NewVehicleService(vehicleRepo, rentalRepo, clk, cfg)

	cfg.Log.Info("Rental services initialized", "database", cfg.MongoDatabaseName)
	return rentalSvc, vehicleSvc, ledgerSvc
}
