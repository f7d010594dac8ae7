// README: Entry point; loads config, wires the ride service and serves the dispatch API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"wecare/internal/config"
	httptransport "wecare/internal/http"
	"wecare/internal/http/ws"
	"wecare/internal/infra"
	"wecare/internal/maps"
	"wecare/internal/modules/ride"
)

func main() {
	configPath := flag.String("config", os.Getenv("WECARE_CONFIG"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := infra.NewLogger("wecare-api", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("wecare-api stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.Firebase.ProjectID == "" {
		return fmt.Errorf("WECARE_FIREBASE_PROJECT_ID is required")
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		return fmt.Errorf("firebase init: %w", err)
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		return err
	}
	defer dbPool.Close()
	if cfg.DB.Migrations != "" {
		if err := infra.ApplyMigrations(ctx, dbPool, cfg.DB.Migrations); err != nil {
			return err
		}
	}

	hub := ws.NewHub(log)
	opts := []ride.Option{ride.WithDriverNotifier(hub)}

	if cfg.AMQP.URL != "" {
		rabbit, err := infra.NewRabbit(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			return err
		}
		defer rabbit.Close()
		opts = append(opts, ride.WithPublisher(ride.NewBrokerPublisher(rabbit)))
	} else {
		log.Warn("amqp not configured; ride events are not published")
	}

	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey, maps.WithLocale(cfg.Maps.Language, cfg.Maps.Region))
		if err != nil {
			return err
		}
		opts = append(opts, ride.WithRouteEstimator(routes))
	}

	rideSvc, err := ride.NewService(ride.NewStore(dbPool), log, opts...)
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Rides:    rideSvc,
		Hub:      hub,
		Verifier: verifier,
		Log:      log,
	})
	return httptransport.NewServer(cfg.HTTP.Addr, router, log).Run(ctx)
}
