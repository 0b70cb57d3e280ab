package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ruteri/certificate-manager/archive"
	"github.com/ruteri/certificate-manager/cmd/flags"
	"github.com/ruteri/certificate-manager/engine"
	"github.com/ruteri/certificate-manager/httpserver"
	"github.com/ruteri/certificate-manager/interfaces"
	"github.com/ruteri/certificate-manager/metrics"
	"github.com/ruteri/certificate-manager/storage"
	"github.com/urfave/cli/v2"
)

var (
	flagListenAddr = &cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	}
	flagGenesis = &cli.StringFlag{
		Name:  "genesis",
		Usage: "YAML file with the initial owner, signers and minimum signers",
	}
	flagOwner = &cli.StringFlag{
		Name:    "owner",
		Usage:   "initial owner address, used when no genesis file is given",
		EnvVars: []string{"MANAGER_OWNER"},
	}
	flagSignerPolicy = &cli.StringFlag{
		Name:  "signer-policy",
		Value: "idempotent",
		Usage: "behaviour when adding an existing signer: 'idempotent' or 'strict' (ignored with --genesis)",
	}
	flagArchiveBackend = &cli.StringSliceFlag{
		Name:  "archive-backend",
		Usage: "storage URI to archive notifications and approved certificates to (file://, s3://, vault://, ipfs://); repeatable",
	}
	flagArchiveRetry = &cli.DurationFlag{
		Name:  "archive-retry-interval",
		Value: archive.DefaultRetryInterval,
		Usage: "wait between attempts to archive a notification",
	}
	flagVaultClientCert = &cli.StringFlag{
		Name:  "vault-client-cert",
		Usage: "PEM client certificate for vault:// archive backends",
	}
	flagVaultClientKey = &cli.StringFlag{
		Name:  "vault-client-key",
		Usage: "PEM private key for --vault-client-cert",
	}
	flagMetricsNamespace = &cli.StringFlag{
		Name:  "metrics-namespace",
		Value: "certificate_manager",
		Usage: "prefix of exported Prometheus metrics",
	}
)

func main() {
	app := &cli.App{
		Name:  "certificate-manager",
		Usage: "Serve the multi-signer certificate approval API",
		Flags: append([]cli.Flag{
			flagListenAddr,
			flagGenesis,
			flagOwner,
			flagSignerPolicy,
			flagArchiveBackend,
			flagArchiveRetry,
			flagVaultClientCert,
			flagVaultClientKey,
			flagMetricsNamespace,
			flags.SignatureMaxAgeFlag,
			flags.LogServiceFlagFn("certificate-manager"),
		}, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			eng, err := loadEngine(cCtx, logger)
			if err != nil {
				logger.Error("Failed to initialize engine", "err", err)
				return err
			}
			logger.Info("Engine initialized", "owner", eng.Owner().String(),
				"signers", eng.SignersCount(), "minimumSigners", eng.MinimumSigners())

			metricsSrv, err := metrics.New(cCtx.String(flagMetricsNamespace.Name), cCtx.String(flags.MetricsAddrFlag.Name))
			if err != nil {
				logger.Error("Failed to create metrics server", "err", err)
				return err
			}
			if err := metricsSrv.Register(metrics.NewEngineCollector(metricsSrv.Namespace(), eng)); err != nil {
				logger.Error("Failed to register engine metrics", "err", err)
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var wg sync.WaitGroup
			if uris := cCtx.StringSlice(flagArchiveBackend.Name); len(uris) > 0 {
				archiver, err := setupArchiver(cCtx, logger, eng, uris)
				if err != nil {
					logger.Error("Failed to set up archive", "err", err)
					return err
				}
				if err := metricsSrv.Register(archiver); err != nil {
					logger.Error("Failed to register archive metrics", "err", err)
					return err
				}

				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := archiver.Run(ctx); err != nil {
						logger.Error("Archiver failed", "err", err)
					}
				}()
			}

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flagListenAddr.Name))
			server, err := httpserver.New(cfg, httpserver.NewHandler(eng, logger), metricsSrv)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			cancel()
			wg.Wait()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadEngine(cCtx *cli.Context, logger *slog.Logger) (*engine.Engine, error) {
	if path := cCtx.String(flagGenesis.Name); path != "" {
		logger.Info("Loading genesis", "file", path)
		genesis, err := engine.LoadGenesisFile(path)
		if err != nil {
			return nil, err
		}
		return engine.NewFromGenesis(genesis, logger)
	}

	owner := cCtx.String(flagOwner.Name)
	if owner == "" {
		return nil, errors.New("either --genesis or --owner is required")
	}
	return engine.NewFromGenesis(&engine.Genesis{
		Owner:        owner,
		SignerPolicy: cCtx.String(flagSignerPolicy.Name),
	}, logger)
}

func setupArchiver(cCtx *cli.Context, logger *slog.Logger, eng *engine.Engine, uris []string) (*archive.Archiver, error) {
	locations := make([]interfaces.StorageBackendLocation, 0, len(uris))
	for _, uri := range uris {
		loc, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, fmt.Errorf("invalid archive backend %q: %w", uri, err)
		}
		locations = append(locations, loc)
	}

	var factory interfaces.StorageBackendFactory = storage.NewStorageBackendFactory(logger)
	if certFile := cCtx.String(flagVaultClientCert.Name); certFile != "" {
		keyFile := cCtx.String(flagVaultClientKey.Name)
		factory = factory.WithTLSAuth(func() (tls.Certificate, error) {
			return tls.LoadX509KeyPair(certFile, keyFile)
		})
	}

	backend, err := factory.CreateMultiBackend(locations)
	if err != nil {
		return nil, err
	}

	availCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if !backend.Available(availCtx) {
		logger.Warn("No archive backend is currently available, archiving will retry", "location", backend.LocationURI())
	}

	return archive.NewArchiver(eng, backend, logger,
		archive.WithRetryInterval(cCtx.Duration(flagArchiveRetry.Name)),
		archive.WithNamespace(cCtx.String(flagMetricsNamespace.Name)),
	), nil
}
