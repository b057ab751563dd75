package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cyphereco/openturnkey/internal/config"
	"github.com/cyphereco/openturnkey/internal/core/application"
	"github.com/cyphereco/openturnkey/internal/core/ports"
	"github.com/cyphereco/openturnkey/internal/infrastructure/battery"
	fpsim "github.com/cyphereco/openturnkey/internal/infrastructure/biometric/simulated"
	cborcodec "github.com/cyphereco/openturnkey/internal/infrastructure/codec/cbor"
	"github.com/cyphereco/openturnkey/internal/infrastructure/power"
	badgerstore "github.com/cyphereco/openturnkey/internal/infrastructure/storage/badger"
	wstransport "github.com/cyphereco/openturnkey/internal/infrastructure/transport/websocket"
	"github.com/cyphereco/openturnkey/pkg/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	nfcPath     = "/nfc"
	fpsPath     = "/fps"
	metricsPath = "/metrics"

	shutdownTimeout = 5 * time.Second
)

func main() {
	if err := config.InitConfig(); err != nil {
		log.WithError(err).Fatal("failed to initialize config")
	}
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	datadir := config.GetDatadir()

	repo, err := badgerstore.NewKeyRecordStore(
		filepath.Join(datadir, config.DbLocation), log.StandardLogger(),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to open key store")
	}

	codec, err := cborcodec.NewCodec()
	if err != nil {
		log.WithError(err).Fatal("failed to create record codec")
	}

	fpsDb, err := badgerstore.OpenStore(
		filepath.Join(datadir, config.FpsLocation), log.StandardLogger(),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to open fingerprint template store")
	}

	sensor, err := fpsim.NewSensor(fpsDb.Store)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize fingerprint sensor")
	}

	bat, err := battery.NewStatic(config.GetInt(config.BatteryMillivoltsKey))
	if err != nil {
		log.WithError(err).Fatal("failed to initialize battery")
	}

	pwr := power.NewManager()

	transport, err := wstransport.NewTransport(wstransport.Opts{
		FrameRate: config.GetInt(config.ReaderFrameRateKey),
		Waker:     pwr,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to initialize tag emulation")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := application.NewMetrics(reg)
	if err != nil {
		log.WithError(err).Fatal("failed to register metrics")
	}

	cfg := application.Config{
		Repository:              repo,
		Transport:               transport,
		Codec:                   codec,
		Biometric:               sensor,
		Battery:                 bat,
		Power:                   pwr,
		Metrics:                 metrics,
		Network:                 config.GetNetwork(),
		AllowHardenedDerivation: config.GetBool(config.AllowHardenedDerivationKey),
		StandbyTimeout:          config.GetDuration(config.StandbyTimeoutKey),
		TaskQueueCapacity:       config.GetInt(config.TaskQueueCapacityKey),
		ResetHoldDuration:       config.GetDuration(config.ResetHoldDurationKey),
		EnrollPolicy: ports.EnrollPolicy{
			Captures:       config.GetInt(config.FpsCaptureCountKey),
			CaptureTimeout: config.GetDuration(config.FpsCaptureTimeoutKey),
			MaxUsers:       config.GetInt(config.FpsMaxUsersKey),
		},
		MatchPolicy: ports.MatchPolicy{
			MinMatches: 1,
			Timeout:    config.GetDuration(config.FpsMatchTimeoutKey),
		},
		FirmwareBuild: config.GetString(config.FirmwareBuildKey),
		ProvisionSeed: config.GetProvisionSeed(),
		ProvisionPath: config.GetProvisionPath(),
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid device config")
	}

	mux := http.NewServeMux()
	mux.Handle(nfcPath, transport)
	mux.Handle(fpsPath+"/", sensor.Handler(fpsPath))
	mux.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.GetInt(config.ListeningPortKey)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGTERM, syscall.SIGINT,
	)
	defer stop()

	if config.GetBool(config.EnableStatsKey) {
		interval := time.Duration(config.GetInt(config.StatsIntervalKey)) * time.Second
		stats.EnableStatistics(ctx, interval, reg, "otk_", datadir)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Infof("tag emulation listening on %s%s", server.Addr, nfcPath)
		if err := server.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	eg.Go(func() error {
		return runDevice(egCtx, cfg, transport, sensor, pwr)
	})

	err = eg.Wait()
	if closeErr := repo.Close(); closeErr != nil {
		log.WithError(closeErr).Warn("failed to close key store")
	}
	if closeErr := fpsDb.Close(); closeErr != nil {
		log.WithError(closeErr).Warn("failed to close fingerprint template store")
	}
	if err != nil {
		log.WithError(err).Error("daemon stopped on error")
		os.Exit(1)
	}
	log.Info("exiting")
}

// runDevice boots a new device every time the previous one reboots or is
// woken up by a reader after a shutdown.
func runDevice(
	ctx context.Context, cfg application.Config,
	transport *wstransport.Transport, sensor *fpsim.Sensor, pwr *power.Manager,
) error {
	for {
		device, err := application.NewDevice(cfg)
		if err != nil {
			return err
		}

		pwr.PowerOn()
		transport.Attach(device)
		sensor.Attach(device)

		halt := device.Run(ctx)
		sensor.Attach(nil)
		if ctx.Err() != nil {
			return nil
		}

		if halt.Reboot {
			continue
		}
		log.WithField("code", halt.Code.String()).Info("waiting for a reader to wake up the device")
		if err := pwr.WaitWake(ctx); err != nil {
			return nil
		}
	}
}
