// cartrustd is the vehicle-side companion-device trust daemon: it pairs
// with a phone over BLE/RFCOMM, negotiates a UKEY2-style encrypted
// session, and hosts the calendar-sync replica behind the feature
// multiplexer (spec.md §1, §4).
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/carlinkd/cartrustd/internal/calendarsync"
	"github.com/carlinkd/cartrustd/internal/capability"
	"github.com/carlinkd/cartrustd/internal/config"
	trustmetrics "github.com/carlinkd/cartrustd/internal/metrics"
	"github.com/carlinkd/cartrustd/internal/oob"
	"github.com/carlinkd/cartrustd/internal/peerstore"
	"github.com/carlinkd/cartrustd/internal/stack"
	"github.com/carlinkd/cartrustd/internal/transport"
	appversion "github.com/carlinkd/cartrustd/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// flightRecorderMinAge is the minimum window age for the flight recorder.
const flightRecorderMinAge = 500 * time.Millisecond

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

// protocolVersionRange is this build's supported {message, security}
// version range, advertised during pairing's VersionExchanging phase
// (spec.md §4.1).
var protocolVersionRange = capability.VersionRecord{
	MinMessageVersion:  1,
	MaxMessageVersion:  1,
	MinSecurityVersion: 1,
	MaxSecurityVersion: 2,
}

var localChannels = []capability.ChannelType{capability.ChannelBTRFCOMM, capability.ChannelPreAssociation}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("cartrustd starting",
		slog.String("version", appversion.Version),
		slog.String("admin_addr", cfg.Admin.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	fr := startFlightRecorder(logger)

	reg := prometheus.NewRegistry()
	collector := trustmetrics.NewCollector(reg)

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		logger.Error("connect to system bus failed", slog.String("error", err.Error()))
		return 1
	}
	defer conn.Close()

	peers := peerstore.NewMemory()
	replicaStore := stack.NewMemoryReplicaStore()
	replica := calendarsync.NewReplica(replicaStore, logger)

	masterKey := loadOrGenerateMasterKey(cfg.Security, logger)
	cryptoHelper, err := peerstore.NewAEADCryptoHelper(masterKey)
	if err != nil {
		logger.Error("build identification-key crypto helper failed", slog.String("error", err.Error()))
		return 1
	}
	oobManager := buildOOBManager(cfg.OOB, logger)

	services := transport.ServiceUUIDs{
		Service:       cfg.Transport.ServiceUUID,
		ClientWrite:   cfg.Transport.ClientWriteUUID,
		ServerWrite:   cfg.Transport.ServerWriteUUID,
		AdvertiseData: cfg.Transport.AdvertiseDataUUID,
	}
	discoverer := stack.NewBlueZDiscoverer(conn, cfg.Transport.ServiceUUID, logger)
	selfID := uuid.New()

	daemon := stack.NewDaemon(peers, collector, replica, discoverer, cryptoHelper, oobManager, services,
		protocolVersionRange, localChannels, selfID[:], logger)

	if err := runServers(cfg, daemon, peers, reg, logger, fr); err != nil {
		logger.Error("cartrustd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("cartrustd stopped")
	return 0
}

// runServers runs the device-discovery loop alongside the admin and
// metrics HTTP servers using an errgroup with signal-aware context for
// graceful shutdown.
func runServers(
	cfg *config.Config,
	daemon *stack.Daemon,
	peers *peerstore.Memory,
	reg *prometheus.Registry,
	logger *slog.Logger,
	fr *trace.FlightRecorder,
) error {
	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	adminSrv := newAdminServer(cfg.Admin, peers, daemon)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := daemon.Run(gCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	lc := net.ListenConfig{}
	g.Go(func() error {
		logger.Info("admin server listening", slog.String("addr", cfg.Admin.Addr))
		return listenAndServe(gCtx, &lc, adminSrv, cfg.Admin.Addr)
	})
	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(gCtx, &lc, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, fr, adminSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// gracefulShutdown stops the flight recorder and drains the HTTP servers.
func gracefulShutdown(ctx context.Context, logger *slog.Logger, fr *trace.FlightRecorder, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")

	if fr != nil {
		fr.Stop()
		logger.Debug("flight recorder stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// startFlightRecorder initializes and starts the Go 1.26 FlightRecorder
// for post-mortem debugging of pairing/session failures.
func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder", slog.String("error", err.Error()))
		return nil
	}

	logger.Info("flight recorder started",
		slog.Duration("min_age", flightRecorderMinAge),
		slog.Uint64("max_bytes", flightRecorderMaxBytes),
	)
	return fr
}

// listenAndServe creates a TCP listener using the ListenConfig (for noctx
// compliance) and serves HTTP requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newAdminServer creates an HTTP server exposing associated-peer
// management (spec.md §4.4) and pending pairing decisions for cartrustctl.
func newAdminServer(cfg config.AdminConfig, peers *peerstore.Memory, daemon *stack.Daemon) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           stack.NewAdminAPI(peers, daemon).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// loadOrGenerateMasterKey decodes cfg's hex-encoded master key, or
// generates and logs a warning about an ephemeral one if none was
// provisioned (spec.md §1 places platform keystore integration out of
// scope for this exercise; a restart with no configured key forgets every
// wrapped identification key).
func loadOrGenerateMasterKey(cfg config.SecurityConfig, logger *slog.Logger) [32]byte {
	var key [32]byte
	if cfg.MasterKeyHex != "" {
		decoded, err := hex.DecodeString(cfg.MasterKeyHex)
		if err == nil && len(decoded) == len(key) {
			copy(key[:], decoded)
			return key
		}
		logger.Warn("security.master_key_hex is not a valid 32-byte hex key, generating an ephemeral one")
	} else {
		logger.Warn("security.master_key_hex not set, generating an ephemeral master key; stored identification keys will not survive a restart")
	}
	if _, err := rand.Read(key[:]); err != nil {
		logger.Error("failed to generate ephemeral master key", slog.String("error", err.Error()))
	}
	return key
}

// buildOOBManager wires a PRE_ASSOCIATION OOB channel from configuration,
// if one is provisioned; otherwise association always falls back to
// visual confirmation (spec.md §4.6).
func buildOOBManager(cfg config.OOBConfig, logger *slog.Logger) *oob.Manager {
	if cfg.PreAssociationURI == "" {
		return nil
	}
	parsed, err := oob.ParseURI(cfg.PreAssociationURI)
	if err != nil {
		logger.Warn("invalid oob.pre_association_uri, no OOB channel configured", slog.String("error", err.Error()))
		return nil
	}
	return oob.NewManager(oob.NewPreAssociationChannel(parsed.OOBData))
}

// loadConfig loads configuration from a file path or returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
