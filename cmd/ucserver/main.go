// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

// Command ucserver runs the Universal Control server with the in-memory
// reference backend. Device integrations replace the backend wiring and
// keep everything else.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/ucserver/internal/auth"
	"github.com/tomtom215/ucserver/internal/backend"
	"github.com/tomtom215/ucserver/internal/config"
	"github.com/tomtom215/ucserver/internal/logging"
	"github.com/tomtom215/ucserver/internal/notify"
	"github.com/tomtom215/ucserver/internal/pairing"
	"github.com/tomtom215/ucserver/internal/server"
	"github.com/tomtom215/ucserver/internal/supervisor"

	xrate "golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	store := notify.Open(cfg.Events.NotificationIDPath, cfg.Events.Timeout)

	badgerOpts := badger.DefaultOptions(cfg.Storage.CredentialsPath).WithLogger(nil)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer func() { _ = db.Close() }()

	engine, err := auth.NewEngine(cfg.Server.UUID, auth.NewBadgerCredentialsStore(db))
	if err != nil {
		return fmt.Errorf("build auth engine: %w", err)
	}
	engine.Iteration = cfg.Security.Iteration
	engine.NcLimit = uint64(cfg.Security.NcLimit)
	engine.NonceTimeout = cfg.Security.NonceTimeout

	device := backend.NewDevice()
	mem := backend.NewMemory(device)
	seedOutputs(device, mem)

	srv, err := server.New(server.Options{
		Name:                 cfg.Server.Name,
		UUID:                 cfg.Server.UUID,
		LogoHref:             cfg.Server.LogoHref,
		Resources:            cfg.Server.Options,
		AuthRequired:         cfg.Security.Enabled,
		PIN:                  cfg.Security.PIN,
		ConfirmStorageDelete: cfg.Security.ConfirmStorageDelete,
		CORS: server.CORSConfig{
			AllowOrigins:     cfg.CORS.AllowOrigins,
			AllowMethods:     cfg.CORS.AllowMethods,
			MaxAge:           cfg.CORS.MaxAge,
			AllowCredentials: cfg.CORS.AllowCredentials,
		},
		PairRate:  xrate.Limit(float64(cfg.Security.PairRatePerMinute) / 60.0),
		PairBurst: cfg.Security.PairBurst,
	}, store, engine, device)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	if cfg.Security.Enabled {
		openPairing(srv, cfg)
	}

	router := server.Router(srv, server.RouterConfig{
		RateLimitRequests: cfg.Server.RateLimitRequests,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
		Metrics:           cfg.Server.Metrics,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(slog.New(logging.NewSlogHandler()), supervisor.DefaultTreeConfig())
	tree.Add(supervisor.NewHTTPService(httpServer, cfg.Server.ShutdownTimeout))
	tree.Add(supervisor.NewBadgerGCService(db, cfg.Storage.GCInterval))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", httpServer.Addr).Str("server_id", cfg.Server.UUID).
		Bool("security", cfg.Security.Enabled).Msg("UC server starting")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// seedOutputs gives the reference backend a single main output so the
// box answers sensibly before a device integration populates it.
func seedOutputs(device *backend.Device, mem *backend.Memory) {
	volume := 10000
	mute := false
	device.SetOutputs(map[string]*backend.Output{
		"0": {
			OID:      "0",
			Name:     "Main Display",
			Main:     true,
			Settings: backend.Settings{Volume: &volume, Mute: &mute, Aspect: "source"},
			Selector: mem.Selector("0"),
		},
	})
	device.SetControls([]string{"uc:basic"})
}

// openPairing mints a boot-time SSS and logs the pairing code clients
// type to reach this box.
func openPairing(srv *server.Server, cfg *config.Config) {
	var sss [1]byte
	if _, err := rand.Read(sss[:]); err != nil {
		logging.Warn().Err(err).Msg("Could not generate pairing secret; pairing disabled")
		return
	}
	srv.SetSSS(sss[0])

	ip := net.ParseIP(cfg.Server.Host).To4()
	if ip == nil || ip.IsUnspecified() {
		logging.Info().Msg("Pairing open; host address not fixed, no pairing code printed")
		return
	}

	code := pairing.Code{
		IP:   [4]byte{ip[0], ip[1], ip[2], ip[3]},
		Port: uint16(cfg.Server.Port),
		SSS:  &sss[0],
	}
	logging.Info().Str("pairing_code", code.Encode(true)).Msg("Pairing open")
}
