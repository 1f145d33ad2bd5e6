package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"

	"brokerBot/config"
	"brokerBot/internal/adapters/logger"
	"brokerBot/internal/adapters/sqlite"
	"brokerBot/internal/adapters/xapi"
	"brokerBot/internal/app"
	"brokerBot/internal/channel"
	"brokerBot/internal/gateway"
	"brokerBot/internal/ports"
	"brokerBot/internal/transport"
)

func main() {
	os.Exit(run())
}

// run wires the application and returns the process exit code, so deferred cleanups run first.
func run() int {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.NewZapLogger(cfg.LogLevel, "brokerBot")
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize the position journal (optional)
	var journal ports.PositionRepository
	if cfg.DBPath != "" {
		repo, err := sqlite.NewRepository(sqlite.Config{
			DBPath: cfg.DBPath,
			Logger: appLogger,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize position journal")
			return 1
		}
		defer func() {
			if err := repo.Close(); err != nil {
				appLogger.Error(context.Background(), err, "Error closing position journal")
			}
		}()
		journal = repo
		appLogger.Info(context.Background(), "Position journal initialized")
	} else {
		appLogger.Info(context.Background(), "Position journal disabled")
	}

	// 4. Initialize the venue sockets and channels
	commandSession := transport.NewSession(transport.Config{
		Name:             gateway.ChannelCommand,
		Host:             cfg.Host,
		Port:             cfg.CommandPort,
		ConnectTimeout:   cfg.ConnectTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}, appLogger)
	streamSession := transport.NewSession(transport.Config{
		Name:             gateway.ChannelStream,
		Host:             cfg.Host,
		Port:             cfg.StreamPort,
		ConnectTimeout:   cfg.ConnectTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}, appLogger)

	commands := channel.NewCommandChannel(commandSession, channel.CommandConfig{
		MinInterval:    cfg.CommandInterval,
		ReceiveTimeout: cfg.ReceiveTimeout,
	}, appLogger)
	stream := channel.NewIngester(streamSession, appLogger)

	// 5. Initialize the Gateway (xAPI adapter)
	gw := gateway.New(gateway.Config{
		UserID:       cfg.UserID,
		Password:     cfg.Password,
		AppName:      cfg.AppName,
		PingInterval: cfg.PingInterval,
	}, commands, stream, xapi.NewBuilder(), xapi.NewAdapter(), appLogger)
	appLogger.Info(context.Background(), "Gateway initialized", map[string]interface{}{
		"command": commandSession.Addr(),
		"stream":  streamSession.Addr(),
	})

	// 6. Initialize Application Service
	tradingService, err := app.NewTradingService(cfg, appLogger, gw, journal)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading service")
		return 1
	}

	// 7. Start the Service
	if err := tradingService.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Trading service exited with error")
		if errors.Is(err, app.ErrTradingHalted) {
			return 2
		}
		return 1
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
	return 0
}
