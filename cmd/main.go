package main

import (
	"bourracho/auth"
	"bourracho/infrastructure/api"
	"bourracho/infrastructure/blob"
	"bourracho/infrastructure/grpc/server"
	"bourracho/infrastructure/ws"
	"bourracho/internal"
	"bourracho/medias"
	"bourracho/moderation"
	"bourracho/observability"
	"bourracho/repositories"
	"bourracho/runtime"
	"bourracho/runtime/workers"
	"bourracho/services"
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK = iota
	exitConfig
	exitStorage
	exitServer
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a server failure.
// Returning instead of exiting lets deferred closes run.
func run() (int, error) {
	config, err := internal.Load()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	censorChar, _ := internal.CharacterRune(config.CharReplacement)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitStorage, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitStorage, fmt.Errorf("index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing Bluge index...")
		_ = blugeWriter.Close()
	}()

	blobs, err := blob.NewMinioStore(ctx, log, blob.Config{
		StorageURI: config.StorageURI,
		Endpoint:   config.StorageEndpoint,
		AccessKey:  config.StorageAccessKey,
		SecretKey:  config.StorageSecretKey,
		Region:     config.StorageRegion,
		UseSSL:     config.StorageUseSSL,
	})
	if err != nil {
		return exitStorage, err
	}

	words, err := moderation.LoadFile(config.ModerationFile)
	if err != nil {
		return exitConfig, err
	}
	moderator, err := moderation.NewModerator(words.Words, censorChar, log)
	if err != nil {
		return exitConfig, err
	}

	// Runtime
	registry := runtime.NewRegistry(log, config.MaxConsecutiveDrops)
	dispatcher := runtime.NewDispatcher(log, registry,
		config.NumberOfShards, config.BufferSize, config.DispatchTimeout, config.PublishTimeout)
	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, config.RestartInterval),
		registry, dispatcher, config.PingInterval, config.IdleTimeout)
	locker := runtime.NewKeyedLocker()

	// Services
	tokenizer := auth.NewTokenizer(config.AuthSecret, config.AuthTokenDuration)
	conversations := repositories.NewConversationRepository(db, log)
	mediaStore := medias.NewMediaStore(log, blobs, config.MediaURLTTL, blobs.Backend() == blob.BackendMinio)
	authService := services.NewAuthService(log, repositories.NewUserRepository(db), tokenizer)
	membership := services.NewMembershipService(log, conversations, locker, dispatcher, registry)
	chat := services.NewChatService(log, conversations,
		repositories.NewMessageRepository(db, log, config.LimitMessages),
		repositories.NewMessageIndex(blugeWriter, log),
		mediaStore, moderator, locker, dispatcher, config.MaxContentLength)

	// Side workers
	monitor := observability.NewMonitor(log, registry, dispatcher, config.MetricInterval, config.LowCapacityThreshold)
	orchestrator.Add(monitor, server.NewHealthServer(log, config.GRPCAddress(), monitor, config.MetricInterval))

	if err = orchestrator.Start(ctx); err != nil {
		return exitServer, fmt.Errorf("orchestrator failed to start: %w", err)
	}
	defer orchestrator.Stop()

	consumer := ws.NewConsumer(log, membership, chat, registry, ws.Config{
		ConnectionBufferSize: config.ConnectionBufferSize,
		PingInterval:         config.PingInterval,
		IdleTimeout:          config.IdleTimeout,
		WriteTimeout:         config.WriteTimeout,
		FramesPerSecond:      config.FramesPerSecond,
		MaxFrameBytes:        config.MaxFrameBytes,
	})
	handler := api.NewHandler(log, authService, membership, chat, config.MaxUploadBytes)
	httpServer := &http.Server{
		Addr:              config.Address(),
		Handler:           api.NewRouter(log, tokenizer, handler, consumer.Serve, monitor),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return exitServer, err
	}

	// Live connections are hijacked, Shutdown does not wait for them
	registry.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	log.Info("Program stopped cleanly")
	return exitOK, nil
}
