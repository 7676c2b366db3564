package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"messenger/crypto"
	"messenger/internal"
	"messenger/moderation"
	"messenger/observability"
	"messenger/repositories"
	"messenger/services"
	"messenger/storage"
)

// Exit codes to provide meaningful status to the operating system or
// service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// main is a thin wrapper: call run() and translate its result into an
	// OS exit code, so deferred cleanup always executes.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "messengerd terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration & logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	replacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	options := badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(options)
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Crypto & moderation
	keystore := crypto.NewKeystore(config.MasterPassphrase)
	engine := crypto.NewEngine()

	var censoredWords []string
	if config.CensoredWords != "" {
		censoredWords = strings.Split(config.CensoredWords, ",")
	}
	moderator, err := moderation.New(censoredWords, replacement)
	if err != nil {
		return exitConfig, fmt.Errorf("moderation init failed: %w", err)
	}

	// 4. Repositories & services
	metrics := observability.NewMetrics(logger)

	identityRepo := repositories.NewIdentityRepository(db)
	conversationRepo := repositories.NewConversationRepository(db)
	messageRepo := repositories.NewMessageRepository(db, logger)
	deliveryRepo := repositories.NewDeliveryRepository(db)
	attachmentRepo := repositories.NewAttachmentRepository(db)

	blobs, err := storage.NewDiskBlobStore(config.BlobDir, logger)
	if err != nil {
		return exitRuntime, err
	}

	identities := services.NewIdentityService(identityRepo, keystore, config.KeyBits, logger)
	guard := services.NewMembershipGuard(conversationRepo)
	app := services.App{
		Identities: identities,
		Chats:      services.NewChatService(conversationRepo, identities, logger),
		Pipeline: services.NewMessagePipeline(
			guard, conversationRepo, messageRepo, deliveryRepo, attachmentRepo,
			identities, engine, moderator, metrics, logger,
			config.MaxContentLength,
		),
		Attachments: services.NewAttachmentService(
			guard, messageRepo, attachmentRepo, blobs, logger, config.MaxAttachmentSize,
		),
	}

	if config.DebugServerEnabled {
		endpoint := config.DebugServerEndpoint
		if endpoint == "" {
			endpoint = "/inspect"
		}
		internal.StartDebugServer(db, metrics, config.DebugServerPort, endpoint)
		logger.Info("Debug inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s", config.DebugServerPort, endpoint))
	}

	_ = app // the transport layer mounts on these services

	logger.Info("messenger core ready",
		"badger", config.BadgerFilepath,
		"moderation", moderator != nil,
	)

	// 5. Block until shutdown.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	logger.Info("shutting down", "signal", sig.String())

	return exitOK, nil
}
