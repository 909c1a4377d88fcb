package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mdp/qrterminal/v3"

	"github.com/sendnode/wagateway/pkg/blob"
	"github.com/sendnode/wagateway/pkg/bus"
	"github.com/sendnode/wagateway/pkg/config"
	"github.com/sendnode/wagateway/pkg/event"
	"github.com/sendnode/wagateway/pkg/gateway"
	"github.com/sendnode/wagateway/pkg/logger"
	"github.com/sendnode/wagateway/pkg/session"
	"github.com/sendnode/wagateway/pkg/sinks"
	"github.com/sendnode/wagateway/pkg/storage"
	"github.com/sendnode/wagateway/pkg/wasock"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "config file path (default ~/.wagateway/config.json)")
	printQR := flag.Bool("print-qr", false, "render pairing QR codes on the terminal")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("wagateway %s\n", version)
		return
	}

	args := flag.Args()
	if len(args) > 0 {
		switch args[0] {
		case "migrate":
			migrateDataCommand(*configPath)
			return
		case "export":
			outputDir := "./export"
			if len(args) > 1 {
				outputDir = args[1]
			}
			exportDataCommand(*configPath, outputDir)
			return
		case "pair":
			if len(args) < 3 {
				fmt.Fprintln(os.Stderr, "usage: wagateway pair <session-id> <owner-id> [name]")
				os.Exit(1)
			}
			name := ""
			if len(args) > 3 {
				name = args[3]
			}
			run(*configPath, *printQR, &pairRequest{sessionID: args[1], ownerID: args[2], name: name})
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
			os.Exit(1)
		}
	}

	run(*configPath, *printQR, nil)
}

type pairRequest struct {
	sessionID string
	ownerID   string
	name      string
}

func run(configPath string, printQR bool, pair *pairRequest) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger.Configure(os.Stderr, cfg.Logging.Level)
	logger.InfoCF("main", "Starting wagateway", map[string]interface{}{
		"version": version,
		"storage": cfg.Storage.Type,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStorage(storage.Config{
		Type:        cfg.Storage.Type,
		FilePath:    cfg.Storage.FilePath,
		DatabaseURL: cfg.Storage.DatabaseURL,
		SSLEnabled:  cfg.Storage.SSLEnabled,
	})
	if err != nil {
		logger.ErrorCF("main", "Storage init failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	if err := store.Connect(ctx); err != nil {
		logger.ErrorCF("main", "Storage connect failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer store.Close()

	blobs, err := blob.NewStore(blob.Config{
		Type:      cfg.Blob.Type,
		BasePath:  cfg.Blob.BasePath,
		BaseURL:   cfg.Blob.BaseURL,
		Endpoint:  cfg.Blob.Endpoint,
		AccessKey: cfg.Blob.AccessKey,
		SecretKey: cfg.Blob.SecretKey,
		Bucket:    cfg.Blob.Bucket,
		UseSSL:    cfg.Blob.UseSSL,
	})
	if err != nil {
		logger.ErrorCF("main", "Blob store init failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	dialer, err := wasock.NewMeowDialer(ctx, wasock.MeowConfig{
		StoreType:   cfg.Device.Type,
		StorePath:   cfg.Device.Path,
		DatabaseURL: cfg.Device.DatabaseURL,
	})
	if err != nil {
		logger.ErrorCF("main", "Device store init failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	events := bus.New()
	manager := session.NewManager(dialer, store, events, session.NewProcessor(blobs),
		session.WithRetryDelay(time.Duration(cfg.Gateway.RetryDelaySeconds)*time.Second),
		session.WithCloseTimeout(time.Duration(cfg.Gateway.CloseTimeoutSeconds)*time.Second),
	)
	gw := gateway.New(manager, store)

	webhook := sinks.NewWebhookSink(store, cfg.Webhook.DefaultURL, cfg.Webhook.Secret)
	webhook.Attach(events)

	var broker *sinks.BrokerSink
	if cfg.Broker.Enabled {
		broker = sinks.NewBrokerSink(cfg.Broker.URL, cfg.Broker.Exchange)
		broker.Attach(events)
	}

	if printQR || (pair != nil) {
		// Tail the bus through an observer channel so terminal rendering
		// never runs on a socket callback.
		tail := events.Observe()
		defer events.Unobserve(tail)
		go func() {
			for evt := range tail {
				qr, ok := evt.(event.QREvent)
				if !ok || qr.Code == "" {
					continue
				}
				fmt.Printf("\nScan to pair session %s:\n\n", qr.SessionID)
				qrterminal.GenerateHalfBlock(qr.Code, qrterminal.L, os.Stdout)
			}
		}()
	}

	if cfg.Gateway.RestoreOnBoot {
		manager.RestoreSessions(ctx)
	}

	if pair != nil {
		if _, err := gw.StartSession(ctx, pair.sessionID, pair.ownerID, pair.name); err != nil {
			logger.ErrorCF("main", "Session start failed", map[string]interface{}{
				"session": pair.sessionID,
				"error":   err.Error(),
			})
			os.Exit(1)
		}
	}

	<-ctx.Done()
	logger.InfoC("main", "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, s := range manager.Registry().List() {
		if err := manager.StopSession(shutdownCtx, s.ID); err != nil {
			logger.WarnCF("main", "Session stop failed", map[string]interface{}{
				"session": s.ID,
				"error":   err.Error(),
			})
		}
	}
	if broker != nil {
		broker.Close()
	}
}
