package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/rpattn/tripsync/internal/clearinghouse"
	"github.com/rpattn/tripsync/internal/config"
	"github.com/rpattn/tripsync/internal/db"
	"github.com/rpattn/tripsync/internal/export"
	"github.com/rpattn/tripsync/internal/ingestion"
	"github.com/rpattn/tripsync/internal/logging"
	"github.com/rpattn/tripsync/internal/notify"
	"github.com/rpattn/tripsync/internal/repository"
	"github.com/rpattn/tripsync/internal/statusapi"
	tripsync "github.com/rpattn/tripsync/internal/sync"
	"github.com/rpattn/tripsync/internal/transform"
	"github.com/rpattn/tripsync/internal/upsert"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	once := flag.Bool("once", false, "run a single poll cycle and exit")
	memory := flag.Bool("memory", false, "keep the trip mirror in memory instead of Postgres")
	flag.Parse()

	if err := run(*configPath, *once, *memory); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, once, memory bool) error {
	cfg, loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging, "tripsync")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("configuration loaded", zap.Bool("file", loaded), zap.String("path", configPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		mirror    repository.MirrorRepository
		committer tripsync.Committer
	)
	if memory {
		logger.Warn("using in-memory trip mirror; state is lost on exit")
		mirror = repository.NewMemoryMirrorRepository()
	} else {
		if err := db.RunMigrations(cfg.Database); err != nil {
			return err
		}
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer conn.Close()
		mirror = repository.NewMirrorRepository(conn.Pool)
		committer = func(ctx context.Context, fn func(repository.MirrorRepository) error) error {
			return conn.WithTx(ctx, func(tx pgx.Tx) error {
				return fn(repository.NewMirrorRepository(tx))
			})
		}
	}

	registryDB, err := db.OpenRegistry(cfg.Registry.Path)
	if err != nil {
		return err
	}
	defer registryDB.Close()
	registry := repository.NewImportedFileRepository(registryDB)

	client, err := clearinghouse.NewClient(cfg.API, logger)
	if err != nil {
		return err
	}

	notifier, closeNotifiers, err := buildNotifier(cfg.Notification, logger)
	if err != nil {
		return err
	}
	defer closeNotifiers()

	opts := []tripsync.Option{tripsync.WithNotifier(notifier), tripsync.WithCommitter(committer)}

	var exporter *export.Service
	if cfg.Export.Enabled {
		profile, err := config.LoadProfile(cfg.MappingFile)
		if err != nil {
			return err
		}
		format, err := export.ParseFormat(cfg.Export.Format)
		if err != nil {
			return err
		}
		exporter = export.NewService(transform.NewPipeline(profile), logger,
			export.WithExportDirectory(cfg.Export.Folder),
			export.WithFormat(format),
		)
		opts = append(opts, tripsync.WithExporter(exporter))
	}

	var importer *ingestion.Service
	if cfg.Import.Enabled {
		router := upsert.NewRouter(mirror, client, logger)
		importer = ingestion.NewService(registry, router, logger,
			ingestion.WithImportDirectory(cfg.Import.Folder),
			ingestion.WithPatterns(cfg.Import.Patterns...),
		)
		opts = append(opts, tripsync.WithImporter(importer))
	}

	adapter := tripsync.NewAdapter(mirror, client, logger, opts...)

	if once {
		_, err := adapter.Poll(ctx)
		return err
	}

	if cfg.Status.Enabled {
		var serverOpts []statusapi.Option
		if importer != nil {
			serverOpts = append(serverOpts, statusapi.WithUploadHandler(ingestion.NewHTTPHandler(importer)))
		}
		if exporter != nil {
			serverOpts = append(serverOpts, statusapi.WithExportHandler(export.NewHTTPHandler(exporter)))
		}
		server := statusapi.NewServer(adapter, registry, logger, serverOpts...)
		go func() {
			if err := server.ListenAndServe(ctx, cfg.Status.Server()); err != nil {
				logger.Error("status server stopped", zap.Error(err))
			}
		}()
	}

	return pollLoop(ctx, adapter, cfg.Poll.Interval, logger)
}

// pollLoop runs a cycle immediately and then on every tick until ctx ends.
// An aborted cycle is logged and the loop keeps going.
func pollLoop(ctx context.Context, adapter *tripsync.Adapter, interval time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := adapter.Poll(ctx); err != nil && ctx.Err() == nil {
			logger.Error("poll cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

func buildNotifier(cfg config.NotificationConfig, logger *zap.Logger) (notify.Notifier, func(), error) {
	notifiers := []notify.Notifier{notify.NewLogNotifier(logger)}
	var closers []func()
	closeAll := func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}

	if cfg.Redis.Addr != "" {
		redisNotifier := notify.NewRedisNotifier(notify.NewRedisClient(cfg.Redis), cfg.Redis.Channel)
		notifiers = append(notifiers, redisNotifier)
		closers = append(closers, func() { _ = redisNotifier.Close() })
	}
	if cfg.MQTT.Broker != "" {
		client, err := notify.ConnectMQTT(cfg.MQTT)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		notifiers = append(notifiers, notify.NewMQTTNotifier(client, cfg.MQTT.Topic, cfg.MQTT.QoS))
		closers = append(closers, func() { client.Disconnect(250) })
	}

	return notify.NewMulti(logger, notifiers...), closeAll, nil
}
