package backend

import (
	"context"
	"errors"
	"fmt"

	"tally/internal/amqp"
	"tally/internal/feed/memory"
	"tally/internal/log"
	"tally/internal/storage"
	"tally/internal/worker"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// AMQP is optional: without it only this process sees live updates
	var client *amqp.Client
	if config.AMQPURL != "" {
		client, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without change notifications", log.FieldError, err)
		} else {
			repo.SetPublisher(client)
			refresher := worker.NewRefreshWorker(repo, config.ResyncInterval, f.logger)
			go f.runRefresher(ctx, refresher, client, config)
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"origin", client.Origin())
		}
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", client != nil)

	return &BackendResult{
		Backend: repo,
		Cleanup: func() error {
			var errs []error
			if client != nil {
				errs = append(errs, client.Close())
			}
			errs = append(errs, repo.Close())
			return errors.Join(errs...)
		},
	}, nil
}

// runRefresher blocks until the refresh worker stops. A consumer failure
// leaves the backend serving only this process's writes, so it is logged
// with the broker and database it concerns.
func (f *DefaultFactory) runRefresher(ctx context.Context, w *worker.RefreshWorker, consumer worker.ChangeConsumer, config Config) error {
	err := w.Run(ctx, consumer)
	if err != nil {
		f.logger.Error("Change notifications stopped, writes from other processes will not appear",
			log.FieldErrorType, log.ErrorTypeBroker,
			log.FieldError, err.Error(),
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue,
			"db_path", config.SQLiteDBPath)
	}
	return err
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	store, err := memory.NewFromFile(config.SeedFile, memory.WithLogger(f.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to seed memory backend: %w", err)
	}

	f.logger.Info("Initialized memory backend", "seed_file", config.SeedFile)

	return &BackendResult{
		Backend: store,
		Cleanup: store.Close,
	}, nil
}
