package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/brewnet/backend/internal/config"
	"github.com/brewnet/backend/internal/domain"
)

// Store is the persistence the service needs. Every driver implements all of
// it so a deployment picks exactly one backend.
type Store interface {
	domain.NotificationRepository
	domain.UserRepository
	domain.ConnectionRepository

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open connects the driver selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return NewMemoryStore(), nil
	case config.DriverSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	case config.DriverMongo:
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoTimeout)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
