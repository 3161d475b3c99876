package store

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/exposure/config"
)

// NewStore builds the checkpoint store selected by cfg. The store still
// needs Init before use.
func NewStore(cfg config.StoreConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path), nil
	case "badger":
		bc := DefaultBadgerConfig(cfg.Path)
		bc.Logger = logger
		return NewBadgerStore(bc), nil
	case "s3":
		return NewS3Store(S3Config{
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.UsePathStyle,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Driver)
	}
}
